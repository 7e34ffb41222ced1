package ruleset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"grimm.is/nftctl/internal/nft"
	"grimm.is/nftctl/internal/validation"
)

// Family is an nftables address family.
type Family string

const (
	FamilyIP     Family = "ip"
	FamilyIP6    Family = "ip6"
	FamilyINet   Family = "inet"
	FamilyARP    Family = "arp"
	FamilyBridge Family = "bridge"
	FamilyNetdev Family = "netdev"
)

// Families lists every supported family.
var Families = []Family{FamilyIP, FamilyIP6, FamilyINet, FamilyARP, FamilyBridge, FamilyNetdev}

// ParseFamily accepts a family name; empty means ip.
func ParseFamily(s string) (Family, error) {
	if s == "" {
		return FamilyIP, nil
	}
	f := Family(strings.ToLower(s))
	for _, known := range Families {
		if f == known {
			return f, nil
		}
	}
	return "", usageErrorf("invalid family %q", s)
}

// ChainType is the type of a base chain.
type ChainType string

const (
	TypeFilter ChainType = "filter"
	TypeNAT    ChainType = "nat"
	TypeRoute  ChainType = "route"
)

// Hook is the netfilter hook a base chain attaches to.
type Hook string

const (
	HookPrerouting  Hook = "prerouting"
	HookInput       Hook = "input"
	HookForward     Hook = "forward"
	HookOutput      Hook = "output"
	HookPostrouting Hook = "postrouting"
	HookIngress     Hook = "ingress"
)

var familyHooks = map[Family][]Hook{
	FamilyIP:     {HookPrerouting, HookInput, HookForward, HookOutput, HookPostrouting},
	FamilyIP6:    {HookPrerouting, HookInput, HookForward, HookOutput, HookPostrouting},
	FamilyINet:   {HookPrerouting, HookInput, HookForward, HookOutput, HookPostrouting},
	FamilyBridge: {HookPrerouting, HookInput, HookForward, HookOutput, HookPostrouting},
	FamilyARP:    {HookInput, HookOutput},
	FamilyNetdev: {HookIngress},
}

// Policy is the verdict for packets that fall off the end of a base chain.
type Policy string

const (
	PolicyAccept Policy = "accept"
	PolicyDrop   Policy = "drop"
)

// Priority orders base chains on the same hook. It is either a signed
// integer or a named priority with an optional offset ("filter", "mangle-5").
type Priority string

// PriorityNames are the named priorities nft accepts for ip, ip6 and inet.
var PriorityNames = []string{"raw", "mangle", "dstnat", "filter", "security", "srcnat"}

var namedPriorityRe = regexp.MustCompile(`^([a-z]+)\s*(?:([+-])\s*(\d+))?$`)

// split returns the name and offset of a named priority, or "" and the
// integer value.
func (p Priority) split() (string, int, error) {
	s := strings.TrimSpace(string(p))
	if s == "" {
		return "", 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return "", n, nil
	}
	m := namedPriorityRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("invalid priority %q", s)
	}
	known := false
	for _, name := range PriorityNames {
		if m[1] == name {
			known = true
			break
		}
	}
	if !known {
		return "", 0, fmt.Errorf("unknown priority name %q", m[1])
	}
	off := 0
	if m[3] != "" {
		off, _ = strconv.Atoi(m[3])
		if m[2] == "-" {
			off = -off
		}
	}
	return m[1], off, nil
}

// String renders the priority as nft expects it; empty means 0.
func (p Priority) String() string {
	name, off, err := p.split()
	if err != nil {
		return string(p)
	}
	if name == "" {
		return strconv.Itoa(off)
	}
	switch {
	case off > 0:
		return fmt.Sprintf("%s + %d", name, off)
	case off < 0:
		return fmt.Sprintf("%s - %d", name, -off)
	}
	return name
}

// BaseChainSpec describes how a base chain hooks into the network stack.
type BaseChainSpec struct {
	Type     ChainType
	Hook     Hook
	Device   string
	Priority Priority
	// Policy defaults to accept.
	Policy Policy
}

// Validate applies nft's type, hook and family rules.
func (s BaseChainSpec) Validate(family Family) error {
	switch s.Type {
	case TypeFilter:
	case TypeNAT, TypeRoute:
		if family != FamilyIP && family != FamilyIP6 {
			return usageErrorf("chain type %s is not valid in family %s", s.Type, family)
		}
	default:
		return usageErrorf("invalid chain type %q", s.Type)
	}

	hookOK := false
	for _, h := range familyHooks[family] {
		if h == s.Hook {
			hookOK = true
			break
		}
	}
	if !hookOK {
		return usageErrorf("invalid hook %q for family %s", s.Hook, family)
	}

	if family == FamilyNetdev && s.Device == "" {
		return usageErrorf("netdev chains need a device")
	}
	if family != FamilyNetdev && s.Device != "" {
		return usageErrorf("device is only valid in family netdev")
	}
	if s.Device != "" {
		if err := validation.ValidateInterfaceName(s.Device); err != nil {
			return usageErrorf("%v", err)
		}
	}

	if _, _, err := s.Priority.split(); err != nil {
		return usageErrorf("%v", err)
	}

	switch s.Policy {
	case "", PolicyAccept, PolicyDrop:
	default:
		return usageErrorf("invalid policy %q", s.Policy)
	}
	return nil
}

// body renders the chain definition block.
func (s BaseChainSpec) body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{ type %s hook %s", s.Type, s.Hook)
	if s.Device != "" {
		fmt.Fprintf(&b, " device %s", s.Device)
	}
	fmt.Fprintf(&b, " priority %s ;", s.Priority)
	policy := s.Policy
	if policy == "" {
		policy = PolicyAccept
	}
	fmt.Fprintf(&b, " policy %s ; }", policy)
	return b.String()
}

// checkName rejects names that would not survive as a single token.
func checkName(kind, name string) error {
	if name == "" {
		return usageErrorf("%s name is required", kind)
	}
	if err := validation.ValidateIdentifier(name); err != nil {
		return usageErrorf("%s name: %v", kind, err)
	}
	return nil
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", nft.ErrUsage, fmt.Sprintf(format, args...))
}
