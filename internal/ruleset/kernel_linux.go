//go:build linux

package ruleset

import (
	"fmt"

	"github.com/google/nftables"

	"grimm.is/nftctl/internal/host"
)

// ChainLister is the part of nftables.Conn used to read chains back.
type ChainLister interface {
	ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error)
}

// Netlink returns the netlink family value.
func (f Family) Netlink() nftables.TableFamily {
	switch f {
	case FamilyIP6:
		return nftables.TableFamilyIPv6
	case FamilyINet:
		return nftables.TableFamilyINet
	case FamilyARP:
		return nftables.TableFamilyARP
	case FamilyBridge:
		return nftables.TableFamilyBridge
	case FamilyNetdev:
		return nftables.TableFamilyNetdev
	}
	return nftables.TableFamilyIPv4
}

func (t ChainType) Netlink() nftables.ChainType {
	switch t {
	case TypeNAT:
		return nftables.ChainTypeNAT
	case TypeRoute:
		return nftables.ChainTypeRoute
	}
	return nftables.ChainTypeFilter
}

// Netlink returns nil for an unknown hook.
func (h Hook) Netlink() *nftables.ChainHook {
	switch h {
	case HookPrerouting:
		return nftables.ChainHookPrerouting
	case HookInput:
		return nftables.ChainHookInput
	case HookForward:
		return nftables.ChainHookForward
	case HookOutput:
		return nftables.ChainHookOutput
	case HookPostrouting:
		return nftables.ChainHookPostrouting
	case HookIngress:
		return nftables.ChainHookIngress
	}
	return nil
}

var namedPriorities = map[string]*nftables.ChainPriority{
	"raw":      nftables.ChainPriorityRaw,
	"mangle":   nftables.ChainPriorityMangle,
	"dstnat":   nftables.ChainPriorityNATDest,
	"filter":   nftables.ChainPriorityFilter,
	"security": nftables.ChainPrioritySecurity,
	"srcnat":   nftables.ChainPriorityNATSource,
}

// Netlink resolves named priorities to their numeric value.
func (p Priority) Netlink() (*nftables.ChainPriority, error) {
	name, off, err := p.split()
	if err != nil {
		return nil, err
	}
	base := nftables.ChainPriority(0)
	if name != "" {
		base = *namedPriorities[name]
	}
	return nftables.ChainPriorityRef(base + nftables.ChainPriority(off)), nil
}

func (p Policy) Netlink() *nftables.ChainPolicy {
	policy := nftables.ChainPolicyAccept
	if p == PolicyDrop {
		policy = nftables.ChainPolicyDrop
	}
	return &policy
}

// Verify reads the chain back over netlink, inside namespace, and checks
// that the kernel applied the hook parameters.
func (b *BaseChain) Verify(namespace string) error {
	return host.InNamespace(namespace, func() error {
		conn, err := nftables.New()
		if err != nil {
			return fmt.Errorf("failed to open netlink connection: %w", err)
		}
		return b.verifyWith(conn)
	})
}

func (b *BaseChain) verifyWith(conn ChainLister) error {
	chains, err := conn.ListChainsOfTableFamily(b.table.family.Netlink())
	if err != nil {
		return fmt.Errorf("failed to list chains: %w", err)
	}

	var found *nftables.Chain
	for _, c := range chains {
		if c.Name == b.name && c.Table != nil && c.Table.Name == b.table.name {
			found = c
			break
		}
	}
	if found == nil {
		return fmt.Errorf("chain %s %s not found over netlink", b.table, b.name)
	}

	if found.Type != b.spec.Type.Netlink() {
		return fmt.Errorf("chain %s: type is %s, want %s", b.name, found.Type, b.spec.Type)
	}
	if want := b.spec.Hook.Netlink(); found.Hooknum == nil || want == nil || *found.Hooknum != *want {
		return fmt.Errorf("chain %s: not attached to hook %s", b.name, b.spec.Hook)
	}
	want, err := b.spec.Priority.Netlink()
	if err != nil {
		return err
	}
	if found.Priority == nil || *found.Priority != *want {
		return fmt.Errorf("chain %s: priority differs from %s", b.name, b.spec.Priority)
	}
	if found.Policy != nil && *found.Policy != *b.spec.Policy.Netlink() {
		return fmt.Errorf("chain %s: policy differs from %s", b.name, policyName(b.spec.Policy))
	}
	return nil
}

func policyName(p Policy) Policy {
	if p == "" {
		return PolicyAccept
	}
	return p
}
