package ruleset

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"grimm.is/nftctl/internal/nft"
	"grimm.is/nftctl/internal/validation"
)

var setTypes = map[string]bool{
	"ipv4_addr":    true,
	"ipv6_addr":    true,
	"ether_addr":   true,
	"inet_proto":   true,
	"inet_service": true,
	"mark":         true,
	"ifname":       true,
}

var setPolicies = []string{"performance", "memory"}

var setFlags = map[string]bool{
	"constant": true,
	"interval": true,
	"timeout":  true,
	"dynamic":  true,
}

// SetSpec is the definition of a named set.
type SetSpec struct {
	// Type is a data type or a concatenation ("ipv4_addr . inet_service").
	Type       string
	Flags      []string
	Timeout    time.Duration
	GCInterval time.Duration
	Size       uint32
	// Policy is "performance" or "memory".
	Policy    string
	AutoMerge bool
	Elements  []string
}

// Validate checks the definition against the types and flags nft knows.
func (s SetSpec) Validate() error {
	if s.Type == "" {
		return usageErrorf("set type is required")
	}
	for _, part := range strings.Split(s.Type, ".") {
		if !setTypes[strings.TrimSpace(part)] {
			return usageErrorf("invalid set type %q", s.Type)
		}
	}
	for _, f := range s.Flags {
		if !setFlags[f] {
			return usageErrorf("invalid set flag %q", f)
		}
	}
	if s.Policy != "" {
		if err := validation.ValidateAllowlist(s.Policy, setPolicies); err != nil {
			return usageErrorf("invalid set policy %q", s.Policy)
		}
	}
	if s.Timeout < 0 || s.GCInterval < 0 {
		return usageErrorf("set durations must not be negative")
	}
	for _, e := range s.Elements {
		if err := s.checkElement(e); err != nil {
			return err
		}
	}
	return nil
}

// checkElement rejects elements that would break the element list, and
// checks addresses and ports for the plain types. Other types are left to nft.
func (s SetSpec) checkElement(e string) error {
	if strings.TrimSpace(e) == "" || strings.ContainsAny(e, ",{}\r\n") {
		return usageErrorf("invalid set element %q", e)
	}

	var err error
	switch strings.TrimSpace(s.Type) {
	case "ipv4_addr":
		err = validation.ValidateAddress(e, false)
	case "ipv6_addr":
		err = validation.ValidateAddress(e, true)
	case "inet_service":
		err = validation.ValidateService(e)
	}
	if err != nil {
		return usageErrorf("invalid %s element: %v", s.Type, err)
	}
	return nil
}

// body renders the definition block, including elements.
func (s SetSpec) body() string {
	decls := []string{"type " + s.Type}
	if len(s.Flags) > 0 {
		decls = append(decls, "flags "+strings.Join(s.Flags, ","))
	}
	if s.Timeout > 0 {
		decls = append(decls, "timeout "+nftDuration(s.Timeout))
	}
	if s.GCInterval > 0 {
		decls = append(decls, "gc-interval "+nftDuration(s.GCInterval))
	}
	if s.Size > 0 {
		decls = append(decls, fmt.Sprintf("size %d", s.Size))
	}
	if s.Policy != "" {
		decls = append(decls, "policy "+s.Policy)
	}
	if s.AutoMerge {
		decls = append(decls, "auto-merge")
	}
	if len(s.Elements) > 0 {
		decls = append(decls, "elements = "+elementList(s.Elements))
	}
	return "{ " + strings.Join(decls, " ; ") + " ; }"
}

// nftDuration formats d the way nft prints time values ("1h30m", "500ms").
func nftDuration(d time.Duration) string {
	units := []struct {
		suffix string
		size   time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
		{"ms", time.Millisecond},
	}
	var b strings.Builder
	for _, u := range units {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.suffix)
			d -= n * u.size
		}
	}
	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}

func elementList(elems []string) string {
	return "{ " + strings.Join(elems, ", ") + " }"
}

// Set is a named set.
type Set struct {
	resource
	table *Table
	name  string
	spec  SetSpec
}

func (s *Set) Name() string  { return s.name }
func (s *Set) Spec() SetSpec { return s.spec }
func (s *Set) Table() *Table { return s.table }

// Ref is the name rules use to match against the set.
func (s *Set) Ref() string {
	return "@" + s.name
}

func (s *Set) cmd(verb, object string, extra ...string) []string {
	out := []string{verb, object, string(s.table.family), s.table.name, s.name}
	return append(out, extra...)
}

// Load creates the set with its initial elements. FlushExisting empties an
// existing set and adds the initial elements again.
func (s *Set) Load(ctx context.Context, opts nft.LoadOptions) error {
	return s.gate.Load(ctx, opts,
		s.table.loadChild(func(ctx context.Context) error {
			return s.do(ctx, s.cmd("create", "set", s.spec.body())...)
		}),
		func(ctx context.Context) error {
			if err := s.flush(ctx); err != nil {
				return err
			}
			if len(s.spec.Elements) == 0 {
				return nil
			}
			return s.do(ctx, s.cmd("add", "element", elementList(s.spec.Elements))...)
		},
	)
}

func (s *Set) flush(ctx context.Context) error {
	return s.do(ctx, s.cmd("flush", "set")...)
}

// AddElements adds elements. Elements already present are left alone.
func (s *Set) AddElements(ctx context.Context, elems ...string) error {
	return s.elements(ctx, "add", elems)
}

// DeleteElements removes elements. nft rejects the whole command when any of
// them is missing.
func (s *Set) DeleteElements(ctx context.Context, elems ...string) error {
	return s.elements(ctx, "delete", elems)
}

func (s *Set) elements(ctx context.Context, verb string, elems []string) error {
	if len(elems) == 0 {
		return nil
	}
	for _, e := range elems {
		if err := s.spec.checkElement(e); err != nil {
			return err
		}
	}
	_, err := s.run(ctx, s.cmd(verb, "element", elementList(elems))...)
	return err
}

// Flush removes every element.
func (s *Set) Flush(ctx context.Context) error {
	if err := s.gate.Ready(ctx); err != nil {
		return err
	}
	return s.flush(ctx)
}

// Delete flushes and deletes the set. nft refuses while a rule still
// references it.
func (s *Set) Delete(ctx context.Context) error {
	return s.gate.Delete(ctx, func(ctx context.Context) error {
		if err := s.flush(ctx); err != nil {
			return err
		}
		return s.do(ctx, s.cmd("delete", "set")...)
	})
}

// List returns the set listing.
func (s *Set) List(ctx context.Context) (string, error) {
	return s.run(ctx, s.cmd("list", "set")...)
}

// Elements returns the elements currently in the set.
func (s *Set) Elements(ctx context.Context) ([]string, error) {
	listing, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return parseElements(listing), nil
}

// parseElements reads the "elements = { ... }" clause of a set listing,
// which nft wraps over several lines for large sets.
func parseElements(listing string) []string {
	var (
		buf     strings.Builder
		reading bool
	)
	sc := bufio.NewScanner(strings.NewReader(listing))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !reading {
			i := strings.Index(line, "elements = {")
			if i < 0 {
				continue
			}
			reading = true
			line = line[i+len("elements = {"):]
		}
		if j := strings.Index(line, "}"); j >= 0 {
			buf.WriteString(line[:j])
			break
		}
		buf.WriteString(line)
		buf.WriteString(" ")
	}

	var out []string
	for _, e := range strings.Split(buf.String(), ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
