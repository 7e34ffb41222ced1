package ruleset

import (
	"context"
	"strconv"
	"sync"

	"grimm.is/nftctl/internal/nft"
)

// Table is an nftables table.
type Table struct {
	resource
	name   string
	family Family

	// attached indexes rules issued by Insert and Append, so a delete made
	// through the table (jump cleanup, flush) can detach the Rule value.
	attachedMu sync.Mutex
	attached   map[ruleKey]*Rule
}

type ruleKey struct {
	chain  string
	handle uint64
}

func (t *Table) Name() string   { return t.name }
func (t *Table) Family() Family { return t.family }

func (t *Table) String() string {
	return string(t.family) + " " + t.name
}

// Load creates the table.
func (t *Table) Load(ctx context.Context, opts nft.LoadOptions) error {
	return t.gate.Load(ctx, opts,
		func(ctx context.Context) error {
			return t.do(ctx, "create", "table", string(t.family), t.name)
		},
		t.flush,
	)
}

func (t *Table) flush(ctx context.Context) error {
	if err := t.do(ctx, "flush", "table", string(t.family), t.name); err != nil {
		return err
	}
	t.detachAll(func(ruleKey) bool { return true })
	return nil
}

// Flush removes every rule in every chain of the table.
func (t *Table) Flush(ctx context.Context) error {
	if err := t.gate.Ready(ctx); err != nil {
		return err
	}
	return t.flush(ctx)
}

// Delete flushes and deletes the table. Every object created from it
// becomes unusable.
func (t *Table) Delete(ctx context.Context) error {
	return t.gate.Delete(ctx, func(ctx context.Context) error {
		if err := t.flush(ctx); err != nil {
			return err
		}
		return t.do(ctx, "delete", "table", string(t.family), t.name)
	})
}

// List returns the table listing with handles.
func (t *Table) List(ctx context.Context) (string, error) {
	return t.run(ctx, "list", "table", string(t.family), t.name)
}

// RemoveJumps deletes every rule in the table that jumps or goes to target
// and returns how many were removed.
func (t *Table) RemoveJumps(ctx context.Context, target string) (int, error) {
	listing, err := t.List(ctx)
	if err != nil {
		return 0, err
	}

	refs, err := nft.ScanJumps(listing, target)
	if err != nil {
		return 0, err
	}
	for i, ref := range refs {
		err := t.do(ctx, "delete", "rule", string(t.family), t.name, ref.Chain,
			"handle", strconv.FormatUint(ref.Handle, 10))
		if err != nil {
			return i, err
		}
		t.detachAll(func(k ruleKey) bool { return k == ruleKey{ref.Chain, ref.Handle} })
		t.rs.metrics.JumpCleanups.Inc()
		t.rs.log.Debug("removed jump rule",
			"table", t.String(),
			"chain", ref.Chain,
			"handle", ref.Handle,
			"verdict", ref.Verdict,
			"target", target,
		)
	}
	return len(refs), nil
}

func (t *Table) track(r *Rule, handle uint64) {
	t.attachedMu.Lock()
	defer t.attachedMu.Unlock()
	if t.attached == nil {
		t.attached = make(map[ruleKey]*Rule)
	}
	t.attached[ruleKey{r.chain.name, handle}] = r
}

func (t *Table) untrack(chain string, handle uint64) {
	t.attachedMu.Lock()
	defer t.attachedMu.Unlock()
	delete(t.attached, ruleKey{chain, handle})
}

// detachAll forgets the matching rules and zeroes their handles. Rule locks
// are taken after attachedMu is released: Rule.Delete holds its own lock
// while it calls untrack.
func (t *Table) detachAll(match func(ruleKey) bool) {
	var gone []*Rule
	t.attachedMu.Lock()
	for k, r := range t.attached {
		if match(k) {
			gone = append(gone, r)
			delete(t.attached, k)
		}
	}
	t.attachedMu.Unlock()

	for _, r := range gone {
		r.detach()
	}
}

// NewChain returns an unloaded regular chain handle.
func (t *Table) NewChain(name string) (*Chain, error) {
	if err := checkName("chain", name); err != nil {
		return nil, err
	}
	return t.newChain(name), nil
}

func (t *Table) newChain(name string) *Chain {
	return &Chain{
		resource: resource{
			rs:   t.rs,
			gate: nft.NewGate("chain", name, t.gate, t.rs.opts.ReadyTimeout),
		},
		table: t,
		name:  name,
	}
}

// Chain creates and loads a regular chain.
func (t *Table) Chain(ctx context.Context, name string, opts nft.LoadOptions) (*Chain, error) {
	c, err := t.NewChain(name)
	if err != nil {
		return nil, err
	}
	if err := c.Load(ctx, opts); err != nil {
		return nil, err
	}
	return c, nil
}

// NewBaseChain returns an unloaded base chain handle.
func (t *Table) NewBaseChain(name string, spec BaseChainSpec) (*BaseChain, error) {
	if err := checkName("chain", name); err != nil {
		return nil, err
	}
	if err := spec.Validate(t.family); err != nil {
		return nil, err
	}
	return &BaseChain{Chain: t.newChain(name), spec: spec}, nil
}

// BaseChain creates and loads a base chain.
func (t *Table) BaseChain(ctx context.Context, name string, spec BaseChainSpec, opts nft.LoadOptions) (*BaseChain, error) {
	c, err := t.NewBaseChain(name, spec)
	if err != nil {
		return nil, err
	}
	if err := c.Load(ctx, opts); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSet returns an unloaded set handle.
func (t *Table) NewSet(name string, spec SetSpec) (*Set, error) {
	if err := checkName("set", name); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Set{
		resource: resource{
			rs:   t.rs,
			gate: nft.NewGate("set", name, t.gate, t.rs.opts.ReadyTimeout),
		},
		table: t,
		name:  name,
		spec:  spec,
	}, nil
}

// Set creates and loads a set.
func (t *Table) Set(ctx context.Context, name string, spec SetSpec, opts nft.LoadOptions) (*Set, error) {
	s, err := t.NewSet(name, spec)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx, opts); err != nil {
		return nil, err
	}
	return s, nil
}

// NewCounter returns an unloaded counter handle.
func (t *Table) NewCounter(name string) (*Counter, error) {
	if err := checkName("counter", name); err != nil {
		return nil, err
	}
	return &Counter{
		resource: resource{
			rs:   t.rs,
			gate: nft.NewGate("counter", name, t.gate, t.rs.opts.ReadyTimeout),
		},
		table: t,
		name:  name,
	}, nil
}

// Counter creates and loads a named counter.
func (t *Table) Counter(ctx context.Context, name string, opts nft.LoadOptions) (*Counter, error) {
	c, err := t.NewCounter(name)
	if err != nil {
		return nil, err
	}
	if err := c.Load(ctx, opts); err != nil {
		return nil, err
	}
	return c, nil
}

// loadChild runs create once the table is ready. Children of a table that
// is still loading wait for it instead of failing with "no such table".
func (t *Table) loadChild(create func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := t.gate.Ready(ctx); err != nil {
			return err
		}
		return create(ctx)
	}
}
