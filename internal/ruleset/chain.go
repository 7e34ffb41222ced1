package ruleset

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"grimm.is/nftctl/internal/nft"
)

// Chain is a regular chain: it only sees packets through jump or goto.
type Chain struct {
	resource
	table *Table
	name  string
}

func (c *Chain) Name() string  { return c.name }
func (c *Chain) Table() *Table { return c.table }

func (c *Chain) args() []string {
	return []string{string(c.table.family), c.table.name, c.name}
}

func (c *Chain) cmd(verb, object string, extra ...string) []string {
	out := append([]string{verb, object}, c.args()...)
	return append(out, extra...)
}

// Load creates the chain. FlushExisting empties an existing chain.
func (c *Chain) Load(ctx context.Context, opts nft.LoadOptions) error {
	return c.gate.Load(ctx, opts,
		c.table.loadChild(func(ctx context.Context) error {
			return c.do(ctx, c.cmd("create", "chain")...)
		}),
		c.flush,
	)
}

func (c *Chain) flush(ctx context.Context) error {
	if err := c.do(ctx, c.cmd("flush", "chain")...); err != nil {
		return err
	}
	c.table.detachAll(func(k ruleKey) bool { return k.chain == c.name })
	return nil
}

// Flush removes every rule from the chain.
func (c *Chain) Flush(ctx context.Context) error {
	if err := c.gate.Ready(ctx); err != nil {
		return err
	}
	return c.flush(ctx)
}

// Delete flushes the chain, removes every rule in the table that jumps to
// it, then deletes it. A failure part way leaves the earlier steps applied.
// Rules returned by InsertRule or AppendRule that were removed on the way
// are detached: their Handle is 0 and Delete on them is a usage fault.
func (c *Chain) Delete(ctx context.Context) error {
	return c.gate.Delete(ctx, c.remove)
}

func (c *Chain) remove(ctx context.Context) error {
	if err := c.flush(ctx); err != nil {
		return err
	}
	if _, err := c.table.RemoveJumps(ctx, c.name); err != nil {
		return err
	}
	return c.do(ctx, c.cmd("delete", "chain")...)
}

// List returns the chain listing with handles.
func (c *Chain) List(ctx context.Context) (string, error) {
	return c.run(ctx, c.cmd("list", "chain")...)
}

// NewRule returns an unattached rule for this chain.
func (c *Chain) NewRule(statement string) *Rule {
	return &Rule{chain: c, statement: strings.TrimSpace(statement)}
}

// InsertRule puts statement at the top of the chain.
func (c *Chain) InsertRule(ctx context.Context, statement string) (*Rule, error) {
	r := c.NewRule(statement)
	if err := r.Insert(ctx, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// AppendRule puts statement at the end of the chain.
func (c *Chain) AppendRule(ctx context.Context, statement string) (*Rule, error) {
	r := c.NewRule(statement)
	if err := r.Append(ctx, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// Rules returns the rules currently in the chain, in order. They are not the
// Rule values returned by InsertRule or AppendRule.
func (c *Chain) Rules(ctx context.Context) ([]*Rule, error) {
	listing, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return parseRules(c, listing), nil
}

var handleMarkerRe = regexp.MustCompile(`\s*#\s*handle\s+\d+\s*$`)

// parseRules picks the handle-annotated lines inside the chain block.
func parseRules(c *Chain, listing string) []*Rule {
	var rules []*Rule
	inside := false

	sc := bufio.NewScanner(strings.NewReader(listing))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "chain ") && strings.Contains(line, "{") {
			inside = true
			continue
		}
		if !inside {
			continue
		}
		if line == "}" {
			inside = false
			continue
		}

		handle, err := nft.ParseHandle(line)
		if err != nil {
			continue
		}
		stmt := line
		if i := handleMarkerRe.FindStringIndex(stmt); i != nil {
			stmt = strings.TrimSpace(stmt[:i[0]])
		}
		rules = append(rules, &Rule{chain: c, statement: stmt, handle: handle})
	}
	return rules
}

// BaseChain is a chain attached to a netfilter hook.
type BaseChain struct {
	*Chain
	spec BaseChainSpec
}

// Spec returns the hook parameters.
func (b *BaseChain) Spec() BaseChainSpec {
	return b.spec
}

// Load creates the chain. FlushExisting deletes and recreates an existing
// chain so changed hook parameters take effect.
func (b *BaseChain) Load(ctx context.Context, opts nft.LoadOptions) error {
	return b.gate.Load(ctx, opts, b.table.loadChild(b.create), b.recreate)
}

func (b *BaseChain) create(ctx context.Context) error {
	if b.spec.Device != "" && b.rs.opts.CheckDevice != nil {
		if err := b.rs.opts.CheckDevice(b.spec.Device); err != nil {
			return fmt.Errorf("%w: chain %s: %v", nft.ErrNotFound, b.name, err)
		}
	}
	return b.do(ctx, b.cmd("create", "chain", b.spec.body())...)
}

func (b *BaseChain) recreate(ctx context.Context) error {
	if err := b.remove(ctx); err != nil {
		return err
	}
	return b.create(ctx)
}
