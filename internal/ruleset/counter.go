package ruleset

import (
	"context"
	"regexp"
	"strconv"

	"grimm.is/nftctl/internal/nft"
)

// CounterValue is a snapshot of a named counter.
type CounterValue struct {
	Packets uint64
	Bytes   uint64
}

var counterValueRe = regexp.MustCompile(`packets\s+(\d+)\s+bytes\s+(\d+)`)

// parseCounter returns nil when the listing carries no values.
func parseCounter(listing string) *CounterValue {
	m := counterValueRe.FindStringSubmatch(listing)
	if m == nil {
		return nil
	}
	packets, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return nil
	}
	bytes, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return nil
	}
	return &CounterValue{Packets: packets, Bytes: bytes}
}

// Counter is a named (stateful object) counter.
type Counter struct {
	resource
	table *Table
	name  string
}

func (c *Counter) Name() string  { return c.name }
func (c *Counter) Table() *Table { return c.table }

// Ref is the statement rules use to update the counter.
func (c *Counter) Ref() string {
	return "counter name " + c.name
}

func (c *Counter) cmd(verb string) []string {
	return []string{verb, "counter", string(c.table.family), c.table.name, c.name}
}

// Load creates the counter. FlushExisting zeroes an existing counter.
func (c *Counter) Load(ctx context.Context, opts nft.LoadOptions) error {
	return c.gate.Load(ctx, opts,
		c.table.loadChild(func(ctx context.Context) error {
			return c.do(ctx, c.cmd("create")...)
		}),
		func(ctx context.Context) error {
			return c.do(ctx, c.cmd("reset")...)
		},
	)
}

// Get reads the current values. It returns nil when the listing has none.
func (c *Counter) Get(ctx context.Context) (*CounterValue, error) {
	out, err := c.run(ctx, c.cmd("list")...)
	if err != nil {
		return nil, err
	}
	return parseCounter(out), nil
}

// Reset zeroes the counter and returns the values it held.
func (c *Counter) Reset(ctx context.Context) (*CounterValue, error) {
	out, err := c.run(ctx, c.cmd("reset")...)
	if err != nil {
		return nil, err
	}
	return parseCounter(out), nil
}

// Flush zeroes the counter.
func (c *Counter) Flush(ctx context.Context) error {
	_, err := c.Reset(ctx)
	return err
}

// Delete removes the counter. nft refuses while a rule still references it.
func (c *Counter) Delete(ctx context.Context) error {
	return c.gate.Delete(ctx, func(ctx context.Context) error {
		return c.do(ctx, c.cmd("delete")...)
	})
}

// List returns the counter listing.
func (c *Counter) List(ctx context.Context) (string, error) {
	return c.run(ctx, c.cmd("list")...)
}
