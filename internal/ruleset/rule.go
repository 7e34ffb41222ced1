package ruleset

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"grimm.is/nftctl/internal/nft"
)

// Rule is one statement in a chain. Its handle is 0 until the rule is
// attached by Insert or Append, and 0 again once the rule is removed: by
// Delete, by a flush of its chain or table, or by the jump cleanup of a
// deleted target chain.
type Rule struct {
	chain *Chain

	mu        sync.Mutex
	statement string
	handle    uint64
}

func (r *Rule) Chain() *Chain { return r.chain }

// Handle returns the kernel handle, or 0 when the rule is not attached.
func (r *Rule) Handle() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

func (r *Rule) Statement() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statement
}

func (r *Rule) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == 0 {
		return r.statement
	}
	return r.statement + " # handle " + strconv.FormatUint(r.handle, 10)
}

// Insert adds the rule before anchor, or at the top of the chain when
// anchor is nil.
func (r *Rule) Insert(ctx context.Context, anchor *Rule) error {
	return r.attach(ctx, "insert", anchor)
}

// Append adds the rule after anchor, or at the end of the chain when anchor
// is nil.
func (r *Rule) Append(ctx context.Context, anchor *Rule) error {
	return r.attach(ctx, "add", anchor)
}

func (r *Rule) attach(ctx context.Context, verb string, anchor *Rule) error {
	var position uint64
	if anchor != nil {
		if anchor == r {
			return usageErrorf("rule cannot be positioned relative to itself")
		}
		if anchor.chain != r.chain {
			return usageErrorf("anchor rule belongs to chain %s, not %s", anchor.chain.name, r.chain.name)
		}
		if position = anchor.Handle(); position == 0 {
			return usageErrorf("anchor rule is not attached")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle != 0 {
		return usageErrorf("rule is already attached with handle %d", r.handle)
	}
	if r.statement == "" || strings.ContainsAny(r.statement, "\r\n") {
		return usageErrorf("rule statement must be a single non-empty line")
	}

	tokens := r.chain.cmd(verb, "rule")
	if position != 0 {
		tokens = append(tokens, "position", strconv.FormatUint(position, 10))
	}
	tokens = append(tokens, r.statement)

	out, err := r.chain.run(ctx, tokens...)
	if err != nil {
		return err
	}
	handle, err := nft.ParseHandle(out)
	if err != nil {
		return err
	}
	r.handle = handle
	r.chain.table.track(r, handle)
	return nil
}

// detach zeroes the handle after the rule was removed by another path.
func (r *Rule) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = 0
}

// Delete removes the rule from its chain.
func (r *Rule) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == 0 {
		return usageErrorf("rule is not attached")
	}
	_, err := r.chain.run(ctx, r.chain.cmd("delete", "rule", "handle", strconv.FormatUint(r.handle, 10))...)
	if err != nil {
		return err
	}
	r.chain.table.untrack(r.chain.name, r.handle)
	r.handle = 0
	return nil
}

// Replace swaps the statement of an attached rule in place. The handle
// does not change.
func (r *Rule) Replace(ctx context.Context, statement string) error {
	statement = strings.TrimSpace(statement)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == 0 {
		return usageErrorf("rule is not attached")
	}
	if statement == "" || strings.ContainsAny(statement, "\r\n") {
		return usageErrorf("rule statement must be a single non-empty line")
	}

	_, err := r.chain.run(ctx, r.chain.cmd("replace", "rule", "handle", strconv.FormatUint(r.handle, 10), statement)...)
	if err != nil {
		return err
	}
	r.statement = statement
	return nil
}
