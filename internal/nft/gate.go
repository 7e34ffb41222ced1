package nft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle position of a resource.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// LoadOptions control what Load does when the object already exists.
type LoadOptions struct {
	// FlushExisting empties an existing object and then treats it as loaded.
	FlushExisting bool
	// Reuse treats an existing object as loaded without touching it.
	Reuse bool
}

// DefaultReadyTimeout bounds how long an operation waits for Load.
const DefaultReadyTimeout = 10 * time.Second

// Gate tracks whether a resource exists on the tool's side. Every operation
// other than Load calls Ready first, which waits for a concurrent Load to
// finish instead of sending commands for an object that is not there yet.
type Gate struct {
	kind    string
	name    string
	parent  *Gate
	timeout time.Duration

	mu      sync.Mutex
	state   State
	changed chan struct{}

	// lifecycle serializes Load and Delete on this gate.
	lifecycle sync.Mutex
}

// NewGate creates an uninitialized gate. A nil parent marks a root.
func NewGate(kind, name string, parent *Gate, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &Gate{
		kind:    kind,
		name:    name,
		parent:  parent,
		timeout: timeout,
		changed: make(chan struct{}),
	}
}

// Path names the gate and its ancestors, e.g. "table inet/filter chain input".
func (g *Gate) Path() string {
	self := g.kind + " " + g.name
	if g.parent == nil {
		return self
	}
	return g.parent.Path() + " " + self
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) set(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == s {
		return
	}
	g.state = s
	close(g.changed)
	g.changed = make(chan struct{})
}

// deletedAncestor returns the nearest deleted gate in g's chain, if any.
func (g *Gate) deletedAncestor() *Gate {
	for p := g; p != nil; p = p.parent {
		if p.State() == StateDeleted {
			return p
		}
	}
	return nil
}

func (g *Gate) usedAfterDelete(by *Gate) error {
	if by == g {
		return usageErrorf("%s used after delete", g.Path())
	}
	return usageErrorf("%s used after %s %s was deleted", g.Path(), by.kind, by.name)
}

// Ready returns nil once the gate is initialized. It blocks while a Load
// may still be running, up to the gate timeout or until ctx ends. A delete
// of any ancestor during the wait ends it with a usage fault.
func (g *Gate) Ready(ctx context.Context) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		// Take the wake channel before reading states, so a change made in
		// between still ends the wait.
		stop := make(chan struct{})
		wake := g.watch(stop)

		if d := g.deletedAncestor(); d != nil {
			close(stop)
			return g.usedAfterDelete(d)
		}
		if g.State() == StateInitialized {
			close(stop)
			return nil
		}

		if timer == nil {
			timer = time.NewTimer(g.timeout)
		}
		var err error
		select {
		case <-wake:
		case <-timer.C:
			err = fmt.Errorf("%w: %s not loaded within %s", ErrTimeout, g.Path(), g.timeout)
		case <-ctx.Done():
			err = fmt.Errorf("%w: waiting for %s: %w", ErrTimeout, g.Path(), ctx.Err())
		}
		close(stop)
		if err != nil {
			return err
		}
	}
}

// watch returns a channel that is closed when g or any ancestor changes
// state. The goroutines it starts for ancestors exit once stop is closed.
func (g *Gate) watch(stop <-chan struct{}) <-chan struct{} {
	g.mu.Lock()
	own := g.changed
	g.mu.Unlock()
	if g.parent == nil {
		return own
	}

	up := g.parent.watch(stop)
	out := make(chan struct{})
	go func() {
		defer close(out)
		select {
		case <-own:
		case <-up:
		case <-stop:
		}
	}()
	return out
}

// Load runs create and marks the gate initialized. When create reports
// ErrAlreadyExists, opts decide: FlushExisting runs flush, Reuse accepts the
// object as is, and otherwise the error is returned unchanged. Loading an
// initialized gate does nothing.
func (g *Gate) Load(ctx context.Context, opts LoadOptions, create, flush func(context.Context) error) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if d := g.deletedAncestor(); d != nil {
		return g.usedAfterDelete(d)
	}
	if g.State() == StateInitialized {
		return nil
	}

	err := create(ctx)
	if errors.Is(err, ErrAlreadyExists) {
		switch {
		case opts.FlushExisting && flush != nil:
			err = flush(ctx)
		case opts.FlushExisting, opts.Reuse:
			err = nil
		}
	}
	if err != nil {
		return err
	}

	g.set(StateInitialized)
	return nil
}

// Delete waits for the gate to be ready, runs fn and marks the gate deleted.
// If fn fails the gate stays initialized so the caller can retry.
func (g *Gate) Delete(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Ready(ctx); err != nil {
		return err
	}

	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if d := g.deletedAncestor(); d != nil {
		return g.usedAfterDelete(d)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	g.set(StateDeleted)
	return nil
}
