package ruleset

import (
	"context"

	"grimm.is/nftctl/internal/nft"
)

// resource is the dispatch shared by every object: run waits on the gate,
// exec does not (Load and the bodies of Delete already hold the gate).
type resource struct {
	rs   *Ruleset
	gate *nft.Gate
}

// State returns the lifecycle state.
func (r *resource) State() nft.State {
	return r.gate.State()
}

// Ready blocks until the object is loaded.
func (r *resource) Ready(ctx context.Context) error {
	return r.gate.Ready(ctx)
}

func (r *resource) run(ctx context.Context, tokens ...string) (string, error) {
	if err := r.gate.Ready(ctx); err != nil {
		return "", err
	}
	return r.exec(ctx, tokens...)
}

func (r *resource) exec(ctx context.Context, tokens ...string) (string, error) {
	return r.rs.exec.Execute(ctx, nft.NewCommand(tokens...))
}

// do is exec for commands whose output is not needed.
func (r *resource) do(ctx context.Context, tokens ...string) error {
	_, err := r.exec(ctx, tokens...)
	return err
}
