// Package ruleset models nftables objects on top of an nft session.
//
// Every object follows the same lifecycle: it is created unloaded, Load
// issues the create command, and Delete removes it for good. Operations
// other than Load wait for the object to finish loading, so a handle can be
// shared with other goroutines before Load returns. Using an object after it
// or one of its parents was deleted returns an error wrapping nft.ErrUsage.
//
//	rs := ruleset.New(session, ruleset.Options{})
//	t, _ := rs.Table(ctx, "filter", ruleset.FamilyINet, nft.LoadOptions{})
//	web, _ := t.Chain(ctx, "web", nft.LoadOptions{})
//	input, _ := t.BaseChain(ctx, "input", ruleset.BaseChainSpec{
//		Type: ruleset.TypeFilter, Hook: ruleset.HookInput, Policy: ruleset.PolicyDrop,
//	}, nft.LoadOptions{})
//	input.AppendRule(ctx, "tcp dport 443 jump web")
//	web.Delete(ctx) // removes the jump in input first
package ruleset
