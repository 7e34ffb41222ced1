// Package nft drives a long-lived `nft --interactive` process.
//
// # Overview
//
// A [Session] owns one interactive nft subprocess and turns it into a
// single-threaded RPC channel: callers hand it a [Command], the session
// writes one line to the tool, then reads until the prompt comes back.
// Every exchange holds the session lock, so concurrent callers queue and
// their commands never share pipe bytes.
//
// # Framing
//
// The interactive protocol has no length prefix, so each output line is
// classified by a small state machine ([Framer]):
//
//	AwaitingEcho → AwaitingBody → AwaitingPrompt → Done
//
// Lines are matched against a table of prefix predicates (prompt, error
// marker, echo of the submitted command, body). A prompt ends the exchange
// in any state.
//
// # Errors
//
// Failures are classified into [ErrAlreadyExists], [ErrNotFound],
// [ErrCommandFailed], [ErrTimeout], [ErrSessionDead] and [ErrUsage]. Use
// errors.Is to branch on them; [CommandError] and [TimeoutError] carry the
// raw diagnostics. [ErrSessionClosed] is the dead-session error after Close.
//
// # Resources
//
// [Gate] implements the uninitialized → initialized → deleted discipline
// shared by tables, chains, sets and counters, and [ScanJumps] finds the
// rules that must go before a chain can be deleted.
//
// # Recovery
//
// The driver never retries. [RestartingExecutor] is the policy layer that
// restarts a timed-out or dead session and resubmits, a bounded number of
// times.
package nft
