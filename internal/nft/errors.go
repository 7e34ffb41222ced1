package nft

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy. Match with errors.Is.
var (
	ErrAlreadyExists = errors.New("object already exists")
	ErrNotFound      = errors.New("no such object")
	ErrCommandFailed = errors.New("command failed")
	ErrTimeout       = errors.New("timed out")
	ErrSessionDead   = errors.New("session is not running")
	ErrUsage         = errors.New("usage fault")

	// ErrSessionClosed is the dead-session error after Close. It is never
	// retried: no restart can bring a closed session back.
	ErrSessionClosed = fmt.Errorf("%w: closed", ErrSessionDead)
)

// errorClasses maps substrings of the tool's error text to a kind.
// The first match wins; anything else is ErrCommandFailed.
var errorClasses = []struct {
	substr string
	kind   error
}{
	{"File exists", ErrAlreadyExists},
	{"No such file or directory", ErrNotFound},
}

// CommandError is returned when the tool answered a command with an error line.
type CommandError struct {
	Command Command
	Kind    error
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("nft %q: %v: %s", e.Command.String(), e.Kind, firstLine(e.Output))
}

// Unwrap exposes the kind so errors.Is(err, ErrNotFound) works.
func (e *CommandError) Unwrap() error {
	return e.Kind
}

// classifyError builds a CommandError from the captured error lines. Only
// the first non-blank line is the tool's message; the lines after it echo
// the offending input, which may contain anything.
func classifyError(cmd Command, lines []string) error {
	raw := strings.Join(lines, "\n")
	head := ""
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			head = l
			break
		}
	}
	kind := ErrCommandFailed
	for _, c := range errorClasses {
		if strings.Contains(head, c.substr) {
			kind = c.kind
			break
		}
	}
	return &CommandError{Command: cmd, Kind: kind, Output: raw}
}

// TimeoutError is returned when the tool stopped answering mid-exchange.
// Partial holds whatever was framed before the exchange was abandoned.
type TimeoutError struct {
	Command Command
	After   time.Duration
	Partial Response
	// Cause is the context error when the caller's context ended first.
	Cause error
}

func (e *TimeoutError) Error() string {
	what := fmt.Sprintf("nft %q", e.Command.String())
	if e.Command.Empty() {
		what = "nft startup"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s abandoned: %v", what, e.Cause)
	}
	return fmt.Sprintf("%s: no response within %s", what, e.After)
}

// Is reports ErrTimeout for every abandoned exchange.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

func deadErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSessionDead, fmt.Sprintf(format, args...))
}

func closedErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSessionClosed, fmt.Sprintf(format, args...))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
