package nft

import (
	"regexp"
	"strconv"
	"strings"
)

// Command is one line of the interactive protocol as an ordered list of
// tokens. Tokens are written as-is; quoting is the caller's job.
type Command struct {
	tokens []string
}

// NewCommand copies tokens into an immutable Command. Empty tokens are dropped
// so optional clauses can be passed unconditionally.
func NewCommand(tokens ...string) Command {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return Command{tokens: out}
}

// Tokens returns a copy of the command tokens.
func (c Command) Tokens() []string {
	return append([]string(nil), c.tokens...)
}

// Verb is the first token ("add", "list", ...), or "" for an empty command.
func (c Command) Verb() string {
	if len(c.tokens) == 0 {
		return ""
	}
	return c.tokens[0]
}

// Empty reports whether the command has no tokens.
func (c Command) Empty() bool {
	return len(c.tokens) == 0
}

// String joins the tokens with single spaces, exactly as written to the tool.
func (c Command) String() string {
	return strings.Join(c.tokens, " ")
}

// Response is one framed exchange.
type Response struct {
	Echo  string
	Body  []string
	Error []string
}

// Text returns the body lines joined by newlines.
func (r Response) Text() string {
	return strings.Join(r.Body, "\n")
}

var handleRe = regexp.MustCompile(`#\s*handle\s+(\d+)`)

// ParseHandle extracts the first "# handle N" value from a response.
func ParseHandle(text string) (uint64, error) {
	m := handleRe.FindStringSubmatch(text)
	if m == nil {
		return 0, &CommandError{Kind: ErrCommandFailed, Output: "no rule handle in response: " + text}
	}
	h, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || h == 0 {
		return 0, &CommandError{Kind: ErrCommandFailed, Output: "invalid rule handle in response: " + text}
	}
	return h, nil
}
