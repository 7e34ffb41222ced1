package nft

import (
	"bufio"
	"bytes"
	"strings"
)

// Defaults for the interactive nft shell.
const (
	DefaultPrompt      = "nft> "
	DefaultErrorMarker = "Error:"
)

// FrameState is the position of a Framer inside one exchange.
type FrameState int

const (
	AwaitingEcho FrameState = iota
	AwaitingBody
	AwaitingPrompt
	Done
)

func (s FrameState) String() string {
	switch s {
	case AwaitingEcho:
		return "awaiting-echo"
	case AwaitingBody:
		return "awaiting-body"
	case AwaitingPrompt:
		return "awaiting-prompt"
	case Done:
		return "done"
	}
	return "unknown"
}

// LineKind is the classification of one output line.
type LineKind int

const (
	LinePrompt LineKind = iota
	LineError
	LineEcho
	LineBody
)

func (k LineKind) String() string {
	return [...]string{"prompt", "error", "echo", "body"}[k]
}

// linePredicates are checked in order; the first match classifies the line.
// Body is the fallback and has no entry.
var linePredicates = []struct {
	kind  LineKind
	match func(f *Framer, line string) bool
}{
	{LinePrompt, func(f *Framer, line string) bool {
		return strings.TrimSpace(line) == strings.TrimSpace(f.prompt)
	}},
	{LineError, func(f *Framer, line string) bool {
		return strings.HasPrefix(strings.TrimLeft(line, " \t"), f.errorMarker)
	}},
	{LineEcho, func(f *Framer, line string) bool {
		return f.state == AwaitingEcho && strings.TrimSpace(line) == f.command.String()
	}},
}

// Framer splits the output of one exchange into echo, body and error lines.
// It has no I/O of its own, so it can be driven by synthetic line streams.
type Framer struct {
	command     Command
	prompt      string
	errorMarker string
	state       FrameState
	resp        Response
}

// NewFramer returns a Framer for cmd, waiting for its echo.
func NewFramer(cmd Command, prompt, errorMarker string) *Framer {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if errorMarker == "" {
		errorMarker = DefaultErrorMarker
	}
	return &Framer{
		command:     cmd,
		prompt:      prompt,
		errorMarker: errorMarker,
	}
}

// Classify returns the kind of line in the framer's current state.
func (f *Framer) Classify(line string) LineKind {
	for _, p := range linePredicates {
		if p.match(f, line) {
			return p.kind
		}
	}
	return LineBody
}

// Feed consumes one line and reports whether the exchange is complete.
func (f *Framer) Feed(line string) bool {
	if f.state == Done {
		return true
	}

	kind := f.Classify(line)
	if kind == LinePrompt {
		f.state = Done
		return true
	}

	switch f.state {
	case AwaitingEcho:
		switch kind {
		case LineEcho:
			f.resp.Echo = strings.TrimSpace(line)
			f.state = AwaitingBody
		case LineError:
			f.resp.Error = append(f.resp.Error, line)
			f.state = AwaitingPrompt
		default:
			// The tool does not always echo; the first line is then body.
			f.appendBody(line)
			f.state = AwaitingBody
		}
	case AwaitingBody:
		if kind == LineError {
			f.resp.Error = append(f.resp.Error, line)
			f.state = AwaitingPrompt
			break
		}
		f.appendBody(line)
	case AwaitingPrompt:
		// nft follows the error with the offending input and a caret line.
		f.resp.Error = append(f.resp.Error, line)
	}
	return false
}

func (f *Framer) appendBody(line string) {
	if strings.TrimSpace(line) == "" && len(f.resp.Body) == 0 {
		return
	}
	f.resp.Body = append(f.resp.Body, line)
}

// State returns the current framing state.
func (f *Framer) State() FrameState {
	return f.state
}

// Response returns what has been framed so far.
func (f *Framer) Response() Response {
	r := f.resp
	r.Body = trimTrailingBlank(append([]string(nil), r.Body...))
	r.Error = append([]string(nil), r.Error...)
	return r
}

// Result returns the body text, or the classified error if an error line
// was captured.
func (f *Framer) Result() (string, error) {
	if len(f.resp.Error) > 0 {
		return "", classifyError(f.command, f.resp.Error)
	}
	return f.Response().Text(), nil
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitTokens is a bufio.SplitFunc that yields newline-terminated lines, and
// yields the prompt as a token of its own when a line starts with it. The
// tool prints the prompt without a trailing newline, so plain line
// splitting would block on it forever.
func splitTokens(prompt string) bufio.SplitFunc {
	p := []byte(prompt)
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if len(p) > 0 {
			if bytes.HasPrefix(data, p) {
				return len(p), p, nil
			}
			if !atEOF && len(data) < len(p) && bytes.HasPrefix(p, data) {
				return 0, nil, nil
			}
		}
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			return i + 1, bytes.TrimRight(data[:i], "\r"), nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
