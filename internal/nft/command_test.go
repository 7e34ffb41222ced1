package nft

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand("add", "", "table", "inet", "filter")

	assert.Equal(t, "add table inet filter", cmd.String())
	assert.Equal(t, "add", cmd.Verb())
	assert.False(t, cmd.Empty())
	assert.True(t, NewCommand().Empty())
	assert.Equal(t, "", NewCommand("").Verb())
}

func TestCommand_Immutable(t *testing.T) {
	tokens := []string{"list", "tables"}
	cmd := NewCommand(tokens...)
	tokens[0] = "flush"

	got := cmd.Tokens()
	got[1] = "ruleset"

	assert.Equal(t, "list tables", cmd.String())
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("add rule inet t c1 jump c2 # handle 7")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), h)

	h, err = ParseHandle("first line\nadd rule ip t c counter #handle 42\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)

	_, err = ParseHandle("add table inet t")
	assert.ErrorIs(t, err, ErrCommandFailed)

	_, err = ParseHandle("# handle 0")
	assert.ErrorIs(t, err, ErrCommandFailed)
}

func TestClassifyError(t *testing.T) {
	cmd := NewCommand("create", "table", "inet", "t")

	tests := []struct {
		text string
		want error
	}{
		{"Error: Could not process rule: File exists", ErrAlreadyExists},
		{"Error: Could not process rule: No such file or directory", ErrNotFound},
		{"Error: Could not process rule: Device or resource busy", ErrCommandFailed},
		{"Error: syntax error, unexpected newline", ErrCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			err := classifyError(cmd, []string{tt.text, cmd.String(), "^^^"})
			assert.ErrorIs(t, err, tt.want)

			var ce *CommandError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, cmd.String(), ce.Command.String())
			assert.Contains(t, ce.Error(), tt.text)
			assert.NotContains(t, ce.Error(), "^^^", "only the first line goes in the message")
		})
	}
}

func TestClassifyError_IgnoresEchoedInput(t *testing.T) {
	cmd := NewCommand("add", "rule", "ip", "t", "c", `comment "File exists"`)
	lines := []string{
		"Error: Could not process rule: Device or resource busy",
		cmd.String(),
		"^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^",
	}

	err := classifyError(cmd, lines)
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.NotErrorIs(t, err, ErrAlreadyExists)

	err = classifyError(cmd, append([]string{""}, "Error: Could not process rule: No such file or directory"))
	assert.ErrorIs(t, err, ErrNotFound, "blank lines before the message are skipped")
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{Command: NewCommand("list", "ruleset"), After: 2 * time.Second})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrSessionDead)
	assert.Contains(t, err.Error(), "2s")

	wrapped := fmt.Errorf("listing: %w", &TimeoutError{Cause: errors.New("context canceled")})
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.Contains(t, wrapped.Error(), "startup")
}

func TestUsageAndDeadErrors(t *testing.T) {
	assert.ErrorIs(t, usageErrorf("rule %d", 1), ErrUsage)
	assert.ErrorIs(t, deadErrorf("gone"), ErrSessionDead)
	assert.Equal(t, "usage fault: rule 1", usageErrorf("rule %d", 1).Error())
}
