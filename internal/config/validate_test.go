package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name:  "bad timeout",
			cfg:   Config{Session: &SessionConfig{Timeout: "fast"}},
			field: "session.timeout",
		},
		{
			name:  "negative attempts",
			cfg:   Config{Session: &SessionConfig{Retry: &RetryConfig{MaxAttempts: -1}}},
			field: "session.retry.max_attempts",
		},
		{
			name:  "blank prompt",
			cfg:   Config{Session: &SessionConfig{Prompt: "   "}},
			field: "session.prompt",
		},
		{
			name:  "metrics listen",
			cfg:   Config{Metrics: &MetricsConfig{Listen: "9657"}},
			field: "metrics.listen",
		},
		{
			name:  "unnamed table",
			cfg:   Config{Tables: []TableConfig{{Family: "ip"}}},
			field: "table",
		},
		{
			name: "duplicate table",
			cfg: Config{Tables: []TableConfig{
				{Name: "t", Family: "ip"},
				{Name: "t", Family: "ip"},
			}},
			field: "table[t]",
		},
		{
			name:  "flush and reuse",
			cfg:   Config{Tables: []TableConfig{{Name: "t", Family: "ip", FlushExisting: true, Reuse: true}}},
			field: "table[t]",
		},
		{
			name: "set without type",
			cfg: Config{Tables: []TableConfig{{Name: "t", Family: "ip",
				Sets: []SetConfig{{Name: "s"}}}}},
			field: "table[t].set[s]",
		},
		{
			name: "base chain options without hook",
			cfg: Config{Tables: []TableConfig{{Name: "t", Family: "ip",
				Chains: []ChainConfig{{Name: "c", Policy: "drop"}}}}},
			field: "table[t].chain[c]",
		},
		{
			name: "base chain without type",
			cfg: Config{Tables: []TableConfig{{Name: "t", Family: "ip",
				Chains: []ChainConfig{{Name: "c", Hook: "input"}}}}},
			field: "table[t].chain[c]",
		},
		{
			name: "multi-line rule",
			cfg: Config{Tables: []TableConfig{{Name: "t", Family: "ip",
				Chains: []ChainConfig{{Name: "c", Rules: []string{"accept\ndrop"}}}}}},
			field: "table[t].chain[c].rules[0]",
		},
		{
			name: "duplicate chain",
			cfg: Config{Tables: []TableConfig{{Name: "t", Family: "ip",
				Chains: []ChainConfig{{Name: "c"}, {Name: "c"}}}}},
			field: "table[t]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_SameNameDifferentKinds(t *testing.T) {
	cfg := Config{Tables: []TableConfig{{
		Name:     "t",
		Family:   "inet",
		Sets:     []SetConfig{{Name: "x", Type: "ipv4_addr"}},
		Counters: []CounterConfig{{Name: "x"}},
		Chains:   []ChainConfig{{Name: "x"}},
	}}}
	assert.NoError(t, cfg.Validate())
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	assert.Equal(t, "a: bad; b: worse", errs.Error())
	assert.True(t, errs.HasErrors())
	assert.Empty(t, ValidationErrors{}.Error())
}
