package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError is one problem found in a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every problem found in a config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the structure of the config. Families, hooks and other
// nft vocabulary are checked when a plan is built, not here.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if s := c.Session; s != nil {
		checkDuration(&errs, "session.timeout", s.Timeout)
		checkDuration(&errs, "session.ready_timeout", s.ReadyTimeout)
		if s.Prompt != "" && strings.TrimSpace(s.Prompt) == "" {
			errs.add("session.prompt", "must not be blank")
		}
		if r := s.Retry; r != nil {
			if r.MaxAttempts < 0 {
				errs.add("session.retry.max_attempts", "must not be negative")
			}
			checkDuration(&errs, "session.retry.initial_delay", r.InitialDelay)
			checkDuration(&errs, "session.retry.max_delay", r.MaxDelay)
		}
	}

	if m := c.Metrics; m != nil && m.Listen != "" {
		if _, _, err := net.SplitHostPort(m.Listen); err != nil {
			errs.add("metrics.listen", "%v", err)
		}
	}

	seenTables := map[string]bool{}
	for _, t := range c.Tables {
		field := fmt.Sprintf("table[%s]", t.Name)
		if t.Name == "" {
			errs.add("table", "name is required")
			continue
		}
		key := t.Family + "/" + t.Name
		if seenTables[key] {
			errs.add(field, "duplicate table in family %s", t.Family)
		}
		seenTables[key] = true
		if t.FlushExisting && t.Reuse {
			errs.add(field, "flush_existing and reuse are mutually exclusive")
		}
		validateTable(&errs, field, t)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTable(errs *ValidationErrors, field string, t TableConfig) {
	names := map[string]string{}
	claim := func(kind, name string) {
		if prev, ok := names[name]; ok && prev == kind {
			errs.add(field, "duplicate %s %q", kind, name)
		}
		names[name] = kind
	}

	for _, s := range t.Sets {
		claim("set", s.Name)
		sf := fmt.Sprintf("%s.set[%s]", field, s.Name)
		if s.Type == "" {
			errs.add(sf, "type is required")
		}
		if s.Size < 0 {
			errs.add(sf, "size must not be negative")
		}
		checkDuration(errs, sf+".timeout", s.Timeout)
		checkDuration(errs, sf+".gc_interval", s.GCInterval)
	}
	for _, c := range t.Counters {
		claim("counter", c.Name)
	}
	for _, c := range t.Chains {
		claim("chain", c.Name)
		cf := fmt.Sprintf("%s.chain[%s]", field, c.Name)
		if !c.IsBase() && (c.Type != "" || c.Priority != "" || c.Policy != "" || c.Device != "") {
			errs.add(cf, "type, priority, policy and device need a hook")
		}
		if c.IsBase() && c.Type == "" {
			errs.add(cf, "base chain needs a type")
		}
		for i, r := range c.Rules {
			if strings.TrimSpace(r) == "" {
				errs.add(fmt.Sprintf("%s.rules[%d]", cf, i), "empty rule")
			}
			if strings.ContainsAny(r, "\n\r") {
				errs.add(fmt.Sprintf("%s.rules[%d]", cf, i), "rule must be a single line")
			}
		}
	}
}

func checkDuration(errs *ValidationErrors, field, value string) {
	if _, err := ParseDuration(value, 0); err != nil {
		errs.add(field, "%v", err)
	}
}
