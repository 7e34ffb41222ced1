package config

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Render writes cfg as formatted HCL. Empty optional fields are omitted.
func Render(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	version := cfg.SchemaVersion
	if version == "" {
		version = CurrentSchemaVersion
	}
	body.SetAttributeValue("schema_version", cty.StringVal(version))

	if s := cfg.Session; s != nil {
		body.AppendNewline()
		renderSession(body.AppendNewBlock("session", nil).Body(), s)
	}
	if l := cfg.Log; l != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("log", nil).Body()
		setString(b, "level", l.Level)
		if l.JSON {
			b.SetAttributeValue("json", cty.True)
		}
	}
	if m := cfg.Metrics; m != nil {
		body.AppendNewline()
		setString(body.AppendNewBlock("metrics", nil).Body(), "listen", m.Listen)
	}
	for _, t := range cfg.Tables {
		body.AppendNewline()
		renderTable(body.AppendNewBlock("table", []string{t.Name}).Body(), t)
	}

	return hclwrite.Format(f.Bytes())
}

func renderSession(b *hclwrite.Body, s *SessionConfig) {
	setString(b, "binary", s.Binary)
	setStrings(b, "args", s.Args)
	setString(b, "namespace", s.Namespace)
	setString(b, "prompt", s.Prompt)
	setString(b, "error_marker", s.ErrorMarker)
	setString(b, "timeout", s.Timeout)
	setString(b, "ready_timeout", s.ReadyTimeout)

	if r := s.Retry; r != nil {
		rb := b.AppendNewBlock("retry", nil).Body()
		if r.MaxAttempts != 0 {
			rb.SetAttributeValue("max_attempts", cty.NumberIntVal(int64(r.MaxAttempts)))
		}
		setString(rb, "initial_delay", r.InitialDelay)
		setString(rb, "max_delay", r.MaxDelay)
	}
}

func renderTable(b *hclwrite.Body, t TableConfig) {
	setString(b, "family", t.Family)
	if t.FlushExisting {
		b.SetAttributeValue("flush_existing", cty.True)
	}
	if t.Reuse {
		b.SetAttributeValue("reuse", cty.True)
	}

	for _, s := range t.Sets {
		b.AppendNewline()
		sb := b.AppendNewBlock("set", []string{s.Name}).Body()
		sb.SetAttributeValue("type", cty.StringVal(s.Type))
		setStrings(sb, "flags", s.Flags)
		setString(sb, "timeout", s.Timeout)
		setString(sb, "gc_interval", s.GCInterval)
		if s.Size > 0 {
			sb.SetAttributeValue("size", cty.NumberIntVal(int64(s.Size)))
		}
		setString(sb, "policy", s.Policy)
		if s.AutoMerge {
			sb.SetAttributeValue("auto_merge", cty.True)
		}
		setStrings(sb, "elements", s.Elements)
	}
	for _, c := range t.Counters {
		b.AppendNewline()
		b.AppendNewBlock("counter", []string{c.Name})
	}
	for _, c := range t.Chains {
		b.AppendNewline()
		cb := b.AppendNewBlock("chain", []string{c.Name}).Body()
		setString(cb, "type", c.Type)
		setString(cb, "hook", c.Hook)
		setString(cb, "device", c.Device)
		setString(cb, "priority", c.Priority)
		setString(cb, "policy", c.Policy)
		setStrings(cb, "rules", c.Rules)
	}
}

func setString(b *hclwrite.Body, name, value string) {
	if value != "" {
		b.SetAttributeValue(name, cty.StringVal(value))
	}
}

func setStrings(b *hclwrite.Body, name string, values []string) {
	if len(values) > 0 {
		b.SetAttributeValue(name, toCtyStringList(values))
	}
}

func toCtyStringList(values []string) cty.Value {
	vals := make([]cty.Value, len(values))
	for i, s := range values {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
