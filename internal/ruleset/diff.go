package ruleset

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var (
	noiseHandleRe  = regexp.MustCompile(`\s*#\s*handle \d+`)
	noiseCounterRe = regexp.MustCompile(`\s*packets \d+ bytes \d+`)
)

// StripNoise removes handles and counter values from a listing so two
// listings of the same ruleset compare equal.
func StripNoise(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = noiseHandleRe.ReplaceAllString(line, "")
		line = noiseCounterRe.ReplaceAllString(line, "")
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Diff returns a unified diff of two listings after StripNoise, or "" when
// they match.
func Diff(from, to, fromName, toName string) string {
	a, b := StripNoise(from), StripNoise(to)
	if a == b {
		return ""
	}
	text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a + "\n"),
		B:        difflib.SplitLines(b + "\n"),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
	return text
}
