// Package i18n picks the message printer used for CLI output.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages output is formatted for.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// MatchLanguage returns the best supported match for a locale string such
// as "de_DE.UTF-8" or an Accept-Language style list.
func MatchLanguage(locale string) language.Tag {
	if !strings.Contains(locale, ",") {
		// Strip encoding and modifier (en_US.UTF-8@euro)
		if i := strings.IndexAny(locale, ".@"); i != -1 {
			locale = locale[:i]
		}
		if tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-")); err == nil {
			best, _, _ := matcher.Match(tag)
			return best
		}
	}
	tags, _, _ := language.ParseAcceptLanguage(locale)
	best, _, _ := matcher.Match(tags...)
	return best
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return NewPrinter(localeTag(os.Getenv))
}

func localeTag(getenv func(string) string) language.Tag {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := getenv(key); v != "" && v != "C" && v != "POSIX" {
			return MatchLanguage(v)
		}
	}
	return DefaultLang
}
