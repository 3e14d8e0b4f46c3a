package recognizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanOptions controls text post-processing.
type CleanOptions struct {
	NormalizeForm      string            `mapstructure:"normalize_form" yaml:"normalize_form" json:"normalize_form"` // "NFC" (default), "NFKC", "NFD", "NFKD", "none"
	CollapseWhitespace bool              `mapstructure:"collapse_whitespace" yaml:"collapse_whitespace" json:"collapse_whitespace"`
	RemoveZeroWidth    bool              `mapstructure:"remove_zero_width" yaml:"remove_zero_width" json:"remove_zero_width"`
	ReplaceMap         map[string]string `mapstructure:"replace" yaml:"replace,omitempty" json:"replace,omitempty"`
}

// DefaultCleanOptions returns the defaults applied to recognizer output.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		NormalizeForm:      "NFC",
		CollapseWhitespace: true,
		RemoveZeroWidth:    true,
	}
}

// PostProcessText normalizes and cleans recognized text.
func PostProcessText(s string, opts CleanOptions) string {
	if s == "" {
		return s
	}
	switch strings.ToUpper(opts.NormalizeForm) {
	case "NFC", "":
		s = norm.NFC.String(s)
	case "NFKC":
		s = norm.NFKC.String(s)
	case "NFD":
		s = norm.NFD.String(s)
	case "NFKD":
		s = norm.NFKD.String(s)
	}

	for from, to := range opts.ReplaceMap {
		s = strings.ReplaceAll(s, from, to)
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case opts.RemoveZeroWidth && isZeroWidth(r):
			continue
		case unicode.IsControl(r) && !unicode.IsSpace(r):
			continue
		case opts.CollapseWhitespace && unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF':
		return true
	}
	return false
}
