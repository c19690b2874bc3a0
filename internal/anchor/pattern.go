// Package anchor extracts labeled values from the free text of SAT
// verification pages. Labels are matched accent-insensitively and with
// tolerant whitespace, so "Razon Social", "RAZÓN SOCIAL" and "RazónSocial"
// all locate the same field.
package anchor

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining diacritics (á → a, ñ → n, ü → u).
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// vowelClasses maps a folded letter to the class matching its accented forms.
var vowelClasses = map[rune]string{
	'a': "[aá]",
	'e': "[eé]",
	'i': "[ií]",
	'o': "[oó]",
	'u': "[uúü]",
	'n': "[nñ]",
}

// Pattern converts a label into a regular expression fragment that matches
// the label with or without accents and with any amount (including none) of
// whitespace where the label has spaces. The fragment is meant to be used
// under the (?i) flag.
func Pattern(label string) string {
	folded := Fold(strings.TrimSpace(label))
	var b strings.Builder
	inSpace := false
	for _, r := range folded {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteString(`\s*`)
			}
			inSpace = true
			continue
		}
		inSpace = false
		if class, ok := vowelClasses[r]; ok {
			b.WriteString(class)
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

// group joins the patterns of labels into one non-capturing alternation.
// It returns "" when labels holds no usable label.
func group(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		if p := Pattern(l); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}
