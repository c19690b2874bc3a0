package validate

import (
	"strings"
	"unicode"

	"github.com/sells-group/supplier-verify/internal/anchor"
)

// stopwords are legal-form and filler tokens ignored when comparing names.
var stopwords = map[string]bool{
	"THE": true, "AND": true, "DEL": true, "LAS": true, "LOS": true,
	"SAB": true, "SAPI": true, "SRL": true, "SOCIEDAD": true, "ANONIMA": true,
	"CAPITAL": true, "VARIABLE": true, "RESPONSABILIDAD": true, "LIMITADA": true,
	"CIVIL": true, "COOPERATIVA": true,
}

// Keywords returns the distinct significant words of a legal name: folded,
// uppercased, at least three characters and not a stopword.
func Keywords(name string) []string {
	words := strings.FieldsFunc(strings.ToUpper(anchor.Fold(name)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if len([]rune(w)) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// NameSimilarity is the share of keywords two names have in common over the
// keywords of both. Two names without keywords are considered identical.
func NameSimilarity(a, b string) float64 {
	ka, kb := Keywords(a), Keywords(b)
	union := make(map[string]bool, len(ka)+len(kb))
	inA := make(map[string]bool, len(ka))
	for _, w := range ka {
		union[w] = true
		inA[w] = true
	}
	common := 0
	for _, w := range kb {
		if inA[w] {
			common++
		}
		union[w] = true
	}
	if len(union) == 0 {
		return 1
	}
	return float64(common) / float64(len(union))
}
