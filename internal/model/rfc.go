package model

import (
	"regexp"
	"strings"
)

// rfcPattern is the canonical taxpayer identifier shape: 3 (corporate) or 4
// (individual) letters, a yymmdd date, and a 3-character homoclave.
var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}$`)

// PersonType distinguishes corporate from individual taxpayers.
type PersonType string

const (
	PersonMoral   PersonType = "MORAL"
	PersonFisica  PersonType = "FISICA"
	PersonUnknown PersonType = ""
)

// Label returns the form label for a person type.
func (p PersonType) Label() string {
	switch p {
	case PersonMoral:
		return "PERSONA MORAL"
	case PersonFisica:
		return "PERSONA FÍSICA"
	default:
		return ""
	}
}

// NormalizeRFC uppercases and strips whitespace and separators from an RFC.
func NormalizeRFC(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\n', '\r', '\u00a0':
			return -1
		}
		return r
	}, s)
}

// ValidRFC reports whether s (already normalized) matches the canonical pattern.
func ValidRFC(s string) bool {
	return rfcPattern.MatchString(s)
}

// ClassifyRFC derives the person type from the identifier length: 12
// characters for corporate entities, 13 for individuals. Any other length is
// unknown.
func ClassifyRFC(rfc string) PersonType {
	switch len([]rune(strings.TrimSpace(rfc))) {
	case 12:
		return PersonMoral
	case 13:
		return PersonFisica
	default:
		return PersonUnknown
	}
}
