// Package bank checks supplier bank statements: the CLABE checksum, the
// issuing bank and whether the declared account appears in the statement.
package bank

import (
	"regexp"
	"strings"
)

// CLABELength is the number of digits in a CLABE.
const CLABELength = 18

var clabeWeights = [3]int{3, 7, 1}

// CheckDigit computes the control digit for the first 17 digits of a CLABE.
// It returns -1 when prefix is not exactly 17 digits.
func CheckDigit(prefix string) int {
	if len(prefix) != CLABELength-1 {
		return -1
	}
	sum := 0
	for i := 0; i < len(prefix); i++ {
		d := prefix[i]
		if d < '0' || d > '9' {
			return -1
		}
		sum += int(d-'0') * clabeWeights[i%3] % 10
	}
	return (10 - sum%10) % 10
}

// ValidCLABE reports whether s (separators allowed) is 18 digits with a
// correct control digit.
func ValidCLABE(s string) bool {
	d := stripSeparators(s)
	if len(d) != CLABELength || Digits(d) != d {
		return false
	}
	return CheckDigit(d[:17]) == int(d[17]-'0')
}

// banks maps the three-digit institution prefix of a CLABE to a bank name.
var banks = map[string]string{
	"002": "BANAMEX",
	"006": "BANCOMEXT",
	"009": "BANOBRAS",
	"012": "BBVA MEXICO",
	"014": "SANTANDER",
	"019": "BANJERCITO",
	"021": "HSBC",
	"030": "BAJIO",
	"036": "INBURSA",
	"042": "MIFEL",
	"044": "SCOTIABANK",
	"058": "BANREGIO",
	"059": "INVEX",
	"060": "BANSI",
	"062": "AFIRME",
	"072": "BANORTE",
	"106": "BANK OF AMERICA",
	"112": "MONEX",
	"113": "VE POR MAS",
	"127": "AZTECA",
	"130": "COMPARTAMOS",
	"132": "MULTIVA",
	"133": "ACTINVER",
	"137": "BANCOPPEL",
	"138": "ABC CAPITAL",
	"140": "CONSUBANCO",
	"145": "BBASE",
	"147": "BANKAOOL",
	"166": "BANCO DEL BIENESTAR",
	"646": "STP",
	"722": "MERCADO PAGO",
}

// BankFromCLABE returns the bank registered for the CLABE's institution
// prefix, or "" when it is unknown.
func BankFromCLABE(clabe string) string {
	d := Digits(clabe)
	if len(d) < 3 {
		return ""
	}
	return banks[d[:3]]
}

// reCLABECandidate matches 18 digits, optionally split by single spaces or
// dashes ("012 180 00123456789 0").
var reCLABECandidate = regexp.MustCompile(`(?:^|[^\d])((?:\d[ -]?){17}\d)(?:[^\d]|$)`)

// FindCLABEs returns every checksum-valid CLABE in text, in order of
// appearance and without duplicates.
func FindCLABEs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range reCLABECandidate.FindAllStringSubmatch(text, -1) {
		c := Digits(m[1])
		if seen[c] || !ValidCLABE(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
