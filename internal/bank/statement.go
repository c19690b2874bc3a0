package bank

import (
	"regexp"
	"strings"

	"github.com/sells-group/supplier-verify/internal/anchor"
)

// Match describes how a declared number was found in statement text.
type Match string

const (
	MatchFull    Match = "full"
	MatchMasked  Match = "masked"
	MatchPartial Match = "partial"
	MatchNone    Match = "none"
)

// Found reports whether the match is strong enough to accept the number.
func (m Match) Found() bool {
	return m == MatchFull || m == MatchMasked
}

// MinAccountDigits is the shortest account number accepted.
const MinAccountDigits = 8

// CheckAccount looks for account in text. Statements commonly mask all but
// the last digits, so the last 10 or 8 digits count as a masked match and
// the last 6 as a partial one.
func CheckAccount(text, account string) Match {
	acct := Digits(account)
	if len(acct) < MinAccountDigits {
		return MatchNone
	}
	compact := compactDigits(text)
	if strings.Contains(compact, acct) {
		return MatchFull
	}
	for _, n := range []int{10, 8} {
		if len(acct) > n && strings.Contains(compact, acct[len(acct)-n:]) {
			return MatchMasked
		}
	}
	if strings.Contains(compact, acct[len(acct)-6:]) {
		return MatchPartial
	}
	return MatchNone
}

// CheckCLABE looks for clabe in text. A statement that only shows the bank,
// branch and first account digits (the first 10) is a partial match.
func CheckCLABE(text, clabe string) Match {
	c := Digits(clabe)
	if !ValidCLABE(clabe) {
		return MatchNone
	}
	compact := compactDigits(text)
	if strings.Contains(compact, c) {
		return MatchFull
	}
	if strings.Contains(compact, c[:10]) {
		return MatchPartial
	}
	return MatchNone
}

var reDigitGap = regexp.MustCompile(`(\d)[ \-\x{00a0}]+(\d)`)

// compactDigits removes single separators between digits so "0123 4567"
// and "0123-4567" match "01234567".
func compactDigits(text string) string {
	// Two passes: overlapping gaps ("1 2 3") share a digit.
	out := reDigitGap.ReplaceAllString(text, "$1$2")
	return reDigitGap.ReplaceAllString(out, "$1$2")
}

// UnknownBank is reported when no bank can be identified.
const UnknownBank = "No identificado"

// knownBanks are searched in order; longer brand names come before the
// names they contain.
var knownBanks = func() []*regexp.Regexp {
	names := []string{
		"CITIBANAMEX", "BANAMEX", "CITIBANK", "BBVA", "BANCOMER", "SANTANDER",
		"BANORTE", "HSBC", "SCOTIABANK", "INBURSA", "BAJIO", "MIFEL", "ACTINVER",
		"BANCOPPEL", "AZTECA", "COMPARTAMOS", "BANCO WALMART", "INVEX", "MONEX",
		"MULTIVA", "BANSI", "AFIRME", "BANREGIO",
	}
	out := make([]*regexp.Regexp, len(names))
	for i, n := range names {
		out[i] = regexp.MustCompile(`\b(` + n + `)\b`)
	}
	return out
}()

var reBankFallback = []*regexp.Regexp{
	regexp.MustCompile(`\bBANCO\s+([A-Z][A-Z ]{2,30}?)(?:\s*,?\s*S\.?\s*A\.?|\s{2,}|\n|$)`),
	regexp.MustCompile(`\bINSTITUCION\s+DE\s+BANCA\s+MULTIPLE\s*,?\s*([A-Z][A-Z ]{2,30})`),
}

// BankName identifies the issuing bank from statement text.
func BankName(text string) string {
	upper := strings.ToUpper(anchor.Fold(text))
	for _, re := range knownBanks {
		if m := re.FindStringSubmatch(upper); m != nil {
			return m[1]
		}
	}
	for _, re := range reBankFallback {
		if m := re.FindStringSubmatch(upper); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return UnknownBank
}
