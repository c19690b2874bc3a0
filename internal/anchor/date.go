package anchor

import (
	"regexp"
	"strconv"
	"time"
)

var (
	reYMD     = regexp.MustCompile(`(20\d{2})[/\-](\d{1,2})[/\-](\d{1,2})`)
	reDMY     = regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](20\d{2})`)
	reLongDMY = regexp.MustCompile(`(\d{1,2})\s*de\s*([a-z]+)\s*(?:de|del)\s*(20\d{2})`)

	reCadenaStamp = regexp.MustCompile(`\|\|(\d{4})[/\-](\d{2})[/\-](\d{2})\s+(\d{2}):(\d{2}):(\d{2})\|`)
	reIssuedAt    = regexp.MustCompile(`(?i)LUGAR\s+Y\s+FECHA\s+DE\s+EMISI[ÓO]N.*?\bA\s+(\d{1,2}\s+DE\s+[A-ZÁÉÍÓÚÑ]+\s+DE\s+20\d{2})`)
)

var months = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// ParseAnyDate reads the first date in s written as yyyy/mm/dd, dd/mm/yyyy
// (slashes or dashes) or "d de <mes> de yyyy". Dates are returned as UTC
// midnight of that calendar day.
func ParseAnyDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if m := reYMD.FindStringSubmatch(s); m != nil {
		if t, ok := calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return t, true
		}
	}
	if m := reDMY.FindStringSubmatch(s); m != nil {
		if t, ok := calendarDate(atoi(m[3]), atoi(m[2]), atoi(m[1])); ok {
			return t, true
		}
	}
	if m := reLongDMY.FindStringSubmatch(Fold(s)); m != nil {
		if mon, ok := months[m[2]]; ok {
			return calendarDate(atoi(m[3]), int(mon), atoi(m[1]))
		}
	}
	return time.Time{}, false
}

// ParseDatePtr is ParseAnyDate returning nil when s holds no date.
func ParseDatePtr(s string) *time.Time {
	t, ok := ParseAnyDate(s)
	if !ok {
		return nil
	}
	return &t
}

// CadenaDate finds the emission timestamp of a document: the
// "||yyyy/mm/dd hh:mm:ss|" token of the cadena original, or else the
// "Lugar y fecha de emisión ... a d de <mes> de yyyy" sentence.
func CadenaDate(raw string) (time.Time, bool) {
	text := Sanitize(raw)
	if m := reCadenaStamp.FindStringSubmatch(text); m != nil {
		day, ok := calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
		if ok {
			h, mi, sec := atoi(m[4]), atoi(m[5]), atoi(m[6])
			if h < 24 && mi < 60 && sec < 60 {
				return day.Add(time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second), true
			}
		}
	}
	if m := reIssuedAt.FindStringSubmatch(text); m != nil {
		return ParseAnyDate(m[1])
	}
	return time.Time{}, false
}

// calendarDate rejects dates that time.Date would normalize, such as Feb 30.
func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
