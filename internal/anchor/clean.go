package anchor

import (
	"regexp"
	"strings"
)

var (
	reScript     = regexp.MustCompile(`(?is)<script.*?</script>`)
	reTag        = regexp.MustCompile(`</?[^>]+>`)
	reJQuery     = regexp.MustCompile(`(?is)\$\(.*?\);\s*`)
	rePrimeFaces = regexp.MustCompile(`(?is)PrimeFaces\.cw\(.*?\);\s*`)
	reBlanks     = regexp.MustCompile(`[ \t]+`)
	reSpaces     = regexp.MustCompile(`\s{2,}`)
	reAnySpace   = regexp.MustCompile(`\s+`)

	// reGenericLabel matches a title-case label ("Código Postal:") or a short
	// acronym ("RFC:") followed by a colon. Group 1 is the label. It bounds
	// values whose end label is unknown.
	reGenericLabel = regexp.MustCompile(`(?:^|[^\p{L}])((?:[A-ZÁÉÍÓÚÑ][a-záéíóúñü]+(?:\s+(?:[a-záéíóúñü]+|[A-ZÁÉÍÓÚÑ][a-záéíóúñü]+)){0,6}|[A-ZÑ]{2,5})\s*:)`)

	reEdgePunct = regexp.MustCompile(`^[,:;\-–.]+|[,:;\-–.]+$`)

	// headerStops are section headers that never belong to any value.
	headerStops = []string{
		`r[eé]gimen`, `situaci[oó]n`, `datos\s+de\s+ubicaci[oó]n`, `rfc`, `fecha`,
		`c\.p\.`, `c[oó]digo\s+postal`, `correo\s+electr[oó]nico`,
		`tipo\s+de\s+vialidad`, `nombre\s+de\s+la\s+vialidad`,
	}
	// addressStops add the address labels, which are ordinary words inside
	// legal names ("CONSTRUCTORA DEL ESTADO DE MEXICO").
	addressStops = append(append([]string{}, headerStops...),
		`municipio`, `delegaci[oó]n`, `alcald[ií]a`, `entidad`, `estado`, `colonia`,
		`n[uú]mero`, `cp`, `correo`, `electr[oó]nico`,
	)

	reAddressStop = stopPattern(addressStops)
	reNameStop    = stopPattern(headerStops)
)

// Sanitize turns a verification page (HTML or text) into a single line of
// plain text: scripts, tags and PrimeFaces widget calls are dropped and
// whitespace is collapsed.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, "\u00a0", " ")
	s = reScript.ReplaceAllString(s, " ")
	s = reTag.ReplaceAllString(s, " ")
	s = reJQuery.ReplaceAllString(s, " ")
	s = rePrimeFaces.ReplaceAllString(s, " ")
	s = reBlanks.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StopSet selects the headers that end a value.
type StopSet string

const (
	// StopsAddress cuts at section headers and address labels.
	StopsAddress StopSet = ""
	// StopsName cuts at section headers only.
	StopsName StopSet = "names"
)

func stopPattern(phrases []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(phrases, "|") + `)(?:[^\p{L}\p{N}]|$)`)
}

// CutAtStopPhrases truncates val at the first section header or address
// label that does not start the value.
func CutAtStopPhrases(val string) string {
	return cutAt(reAddressStop, val)
}

// CutAtHeaders is CutAtStopPhrases for names: address words are kept.
func CutAtHeaders(val string) string {
	return cutAt(reNameStop, val)
}

func cutAt(re *regexp.Regexp, val string) string {
	for _, m := range re.FindAllStringSubmatchIndex(val, -1) {
		if m[2] > 0 {
			return strings.TrimSpace(val[:m[2]])
		}
	}
	return val
}

// PostClean normalizes an extracted value: collapses whitespace, trims edge
// punctuation, cuts at any trailing label or stop phrase and bounds the
// result to maxLen runes (0 means unbounded).
func PostClean(val string, maxLen int) string {
	return postClean(val, maxLen, StopsAddress)
}

func postClean(val string, maxLen int, stops StopSet) string {
	if val == "" {
		return ""
	}
	out := reAnySpace.ReplaceAllString(val, " ")
	out = strings.TrimSpace(reEdgePunct.ReplaceAllString(strings.TrimSpace(out), ""))
	if idx := labelIndex(out); idx > 0 {
		out = strings.TrimSpace(out[:idx])
	}
	if stops == StopsName {
		out = CutAtHeaders(out)
	} else {
		out = CutAtStopPhrases(out)
	}
	return truncate(out, maxLen)
}

// CutAtLabel collapses whitespace, trims edge punctuation and truncates val
// at the first "Label:" pair after its start.
func CutAtLabel(val string) string {
	out := reAnySpace.ReplaceAllString(val, " ")
	out = strings.TrimSpace(reEdgePunct.ReplaceAllString(strings.TrimSpace(out), ""))
	if idx := labelIndex(out); idx > 0 {
		out = strings.TrimSpace(reEdgePunct.ReplaceAllString(strings.TrimSpace(out[:idx]), ""))
	}
	return out
}

// labelIndex returns the byte offset of the first "Label:" in s, or -1.
func labelIndex(s string) int {
	if m := reGenericLabel.FindStringSubmatchIndex(s); m != nil {
		return m[2]
	}
	return -1
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(r[:maxLen]))
}

var streetLabels = []string{"Nombre de la vialidad", "Vialidad nombre", "Vialidad"}

// StripLeadingLabel removes one of labels (street labels when none are
// given) from the start of val.
func StripLeadingLabel(val string, labels ...string) string {
	if val == "" {
		return ""
	}
	if len(labels) == 0 {
		labels = streetLabels
	}
	re := regexp.MustCompile(`(?i)^` + group(labels) + `\s*:?\s*`)
	return strings.TrimSpace(re.ReplaceAllString(val, ""))
}

var reStreetType = regexp.MustCompile(`(?i)^(?:CALLE|AVENIDA|AV\.|BOULEVARD|BLVD\.?|PRIVADA|CALZADA|CIRCUITO|ANDADOR|CERRADA)\s+`)

// StripStreetType removes a leading street type ("CALLE", "AVENIDA", ...)
// so only the street name remains.
func StripStreetType(val string) string {
	return strings.TrimSpace(reStreetType.ReplaceAllString(val, ""))
}

var (
	reNameLabel  = regexp.MustCompile(`(?i)^(?:Nombre|Denominaci[óo]n|Raz[óo]n\s+Social)\s*[,:;]?\s*`)
	reOddChars   = regexp.MustCompile(`[^\w\sÁÉÍÓÚÑÜáéíóúñü&.,()\-]`)
	reSADECV     = regexp.MustCompile(`(?i)\bS\.?\s*A\.?\s+DE\s+C\.?\s*V\.?`)
	reSDERL      = regexp.MustCompile(`(?i)\bS\.?\s*DE\s+R\.?\s*L\.?`)
	reDECV       = regexp.MustCompile(`(?i)\bDE\s+C\.\s*V\.?`)
	reSRL        = regexp.MustCompile(`(?i)\bS\.\s*R\.\s*L\.?`)
	reSC         = regexp.MustCompile(`(?i)\bS\.\s*C\.?`)
	reSAPI       = regexp.MustCompile(`(?i)\bS\.\s*A\.\s*P\.\s*I\.?`)
	reSAB        = regexp.MustCompile(`(?i)\bS\.\s*A\.\s*B\.?`)
	reEdgeSymbol = regexp.MustCompile(`^[\s.,;:]+|[\s.,;:]+$`)
)

// CleanCompanyName strips leading labels and odd characters from a legal
// name, normalizes common legal forms ("S.A. DE C.V." → "SA DE CV") and
// uppercases the result.
func CleanCompanyName(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	s := reAnySpace.ReplaceAllString(name, " ")
	s = reNameLabel.ReplaceAllString(strings.TrimSpace(s), "")
	s = reOddChars.ReplaceAllString(s, "")
	s = reEdgeSymbol.ReplaceAllString(s, "")

	s = reSAPI.ReplaceAllString(s, "SAPI")
	s = reSAB.ReplaceAllString(s, "SAB")
	s = reSADECV.ReplaceAllString(s, "SA DE CV")
	s = reSDERL.ReplaceAllString(s, "S DE RL")
	s = reDECV.ReplaceAllString(s, "DE CV")
	s = reSRL.ReplaceAllString(s, "SRL")
	s = reSC.ReplaceAllString(s, "SC")

	s = reAnySpace.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.TrimSpace(s))
}
