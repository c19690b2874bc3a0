package sat

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/supplier-verify/internal/model"
)

// TypeUnknown marks a validator URL whose D1 value names no supported
// document.
const TypeUnknown model.DocumentType = "unknown"

// DocumentTypeOf maps the D1 query parameter of a validator URL to the
// document it verifies.
func DocumentTypeOf(d1 string) model.DocumentType {
	switch strings.TrimSpace(d1) {
	case "1":
		return model.DocOpinion
	case "0", "10", "26":
		return model.DocRegistration
	default:
		return TypeUnknown
	}
}

var (
	reOpinionD3      = regexp.MustCompile(`(?i)^([^_]+)_([A-Z0-9&Ñ]{12,13})_([^_]+)_([A-Z])$`)
	reRegistrationD3 = regexp.MustCompile(`(?i)^[^_]+_([A-Z0-9&Ñ]{12,13})$`)
	reCadena         = regexp.MustCompile(`\|\|(\d{4}[/-]\d{2}[/-]\d{2})(?:\s+(\d{2}:\d{2}:\d{2}))?`)
)

// Query is what can be read from a validator URL without fetching it.
type Query struct {
	D1   string
	D3   string
	Type model.DocumentType
	// Opinion URLs encode folio, RFC, date and sentiment letter in D3.
	Folio     string
	RFC       string
	Date      string
	Sentiment string
	// Registration URLs may carry the cadena original or IDCIF_RFC.
	CadenaDate string
	Cadena     string
}

// ParseQuery reads the D1/D3 parameters of raw. Unparseable input yields a
// Query of TypeUnknown.
func ParseQuery(raw string) Query {
	q := Query{Type: TypeUnknown}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return q
	}
	params := u.Query()
	q.D1 = params.Get("D1")
	q.D3 = params.Get("D3")
	q.Type = DocumentTypeOf(q.D1)

	switch q.Type {
	case model.DocOpinion:
		if m := reOpinionD3.FindStringSubmatch(q.D3); m != nil {
			q.Folio = m[1]
			q.RFC = model.NormalizeRFC(m[2])
			q.Date = m[3]
			q.Sentiment = sentimentLetter(m[4])
		}
	case model.DocRegistration:
		if cadena, date, ok := FindCadena(q.D3); ok {
			q.Cadena = cadena
			q.CadenaDate = date
			break
		}
		if q.D1 == "10" {
			if m := reRegistrationD3.FindStringSubmatch(q.D3); m != nil {
				q.RFC = model.NormalizeRFC(m[1])
			}
		}
	}
	return q
}

func sentimentLetter(l string) string {
	switch strings.ToUpper(l) {
	case "P":
		return "POSITIVO"
	case "N":
		return "NEGATIVO"
	default:
		return ""
	}
}

// FindCadena looks for the "||YYYY/MM/DD HH:MM:SS|" timestamp that opens a
// cadena original. It returns the (unescaped) input and the timestamp with
// slashes as date separators.
func FindCadena(s string) (cadena, date string, ok bool) {
	if s == "" {
		return "", "", false
	}
	dec, err := url.QueryUnescape(s)
	if err != nil {
		dec = s
	}
	m := reCadena.FindStringSubmatch(dec)
	if m == nil {
		return "", "", false
	}
	date = strings.ReplaceAll(m[1], "-", "/")
	if m[2] != "" {
		date += " " + m[2]
	}
	return dec, date, true
}
