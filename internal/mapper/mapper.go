// Package mapper turns parsed validator pages into the canonical tax
// registration and compliance opinion records.
package mapper

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/anchor"
	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/sat"
)

// DefaultCompanyName is used when no legal name can be recovered.
const DefaultCompanyName = "No especificado"

// Mapper resolves canonical fields from structured values first and the
// page text second.
type Mapper struct {
	rules *anchor.RuleSet
	now   func() time.Time
}

// New creates a Mapper. A nil rule set selects the built-in anchor tables.
func New(rules *anchor.RuleSet) *Mapper {
	if rules == nil {
		rules = anchor.Default()
	}
	return &Mapper{rules: rules, now: time.Now}
}

var (
	reContaminated = regexp.MustCompile(`(?i)r[eé]gimen|fecha|situaci[oó]n|datos\s+de\s+ubicaci[oó]n|entidad|municipio`)

	reBlobRFC = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bRFC\s*:\s*([A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3})\b`),
		regexp.MustCompile(`(?i)\|\|[\d/ :\-]{19}\|([A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3})\|CONSTANCIA`),
	}
)

// Registration maps a registration page. aux is the text of the secondary
// document fetched for its cadena original timestamp, if any.
func (m *Mapper) Registration(ext *sat.Extraction, aux string) *model.TaxRegistration {
	f := ext.Fields
	blob := anchor.Sanitize(f.Blob)
	log := zap.L().With(zap.String("url", ext.URL))

	reg := &model.TaxRegistration{
		RFC:        resolveRFC(f.RFC, blob),
		Email:      strings.TrimSpace(f.Email),
		Regime:     strings.TrimSpace(f.Regime),
		Status:     strings.TrimSpace(f.Status),
		Blob:       blob,
		Provenance: m.provenance(ext),
	}
	reg.PersonType = model.ClassifyRFC(reg.RFC)
	reg.LegalName = m.legalName(f, blob, reg.RFC)
	if reg.LegalName == "" {
		log.Warn("mapper: legal name not found", zap.String("rfc", reg.RFC))
		reg.LegalName = DefaultCompanyName
	}

	reg.Street = anchor.PostClean(m.street(f, blob), 80)
	reg.Number = anchor.PostClean(m.number(f, blob), 20)
	reg.Colony = anchor.PostClean(m.field(f.Colony, anchor.FieldColony, blob), 80)
	reg.City = anchor.PostClean(m.field(f.Municipality, anchor.FieldCity, blob), 80)
	reg.State = anchor.PostClean(m.field(f.State, anchor.FieldState, blob), 80)
	reg.PostalCode = anchor.PostClean(m.field(f.PostalCode, anchor.FieldPostalCode, blob), 10)

	reg.EmissionDate = emissionDate(f, aux, blob)
	reg.Activities = ParseActivities(blob)

	log.Info("mapper: registration mapped",
		zap.String("rfc", reg.RFC),
		zap.String("legal_name", reg.LegalName),
		zap.Bool("emission_date", reg.EmissionDate != nil),
		zap.Int("activities", len(reg.Activities)))
	return reg
}

// Opinion maps a compliance opinion page. The name falls back to reg when
// the page lacks it; reg may be nil.
func (m *Mapper) Opinion(ext *sat.Extraction, reg *model.TaxRegistration) *model.ComplianceOpinion {
	f := ext.Fields
	op := &model.ComplianceOpinion{
		RFC:          model.NormalizeRFC(f.RFC),
		LegalName:    anchor.CleanCompanyName(f.LegalName),
		Sentiment:    ParseSentiment(f.Sentiment),
		EmissionRaw:  strings.TrimSpace(f.Date),
		EmissionDate: anchor.ParseDatePtr(f.Date),
		Folio:        strings.TrimSpace(f.Folio),
		Blob:         f.Blob,
		Provenance:   m.provenance(ext),
	}
	if reg != nil && op.LegalName == "" {
		op.LegalName = reg.LegalName
	}
	return op
}

func (m *Mapper) provenance(ext *sat.Extraction) model.Provenance {
	src := model.SourceSATQR
	if ext.Fields.Blob == "" {
		src = model.SourceQuery
	}
	return model.Provenance{Source: src, SourceURL: ext.URL, ExtractedAt: m.now().UTC()}
}

// resolveRFC prefers the structured value and otherwise searches the text.
func resolveRFC(field, blob string) string {
	rfc := model.NormalizeRFC(field)
	if model.ValidRFC(rfc) || blob == "" {
		return rfc
	}
	for _, re := range reBlobRFC {
		if sm := re.FindStringSubmatch(blob); sm != nil {
			return strings.ToUpper(sm[1])
		}
	}
	return rfc
}

// legalName resolves the name: a clean structured value, then the anchor
// rule over the text, then for individuals the assembled given names or a
// placeholder built from the RFC.
func (m *Mapper) legalName(f sat.Fields, blob, rfc string) string {
	if name := anchor.CleanCompanyName(f.LegalName); len([]rune(name)) >= 3 && !reContaminated.MatchString(f.LegalName) {
		return name
	}
	if name := m.rules.Find(anchor.FieldCompanyName, blob); len([]rune(name)) >= 3 {
		return name
	}
	if model.ClassifyRFC(rfc) != model.PersonFisica {
		return ""
	}
	first := m.field(f.FirstName, anchor.FieldFirstName, blob)
	paternal := m.field(f.PaternalSurname, anchor.FieldPaternalSurname, blob)
	maternal := m.field(f.MaternalSurname, anchor.FieldMaternalSurname, blob)
	if name := anchor.CleanCompanyName(strings.Join([]string{first, paternal, maternal}, " ")); name != "" {
		return name
	}
	if rfc != "" {
		return "PF " + rfc
	}
	return ""
}

// field returns the structured value when present, else the anchor rule's
// match over blob.
func (m *Mapper) field(structured, rule, blob string) string {
	if v := strings.TrimSpace(structured); v != "" {
		return v
	}
	return m.rules.Find(rule, blob)
}

func (m *Mapper) street(f sat.Fields, blob string) string {
	if v := strings.TrimSpace(f.StreetName); v != "" {
		return anchor.StripStreetType(v)
	}
	return m.rules.Find(anchor.FieldStreet, blob)
}

func (m *Mapper) number(f sat.Fields, blob string) string {
	if ext := strings.TrimSpace(f.ExteriorNumber); ext != "" {
		if in := strings.TrimSpace(f.InteriorNumber); in != "" {
			return ext + " Int " + in
		}
		return ext
	}
	return m.rules.Find(anchor.FieldExteriorNumber, blob)
}

// emissionDate prefers the last status change, then the cadena original of
// the secondary document (or of this page), then a long-form date sentence,
// then the registration date.
func emissionDate(f sat.Fields, aux, blob string) *time.Time {
	if t := anchor.ParseDatePtr(f.LastStatusChange); t != nil {
		return t
	}
	if t := anchor.ParseDatePtr(f.CadenaDate); t != nil {
		return t
	}
	for _, text := range []string{aux, blob} {
		if t, ok := anchor.CadenaDate(text); ok {
			return &t
		}
	}
	return anchor.ParseDatePtr(f.RegistrationDate)
}

var (
	reNegative = regexp.MustCompile(`\bNEGATIV|\bNO\s+POSITIV`)
	rePositive = regexp.MustCompile(`\bPOSITIV`)
)

// ParseSentiment reads an opinion's verdict. Negative tokens are checked
// first so "NO POSITIVO" never reads as positive; anything unrecognised is
// unknown.
func ParseSentiment(s string) model.Sentiment {
	folded := strings.ToUpper(anchor.Fold(s))
	switch {
	case reNegative.MatchString(folded):
		return model.SentimentNegative
	case rePositive.MatchString(folded):
		return model.SentimentPositive
	default:
		return model.SentimentUnknown
	}
}
