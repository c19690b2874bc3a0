package sat

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/supplier-verify/internal/anchor"
	"github.com/sells-group/supplier-verify/internal/model"
)

// Fields are the values parsed from one validator page. Blob always holds
// the page text so callers can re-derive anything missing.
type Fields struct {
	Type model.DocumentType `json:"type"`

	Folio     string `json:"folio,omitempty"`
	RFC       string `json:"rfc,omitempty"`
	Date      string `json:"date,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`

	LegalName         string `json:"legal_name,omitempty"`
	CapitalRegime     string `json:"capital_regime,omitempty"`
	ConstitutionDate  string `json:"constitution_date,omitempty"`
	StartOfOperations string `json:"start_of_operations,omitempty"`
	Status            string `json:"status,omitempty"`
	LastStatusChange  string `json:"last_status_change,omitempty"`
	State             string `json:"state,omitempty"`
	Municipality      string `json:"municipality,omitempty"`
	Colony            string `json:"colony,omitempty"`
	StreetType        string `json:"street_type,omitempty"`
	StreetName        string `json:"street_name,omitempty"`
	ExteriorNumber    string `json:"exterior_number,omitempty"`
	InteriorNumber    string `json:"interior_number,omitempty"`
	PostalCode        string `json:"postal_code,omitempty"`
	Email             string `json:"email,omitempty"`
	Regime            string `json:"regime,omitempty"`
	RegistrationDate  string `json:"registration_date,omitempty"`
	CURP              string `json:"curp,omitempty"`
	FirstName         string `json:"first_name,omitempty"`
	PaternalSurname   string `json:"paternal_surname,omitempty"`
	MaternalSurname   string `json:"maternal_surname,omitempty"`
	FullAddress       string `json:"full_address,omitempty"`
	CadenaDate        string `json:"cadena_date,omitempty"`

	Blob string `json:"blob"`
	HTML string `json:"html,omitempty"`
}

// label keys of the page tables.
const (
	kFolio         = "folio"
	kRFC           = "rfc"
	kRFCLine       = "rfc_line"
	kDate          = "date"
	kSentiment     = "sentiment"
	kLegalName     = "legal_name"
	kCapitalRegime = "capital_regime"
	kConstitution  = "constitution_date"
	kStartOps      = "start_of_operations"
	kStatus        = "status"
	kLastChange    = "last_status_change"
	kState         = "state"
	kMunicipality  = "municipality"
	kColony        = "colony"
	kStreetType    = "street_type"
	kStreetName    = "street_name"
	kExterior      = "exterior_number"
	kInterior      = "interior_number"
	kPostalCode    = "postal_code"
	kEmail         = "email"
	kRegime        = "regime"
	kRegistration  = "registration_date"
	kCURP          = "curp"
	kFirstName     = "first_name"
	kPaternal      = "paternal_surname"
	kMaternal      = "maternal_surname"
	kBirthDate     = "birth_date"
	kSection       = "" // headers that only end the previous value
)

type labelDef struct {
	key    string
	labels []string
	// header labels may appear without a colon.
	header bool
}

var opinionLabels = []labelDef{
	{key: kFolio, labels: []string{"Folio"}},
	{key: kRFC, labels: []string{"RFC"}},
	{key: kLegalName, labels: []string{"Nombre, denominación o razón social", "Denominación o razón social", "Razón social"}},
	{key: kDate, labels: []string{"Fecha de emisión", "Fecha"}},
	{key: kSentiment, labels: []string{"Sentido de la opinión", "Sentido"}},
}

var registrationLabels = []labelDef{
	{key: kRFCLine, labels: []string{"El RFC"}},
	{key: kRFC, labels: []string{"RFC"}},
	{key: kLegalName, labels: []string{"Denominación o Razón Social", "Denominación / Razón Social", "Razón social"}},
	{key: kCapitalRegime, labels: []string{"Régimen de capital"}},
	{key: kConstitution, labels: []string{"Fecha de constitución"}},
	{key: kStartOps, labels: []string{"Fecha de Inicio de operaciones"}},
	{key: kStatus, labels: []string{"Situación del contribuyente"}},
	{key: kLastChange, labels: []string{"Fecha del último cambio de situación"}},
	{key: kState, labels: []string{"Entidad Federativa"}},
	{key: kMunicipality, labels: []string{"Municipio o delegación", "Municipio o alcaldía"}},
	{key: kColony, labels: []string{"Colonia"}},
	{key: kStreetType, labels: []string{"Tipo de vialidad"}},
	{key: kStreetName, labels: []string{"Nombre de la vialidad"}},
	{key: kExterior, labels: []string{"Número exterior"}},
	{key: kInterior, labels: []string{"Número interior"}},
	{key: kPostalCode, labels: []string{"Código Postal", "C.P.", "CP"}},
	{key: kEmail, labels: []string{"Correo electrónico"}},
	{key: kRegime, labels: []string{"Régimen"}},
	{key: kRegistration, labels: []string{"Fecha de alta"}},
	{key: kCURP, labels: []string{"CURP"}},
	{key: kFirstName, labels: []string{"Nombre (s)", "Nombre"}},
	{key: kPaternal, labels: []string{"Apellido Paterno", "Primer Apellido"}},
	{key: kMaternal, labels: []string{"Apellido Materno", "Segundo Apellido"}},
	{key: kBirthDate, labels: []string{"Fecha Nacimiento", "Fecha de nacimiento"}},
	{key: kSection, header: true, labels: []string{
		"Datos de Identificación del Contribuyente",
		"Datos de Ubicación",
		"Características fiscales",
	}},
}

var genericLabels = []labelDef{
	{key: kFolio, labels: []string{"Folio"}},
	{key: kRFC, labels: []string{"RFC"}},
	{key: kDate, labels: []string{"Fecha"}},
	{key: kSentiment, labels: []string{"Sentido"}},
}

// table is a compiled label set. Every label is its own capture group; the
// alternation lists longer labels first so "Régimen de capital" wins over
// "Régimen" at the same position.
type table struct {
	re    *regexp.Regexp
	keys  []string // group index-1 -> key
	byKey map[string][]string
}

func compileTable(defs []labelDef) *table {
	type alt struct {
		key, label string
		header     bool
	}
	var alts []alt
	byKey := make(map[string][]string)
	for _, d := range defs {
		for _, l := range d.labels {
			alts = append(alts, alt{key: d.key, label: l, header: d.header})
		}
		if d.key != kSection {
			byKey[d.key] = d.labels
		}
	}
	sort.SliceStable(alts, func(i, j int) bool {
		return len([]rune(alts[i].label)) > len([]rune(alts[j].label))
	})

	parts := make([]string, len(alts))
	keys := make([]string, len(alts))
	for i, a := range alts {
		colon := `\s*:`
		if a.header {
			colon = `\s*:?`
		}
		parts[i] = "(" + anchor.Pattern(a.label) + ")" + colon
		keys[i] = a.key
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(parts, "|") + `)`)
	return &table{re: re, keys: keys, byKey: byKey}
}

var (
	opinionTable      = compileTable(opinionLabels)
	registrationTable = compileTable(registrationLabels)
	genericTable      = compileTable(genericLabels)
)

// segment splits text at every known label and returns the first non-empty
// value seen for each key.
func (t *table) segment(text string) map[string]string {
	type hit struct {
		key        string
		start, end int
	}
	var hits []hit
	for _, m := range t.re.FindAllStringSubmatchIndex(text, -1) {
		for g := range t.keys {
			if s := m[2+2*g]; s >= 0 {
				hits = append(hits, hit{key: t.keys[g], start: s, end: m[1]})
				break
			}
		}
	}

	out := make(map[string]string, len(hits))
	for i, h := range hits {
		if h.key == kSection {
			continue
		}
		end := len(text)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		if _, seen := out[h.key]; seen {
			continue
		}
		if v := anchor.CutAtLabel(text[h.end:end]); v != "" {
			out[h.key] = v
		}
	}
	return out
}

// get returns the segmented value for key, or falls back to the anchor
// extractor with the key's labels.
func (t *table) get(values map[string]string, text, key string, maxLen int) string {
	if v := values[key]; v != "" {
		return v
	}
	labels := t.byKey[key]
	if len(labels) == 0 {
		return ""
	}
	return anchor.Extract(text, labels, nil, maxLen)
}

// ParseOpinionText reads the fields of a compliance opinion page.
func ParseOpinionText(text string) Fields {
	v := opinionTable.segment(text)
	f := Fields{Type: model.DocOpinion}
	f.Folio = opinionTable.get(v, text, kFolio, 40)
	f.RFC = firstRFC(opinionTable.get(v, text, kRFC, 20))
	f.LegalName = v[kLegalName]
	f.Date = opinionTable.get(v, text, kDate, 40)
	f.Sentiment = opinionTable.get(v, text, kSentiment, 40)
	return f
}

// ParseGenericText reads the folio/RFC/date/sentiment quartet from a page
// whose type is not known.
func ParseGenericText(text string) Fields {
	v := genericTable.segment(text)
	return Fields{
		Type:      TypeUnknown,
		Folio:     genericTable.get(v, text, kFolio, 40),
		RFC:       firstRFC(genericTable.get(v, text, kRFC, 20)),
		Date:      genericTable.get(v, text, kDate, 40),
		Sentiment: genericTable.get(v, text, kSentiment, 40),
	}
}

var reTrailingClause = regexp.MustCompile(`,.*$`)

// ParseRegistrationText reads the fields of a Constancia de Situación Fiscal
// page.
func ParseRegistrationText(text string) Fields {
	v := registrationTable.segment(text)
	f := Fields{Type: model.DocRegistration}

	f.RFC = firstRFC(reTrailingClause.ReplaceAllString(v[kRFCLine], ""))
	if f.RFC == "" {
		f.RFC = firstRFC(v[kRFC])
	}
	f.LegalName = v[kLegalName]
	f.CapitalRegime = v[kCapitalRegime]
	f.ConstitutionDate = v[kConstitution]
	f.StartOfOperations = v[kStartOps]
	f.Status = v[kStatus]
	f.LastStatusChange = v[kLastChange]
	f.State = v[kState]
	f.Municipality = v[kMunicipality]
	f.Colony = v[kColony]
	f.StreetType = v[kStreetType]
	f.StreetName = v[kStreetName]
	f.ExteriorNumber = v[kExterior]
	f.InteriorNumber = v[kInterior]
	f.PostalCode = v[kPostalCode]
	f.Email = v[kEmail]
	f.Regime = v[kRegime]
	f.RegistrationDate = v[kRegistration]
	f.CURP = v[kCURP]
	f.FirstName = v[kFirstName]
	f.PaternalSurname = v[kPaternal]
	f.MaternalSurname = v[kMaternal]

	var interior, cp string
	if f.InteriorNumber != "" {
		interior = "Int " + f.InteriorNumber
	}
	if f.PostalCode != "" {
		cp = "CP " + f.PostalCode
	}
	f.FullAddress = joinNonEmpty(f.StreetType, f.StreetName, f.ExteriorNumber, interior,
		f.Colony, f.Municipality, f.State, cp)

	if _, date, ok := FindCadena(text); ok {
		f.CadenaDate = date
	}
	return f
}

// ParseText dispatches on the document type.
func ParseText(t model.DocumentType, text string) Fields {
	switch t {
	case model.DocOpinion:
		return ParseOpinionText(text)
	case model.DocRegistration:
		return ParseRegistrationText(text)
	default:
		return ParseGenericText(text)
	}
}

var reRFCToken = regexp.MustCompile(`[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}`)

// firstRFC returns the first well-formed RFC in s, or "".
func firstRFC(s string) string {
	return reRFCToken.FindString(strings.ToUpper(s))
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}
