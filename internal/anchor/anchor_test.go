package anchor

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern_AccentInsensitive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label    string
		variants []string
	}{
		{"Razón Social", []string{"Razón Social", "Razon Social", "RAZÓN SOCIAL", "RazonSocial"}},
		{"Régimen", []string{"Régimen", "Regimen", "RÉGIMEN"}},
		{"Situación del contribuyente", []string{"Situación del contribuyente", "Situacion del Contribuyente"}},
		{"Código Postal", []string{"Código Postal", "Codigo   Postal"}},
		{"Alcaldía", []string{"Alcaldía", "Alcaldia"}},
		{"Regimen", []string{"Régimen", "Regimen"}},
		{"Año", []string{"Año", "Ano"}},
		{"Pingüino", []string{"Pingüino", "Pinguino", "Pingúino"}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			re := regexp.MustCompile(`(?i)^` + Pattern(tt.label) + `$`)
			for _, v := range tt.variants {
				assert.True(t, re.MatchString(v), "%q should match %q", tt.label, v)
			}
		})
	}
}

func TestPattern_EscapesMeta(t *testing.T) {
	re := regexp.MustCompile(`(?i)` + Pattern("C.P."))
	assert.True(t, re.MatchString("C.P. 64000"))
	assert.False(t, re.MatchString("CXPX 64000"))

	re = regexp.MustCompile(`(?i)^` + Pattern("Nombre (s)") + `$`)
	assert.True(t, re.MatchString("Nombre (s)"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "razon social", Fold("RAZÓN SOCIAL"))
	assert.Equal(t, "espana", Fold("España"))
	assert.Equal(t, "pinguino", Fold("Pingüino"))
}

func TestExtract_BetweenAnchors(t *testing.T) {
	got := Extract("Razón Social: ACME SA DE CV Régimen de capital: SOCIEDAD ANONIMA",
		[]string{"Razón Social"}, []string{"Régimen de capital"}, 120)
	assert.Equal(t, "ACME SA DE CV", got)
}

func TestExtract_UnaccentedSource(t *testing.T) {
	got := Extract("RAZON SOCIAL: ACME SA DE CV REGIMEN DE CAPITAL: SA",
		[]string{"Razón Social"}, []string{"Régimen de capital"}, 120)
	assert.Equal(t, "ACME SA DE CV", got)
}

func TestExtract_EarliestStartNearestEnd(t *testing.T) {
	text := "Colonia: CENTRO Municipio: MONTERREY Colonia: OTRA Municipio: X"
	assert.Equal(t, "CENTRO", Extract(text, []string{"Colonia"}, []string{"Municipio"}, 80))
}

func TestExtract_FallbackGenericLabel(t *testing.T) {
	text := "Colonia: DEL VALLE Código Postal: 03100"
	assert.Equal(t, "DEL VALLE", Extract(text, []string{"Colonia"}, []string{"Entidad"}, 80))
}

func TestExtract_FallbackMaxLen(t *testing.T) {
	text := "Colonia: abcdefghijklmnopqrstuvwxyz"
	assert.Equal(t, "abcdefghij", Extract(text, []string{"Colonia"}, nil, 10))
}

func TestExtract_NoMatch(t *testing.T) {
	assert.Empty(t, Extract("nothing here", []string{"Razón Social"}, []string{"RFC"}, 50))
	assert.Empty(t, Extract("", []string{"Razón Social"}, []string{"RFC"}, 50))
	assert.Empty(t, Extract("Razón Social: X", nil, []string{"RFC"}, 50))
}

func TestExtract_BoundedByMaxLen(t *testing.T) {
	text := "Razón Social: AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA Régimen: X"
	got := Extract(text, []string{"Razón Social"}, []string{"Régimen"}, 12)
	assert.LessOrEqual(t, len([]rune(got)), 12)
	assert.Equal(t, "AAAAAAAAAAAA", got)
}

func TestExtract_StopPhraseCut(t *testing.T) {
	// End list is incomplete for this layout; the structural header still bounds the value.
	text := "Denominación: COMERCIAL DEL NORTE SITUACIÓN DEL CONTRIBUYENTE ACTIVO Otro: x"
	got := Extract(text, []string{"Denominación"}, []string{"Fecha de alta"}, 150)
	assert.Equal(t, "COMERCIAL DEL NORTE", got)
}

func TestExtract_HTMLInput(t *testing.T) {
	html := `<table><tr><td>Razón Social:</td><td>ACME SA DE CV</td></tr>
<script>PrimeFaces.cw("x");</script><tr><td>Régimen de capital:</td><td>SA</td></tr></table>`
	assert.Equal(t, "ACME SA DE CV", Extract(html, []string{"Razón Social"}, []string{"Régimen de capital"}, 120))
}

func TestSanitize(t *testing.T) {
	in := "<div>Hola  <b>mundo</b></div><script>var x = 1;</script> $(document).ready(init); fin"
	assert.Equal(t, "Hola mundo fin", Sanitize(in))
	assert.Empty(t, Sanitize(""))
}

func TestPostClean(t *testing.T) {
	assert.Equal(t, "CENTRO", PostClean(" : CENTRO, ", 0))
	assert.Equal(t, "CENTRO", PostClean("CENTRO Municipio: MONTERREY", 0))
	assert.Equal(t, "ESTADO DE MEXICO", PostClean("ESTADO DE MEXICO", 0))
	assert.Equal(t, "ABC", PostClean("ABCDEF", 3))
	assert.Empty(t, PostClean("", 10))
}

func TestCutAtStopPhrases_WordBoundary(t *testing.T) {
	// "CP" inside a word is not a header.
	assert.Equal(t, "ACPULCO NORTE", CutAtStopPhrases("ACPULCO NORTE"))
	assert.Equal(t, "ACME", CutAtStopPhrases("ACME C.P. 64000"))
	assert.Equal(t, "ACME", CutAtStopPhrases("ACME Régimen general"))
}

func TestCutAtHeaders_KeepsAddressWords(t *testing.T) {
	name := "CONSTRUCTORA DEL ESTADO DE MEXICO SA DE CV"
	assert.Equal(t, "CONSTRUCTORA DEL", CutAtStopPhrases(name))
	assert.Equal(t, name, CutAtHeaders(name))
	assert.Equal(t, "COLONIA NUEVA SA", CutAtHeaders("COLONIA NUEVA SA Régimen general"))
	assert.Equal(t, "ACME", CutAtHeaders("ACME C.P. 64000"))
}

func TestDefaultRules_CompanyNameWithAddressWords(t *testing.T) {
	rs := Default()
	between := "Denominación/Razón Social: CONSTRUCTORA DEL ESTADO DE MEXICO S.A. DE C.V. Régimen Capital: SA DE CV"
	assert.Equal(t, "CONSTRUCTORA DEL ESTADO DE MEXICO SA DE CV", rs.Find(FieldCompanyName, between))

	fallback := "Razón Social: MATERIALES DE LA COLONIA NUMERO UNO SA DE CV"
	assert.Equal(t, "MATERIALES DE LA COLONIA NUMERO UNO SA DE CV", rs.Find(FieldCompanyName, fallback))

	// Address fields still stop at the next address label.
	assert.Equal(t, "CENTRO", rs.Find(FieldColony, "Colonia: CENTRO ESTADO NUEVO LEON"))
}

func TestCleanCompanyName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Razón Social: acme s.a. de c.v.", "ACME SA DE CV"},
		{"Comercializadora Norte, S. de R.L. de C.V.", "COMERCIALIZADORA NORTE, S DE RL DE CV"},
		{"  Despacho Pérez S.C. ", "DESPACHO PÉREZ SC"},
		{"Grupo Alfa S.A.B. de C.V.", "GRUPO ALFA SAB DE CV"},
		{"SCHOOL SUPPLY SA DE CV", "SCHOOL SUPPLY SA DE CV"},
		{"Acme™ Corp", "ACME CORP"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanCompanyName(tt.in), tt.in)
	}
}

func TestStripLeadingLabel(t *testing.T) {
	assert.Equal(t, "REFORMA", StripLeadingLabel("Nombre de la vialidad: REFORMA"))
	assert.Equal(t, "REFORMA", StripLeadingLabel("vialidad REFORMA"))
	assert.Equal(t, "X", StripLeadingLabel("Colonia: X", "Colonia"))
	assert.Equal(t, "REFORMA", StripStreetType("AVENIDA REFORMA"))
	assert.Equal(t, "JUAREZ", StripStreetType("calle JUAREZ"))
}

func TestParseAnyDate(t *testing.T) {
	want := time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2025/03/07",
		"2025-03-07 10:00",
		"07/03/2025",
		"07-03-2025",
		"7 de marzo de 2025",
		"Emitido el 07 DE MARZO DE 2025",
	} {
		got, ok := ParseAnyDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParseAnyDate("1 de Septiembre de 2024")
	require.True(t, ok)
	assert.Equal(t, time.September, got.Month())

	for _, in := range []string{"", "sin fecha", "31/02/2025", "5 de brumario de 2025"} {
		_, ok := ParseAnyDate(in)
		assert.False(t, ok, in)
	}
	assert.Nil(t, ParseDatePtr("nope"))
	assert.NotNil(t, ParseDatePtr("2025/01/01"))
}

func TestCadenaDate(t *testing.T) {
	got, ok := CadenaDate("Cadena Original Sello: ||2025/10/01 13:45:09|ACM010101AB1|CONSTANCIA DE SITUACIÓN FISCAL|")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.October, 1, 13, 45, 9, 0, time.UTC), got)

	got, ok = CadenaDate("Lugar y Fecha de Emisión MONTERREY , NUEVO LEON A 15 DE OCTUBRE DE 2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC), got)

	_, ok = CadenaDate("no timestamp")
	assert.False(t, ok)
}

func TestDefaultRules(t *testing.T) {
	rs := Default()
	for _, f := range []string{
		FieldCompanyName, FieldStreet, FieldExteriorNumber, FieldColony, FieldCity,
		FieldState, FieldPostalCode, FieldFirstName, FieldPaternalSurname, FieldMaternalSurname,
	} {
		assert.True(t, rs.Has(f), f)
	}

	blob := "Denominación/Razón Social: Servicios Delta, S.A. de C.V. Régimen Capital: SA DE CV " +
		"Datos de Ubicación del domicilio registrado Código Postal:64000 Tipo de Vialidad: CALLE " +
		"Nombre de Vialidad: AVENIDA CONSTITUCION Número Exterior: 123 Número Interior: 4 " +
		"Nombre de la Colonia: CENTRO Nombre del Municipio o Demarcación Territorial: MONTERREY " +
		"Nombre de la Entidad Federativa: NUEVO LEON Entre Calle: X"

	assert.Equal(t, "SERVICIOS DELTA, SA DE CV", rs.Find(FieldCompanyName, blob))
	assert.Equal(t, "CONSTITUCION", rs.Find(FieldStreet, blob))
	assert.Equal(t, "123", rs.Find(FieldExteriorNumber, blob))
	assert.Equal(t, "CENTRO", rs.Find(FieldColony, blob))
	assert.Equal(t, "MONTERREY", rs.Find(FieldCity, blob))
	assert.Equal(t, "NUEVO LEON", rs.Find(FieldState, blob))
	assert.Equal(t, "64000", rs.Find(FieldPostalCode, blob))
	assert.Empty(t, rs.Find("unknown", blob))
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules([]byte("rules: [{field: x}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no start labels")

	_, err = LoadRules([]byte("rules: [{field: x, start: [a], post: [nope]}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown post-processor")

	_, err = LoadRules([]byte("rules: [{field: x, start: [a]}, {field: x, start: [b]}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = LoadRules([]byte("rules: [{field: x, start: [a], stops: streets}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stops")

	_, err = LoadRules([]byte("rules: [{start: [a]}]"))
	require.Error(t, err)

	_, err = LoadRules([]byte(":::"))
	require.Error(t, err)
}

func TestCutAtLabel(t *testing.T) {
	assert.Equal(t, "contacto@delta.mx", CutAtLabel("  contacto@delta.mx   AL: NUEVO LEON "))
	assert.Equal(t, "MONTERREY", CutAtLabel(": MONTERREY,"))
	assert.Equal(t, "RFC: ABC010101AAA", CutAtLabel("RFC: ABC010101AAA"))
	assert.Equal(t, "", CutAtLabel("  "))
}
