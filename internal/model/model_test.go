package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRFC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rfc  string
		want PersonType
	}{
		{"ABC010101AAA", PersonMoral},
		{"ABCD010101AAA", PersonFisica},
		{"ABC0101", PersonUnknown},
		{"ABCDE010101AAAA", PersonUnknown},
		{"", PersonUnknown},
		{"ÑAB010101AAA", PersonMoral},
	}
	for _, tt := range tests {
		t.Run(tt.rfc, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyRFC(tt.rfc))
		})
	}
}

func TestNormalizeRFC(t *testing.T) {
	assert.Equal(t, "ABC010101AAA", NormalizeRFC("  abc-010101-aaa "))
	assert.Equal(t, "ABC010101AAA", NormalizeRFC("ABC 010101 AAA"))
}

func TestValidRFC(t *testing.T) {
	assert.True(t, ValidRFC("ABC010101AAA"))
	assert.True(t, ValidRFC("ABCD010101AA1"))
	assert.True(t, ValidRFC("A&C010101AAA"))
	assert.False(t, ValidRFC("AB010101AAA"))
	assert.False(t, ValidRFC("ABC01010AAAA"))
	assert.False(t, ValidRFC("abc010101aaa"))
}

func TestPersonTypeLabel(t *testing.T) {
	assert.Equal(t, "PERSONA MORAL", PersonMoral.Label())
	assert.Equal(t, "PERSONA FÍSICA", PersonFisica.Label())
	assert.Empty(t, PersonUnknown.Label())
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindFetchFailed.Retryable())
	for _, k := range []ErrorKind{KindQRNotFound, KindParseFailed, KindRFCMismatch, KindRFCBlacklisted, KindOpinionExpired} {
		assert.False(t, k.Retryable(), k)
	}
}

func TestErrorKind_Rejection(t *testing.T) {
	assert.True(t, KindRFCBlacklisted.Rejection())
	assert.True(t, KindRFCMismatch.Rejection())
	assert.False(t, KindFetchFailed.Rejection())
	assert.False(t, KindQRNotFound.Rejection())
	assert.False(t, KindValidationIncomplete.Rejection())
}

func TestKindOf_ThroughErisWrap(t *testing.T) {
	base := NewError(KindParseFailed, "no rfc").WithDetail("url", "https://example")
	wrapped := eris.Wrap(base, "pipeline: map registration")

	assert.Equal(t, KindParseFailed, KindOf(wrapped))
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "https://example", e.Details["url"])
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	e := WrapError(KindFetchFailed, errors.New("dial tcp: timeout"), "fetch verification page")
	assert.Equal(t, "FETCH_FAILED: fetch verification page: dial tcp: timeout", e.Error())
	assert.Equal(t, "RFC_MISMATCH: x", Errorf(KindRFCMismatch, "%s", "x").Error())
}

func TestParseDocumentType(t *testing.T) {
	d, err := ParseDocumentType("csf")
	require.NoError(t, err)
	assert.Equal(t, DocRegistration, d)

	d, err = ParseDocumentType("bank_statement")
	require.NoError(t, err)
	assert.Equal(t, DocBankStatement, d)
	assert.False(t, d.IsTaxDocument())

	_, err = ParseDocumentType("passport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown document type")
}

func TestCrossValidationResult_Err(t *testing.T) {
	ok := &CrossValidationResult{Verdict: VerdictVerified}
	assert.NoError(t, ok.Err())

	bad := &CrossValidationResult{
		Verdict:      VerdictRejected,
		Code:         KindRFCMismatch,
		Detail:       "opinion ABC010101AAA != registration XYZ020202BBB",
		Registration: &TaxRegistration{RFC: "XYZ020202BBB"},
		Opinion:      &ComplianceOpinion{RFC: "ABC010101AAA"},
	}
	err := bad.Err()
	require.Error(t, err)
	e, _ := AsError(err)
	assert.Equal(t, KindRFCMismatch, e.Kind)
	assert.Equal(t, "XYZ020202BBB", e.Details["registration_rfc"])
	assert.Equal(t, "ABC010101AAA", e.Details["opinion_rfc"])
}

func TestCompanyInfo(t *testing.T) {
	r := &TaxRegistration{LegalName: "ACME SA DE CV", RFC: "ACM010101AB1", City: "Monterrey"}
	info := r.CompanyInfo()
	assert.Equal(t, "PERSONA MORAL", info.PersonType)
	assert.Equal(t, "México", info.Country)
	assert.Equal(t, "Monterrey", info.City)

	var nilReg *TaxRegistration
	assert.Equal(t, CompanyInfo{}, nilReg.CompanyInfo())
}
