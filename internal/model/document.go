package model

import "github.com/rotisserie/eris"

// DocumentType identifies one of the three documents a supplier submits.
type DocumentType string

const (
	DocOpinion       DocumentType = "opinion"
	DocRegistration  DocumentType = "registration"
	DocBankStatement DocumentType = "bank_statement"
)

// AllDocuments lists the documents required for a complete submission.
var AllDocuments = []DocumentType{DocOpinion, DocRegistration, DocBankStatement}

// ParseDocumentType converts a path or form value into a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	switch s {
	case "opinion", "opinion_32d":
		return DocOpinion, nil
	case "registration", "csf", "constancia":
		return DocRegistration, nil
	case "bank_statement", "bancario", "bank":
		return DocBankStatement, nil
	default:
		return "", eris.Errorf("unknown document type: %q (valid: opinion, registration, bank_statement)", s)
	}
}

// IsTaxDocument reports whether the document is verified against the SAT QR.
func (d DocumentType) IsTaxDocument() bool {
	return d == DocOpinion || d == DocRegistration
}
