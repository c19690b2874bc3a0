package model

import "time"

// Verdict is the terminal state of a cross-validation.
type Verdict string

const (
	VerdictVerified Verdict = "verified"
	VerdictRejected Verdict = "rejected"
)

// CrossValidationResult captures every check of a cross-validation run along
// with whatever was extracted, so a reviewer can see why it failed.
type CrossValidationResult struct {
	RFCMatch        bool    `json:"rfc_match"`
	Blacklisted     bool    `json:"blacklisted"`
	PositiveOpinion bool    `json:"positive_opinion"`
	DateValid       bool    `json:"date_valid"`
	NameSimilarity  float64 `json:"name_similarity"`
	NameMatch       bool    `json:"name_match"`

	// RegistrationRecent reports whether the tax registration was issued
	// within the registration window. It never decides the verdict.
	RegistrationRecent bool `json:"registration_recent"`

	Reasons     []string  `json:"reasons"`
	Verdict     Verdict   `json:"verdict"`
	Code        ErrorKind `json:"code,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`

	Registration *TaxRegistration   `json:"registration,omitempty"`
	Opinion      *ComplianceOpinion `json:"opinion,omitempty"`
}

// Verified reports whether every blocking check passed.
func (r *CrossValidationResult) Verified() bool {
	return r != nil && r.Verdict == VerdictVerified
}

// Err converts a rejected result into a typed error carrying its reason code.
// It returns nil for verified results.
func (r *CrossValidationResult) Err() error {
	if r == nil || r.Verified() {
		return nil
	}
	e := NewError(r.Code, r.Detail)
	if r.Registration != nil {
		e.WithDetail("registration_rfc", r.Registration.RFC)
	}
	if r.Opinion != nil {
		e.WithDetail("opinion_rfc", r.Opinion.RFC)
	}
	return e
}
