package flow

import (
	"time"

	"github.com/sells-group/supplier-verify/internal/bank"
	"github.com/sells-group/supplier-verify/internal/model"
)

// Step is the position of a submission in the onboarding flow.
type Step string

const (
	StepCollecting   Step = "collecting-documents"
	StepValidating   Step = "validating"
	StepFastPath     Step = "fast-path"
	StepManualReview Step = "manual-review"
)

// DocumentStatus tracks one uploaded document.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusValid      DocumentStatus = "valid"
	StatusInvalid    DocumentStatus = "invalid"
)

// DocumentState is the latest upload of one document.
type DocumentState struct {
	Type       model.DocumentType `json:"type"`
	Generation int                `json:"generation"`
	Status     DocumentStatus     `json:"status"`
	Valid      bool               `json:"valid"`
	FileName   string             `json:"file_name"`
	StorageURL string             `json:"storage_url,omitempty"`
	QRURL      string             `json:"qr_url,omitempty"`
	Error      *model.Error       `json:"error,omitempty"`
	UploadedAt time.Time          `json:"uploaded_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Submission is a point-in-time snapshot of a submission.
type Submission struct {
	ID                 string                               `json:"id"`
	Step               Step                                 `json:"step"`
	Documents          map[model.DocumentType]DocumentState `json:"documents"`
	Registration       *model.TaxRegistration               `json:"registration,omitempty"`
	Company            *model.CompanyInfo                   `json:"company,omitempty"`
	Opinion            *model.ComplianceOpinion             `json:"opinion,omitempty"`
	Bank               *bank.Verification                   `json:"bank,omitempty"`
	PairVerified       bool                                 `json:"pair_verified"`
	ForcedManualReview bool                                 `json:"forced_manual_review"`
	LockOwners         []model.DocumentType                 `json:"lock_owners,omitempty"`
	LastFailure        string                               `json:"last_failure,omitempty"`
	LastFailureCode    model.ErrorKind                      `json:"last_failure_code,omitempty"`
	Validation         *model.CrossValidationResult         `json:"validation,omitempty"`
	CreatedAt          time.Time                            `json:"created_at"`
	UpdatedAt          time.Time                            `json:"updated_at"`
}

// Valid reports whether doc has been processed successfully.
func (s *Submission) Valid(doc model.DocumentType) bool {
	d, ok := s.Documents[doc]
	return ok && d.Valid
}
