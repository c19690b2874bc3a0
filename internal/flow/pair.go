package flow

import (
	"context"
	"time"

	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/sat"
)

// PairChecker cross-validates the opinion and registration of a
// submission. A rejection is a result, not an error; errors mean the check
// could not be completed.
type PairChecker interface {
	CheckPair(ctx context.Context, opinionURL, registrationURL string,
		reg *model.TaxRegistration, op *model.ComplianceOpinion) (*model.CrossValidationResult, error)
}

// Validator evaluates the cross-document checks.
type Validator interface {
	Validate(ctx context.Context, reg *model.TaxRegistration, op *model.ComplianceOpinion) (*model.CrossValidationResult, error)
}

// PairCheck confirms both validator pages in pair mode before running the
// cross-document checks.
type PairCheck struct {
	verifier  sat.Verifier
	validator Validator
}

// NewPairCheck creates a PairCheck.
func NewPairCheck(verifier sat.Verifier, validator Validator) *PairCheck {
	return &PairCheck{verifier: verifier, validator: validator}
}

// CheckPair implements PairChecker.
func (p *PairCheck) CheckPair(ctx context.Context, opinionURL, registrationURL string,
	reg *model.TaxRegistration, op *model.ComplianceOpinion) (*model.CrossValidationResult, error) {
	if _, err := p.verifier.FetchPair(ctx, opinionURL, registrationURL); err != nil {
		e, ok := model.AsError(err)
		if !ok || !e.Kind.Rejection() {
			return nil, err
		}
		return rejected(reg, op, e), nil
	}
	return p.validator.Validate(ctx, reg, withRegistration(op, reg))
}

// withRegistration returns a copy of op with a missing name taken from reg.
// Opinions are often processed before the registration arrives. The RFC is
// never copied; each document must carry its own.
func withRegistration(op *model.ComplianceOpinion, reg *model.TaxRegistration) *model.ComplianceOpinion {
	if op == nil || reg == nil || op.LegalName != "" {
		return op
	}
	out := *op
	out.LegalName = reg.LegalName
	return &out
}

func rejected(reg *model.TaxRegistration, op *model.ComplianceOpinion, e *model.Error) *model.CrossValidationResult {
	return &model.CrossValidationResult{
		Reasons:      []string{e.Message},
		Verdict:      model.VerdictRejected,
		Code:         e.Kind,
		Detail:       e.Message,
		EvaluatedAt:  time.Now().UTC(),
		Registration: reg,
		Opinion:      op,
	}
}
