// Package validate applies the cross-document checks that decide whether a
// supplier's tax documents may take the fast path.
package validate

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/blacklist"
	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/model"
)

// DefaultTimeZone is the zone whose calendar days SAT documents are dated in.
const DefaultTimeZone = "America/Mexico_City"

// Config bounds the soft and hard checks.
type Config struct {
	// RecencyDays is the maximum age of the opinion in calendar days.
	RecencyDays int `yaml:"recency_days" mapstructure:"recency_days"`
	// RegistrationDays is the age past which the tax registration is
	// reported as stale.
	RegistrationDays int `yaml:"registration_days" mapstructure:"registration_days"`
	// NameThreshold is the keyword overlap ratio reported as a name match.
	NameThreshold float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	// TimeZone names the IANA zone that decides what "today" is.
	TimeZone string `yaml:"time_zone" mapstructure:"time_zone"`
}

// DefaultConfig returns 30 day windows, a 60% name threshold and Mexico
// City time.
func DefaultConfig() Config {
	return Config{RecencyDays: 30, RegistrationDays: 30, NameThreshold: 0.6, TimeZone: DefaultTimeZone}
}

// Validator runs the checks against a blacklist.
type Validator struct {
	blacklist blacklist.Checker
	cfg       Config
	loc       *time.Location
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a Validator. m may be nil.
func New(bl blacklist.Checker, cfg Config, m *metrics.Metrics) *Validator {
	def := DefaultConfig()
	if cfg.RecencyDays <= 0 {
		cfg.RecencyDays = def.RecencyDays
	}
	if cfg.RegistrationDays <= 0 {
		cfg.RegistrationDays = def.RegistrationDays
	}
	if cfg.NameThreshold <= 0 {
		cfg.NameThreshold = def.NameThreshold
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = def.TimeZone
	}
	loc, err := LoadZone(cfg.TimeZone)
	if err != nil {
		zap.L().Warn("validate: unknown time zone, using UTC-6", zap.String("zone", cfg.TimeZone), zap.Error(err))
		loc = mexicoFixed
	}
	return &Validator{blacklist: bl, cfg: cfg, loc: loc, metrics: m, now: time.Now}
}

// Mexico City has kept standard time all year since 2022.
var mexicoFixed = time.FixedZone("CST", -6*60*60)

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: load time zone %q", name)
	}
	return loc, nil
}

// Validate evaluates, in order, RFC presence and format, RFC equality,
// blacklist exclusion, positive sentiment and opinion recency. The first
// failing check decides the verdict; the result always carries both records.
// An error is returned only when the blacklist cannot be consulted.
func (v *Validator) Validate(ctx context.Context, reg *model.TaxRegistration, op *model.ComplianceOpinion) (*model.CrossValidationResult, error) {
	now := v.now()
	res := &model.CrossValidationResult{
		EvaluatedAt:  now.UTC(),
		Registration: reg,
		Opinion:      op,
	}
	if reg == nil || op == nil {
		return v.finish(reject(res, model.KindValidationIncomplete, "both the tax registration and the compliance opinion are required")), nil
	}

	res.NameSimilarity = NameSimilarity(op.LegalName, reg.LegalName)
	res.NameMatch = res.NameSimilarity >= v.cfg.NameThreshold
	res.Reasons = append(res.Reasons, fmt.Sprintf("name similarity %.0f%%", res.NameSimilarity*100))

	if regAge, ok := AgeInDays(reg.EmissionDate, now, v.loc); ok {
		res.RegistrationRecent = regAge >= 0 && regAge <= v.cfg.RegistrationDays
		if !res.RegistrationRecent {
			res.Reasons = append(res.Reasons, fmt.Sprintf("tax registration is %d days old (recommended 0 to %d)", regAge, v.cfg.RegistrationDays))
		}
	} else {
		res.Reasons = append(res.Reasons, "tax registration has no emission date")
	}

	regRFC := model.NormalizeRFC(reg.RFC)
	opRFC := model.NormalizeRFC(op.RFC)
	if !model.ValidRFC(regRFC) || !model.ValidRFC(opRFC) {
		return v.finish(reject(res, model.KindParseFailed,
			fmt.Sprintf("RFC missing or malformed (opinion %q, registration %q)", opRFC, regRFC))), nil
	}

	res.RFCMatch = regRFC == opRFC
	if !res.RFCMatch {
		return v.finish(reject(res, model.KindRFCMismatch,
			fmt.Sprintf("RFC of the compliance opinion (%s) does not match the tax registration (%s)", opRFC, regRFC))), nil
	}
	res.Reasons = append(res.Reasons, "RFC matches: "+regRFC)

	listed, err := v.blacklist.Contains(ctx, regRFC)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: blacklist lookup for %s", regRFC)
	}
	res.Blacklisted = listed
	if listed {
		return v.finish(reject(res, model.KindRFCBlacklisted,
			fmt.Sprintf("RFC %s is on the SAT 69-B list", regRFC))), nil
	}
	res.Reasons = append(res.Reasons, "RFC not on the 69-B list")

	res.PositiveOpinion = op.Sentiment == model.SentimentPositive
	if !res.PositiveOpinion {
		sentiment := string(op.Sentiment)
		if sentiment == "" {
			sentiment = "unknown"
		}
		return v.finish(reject(res, model.KindOpinionNotPositive,
			fmt.Sprintf("compliance opinion sentiment is %s", sentiment))), nil
	}
	res.Reasons = append(res.Reasons, "compliance opinion is positive")

	age, ok := AgeInDays(op.EmissionDate, now, v.loc)
	res.DateValid = ok && age >= 0 && age <= v.cfg.RecencyDays
	if !res.DateValid {
		detail := "compliance opinion has no emission date"
		if ok {
			detail = fmt.Sprintf("compliance opinion is %d days old (allowed 0 to %d)", age, v.cfg.RecencyDays)
		}
		return v.finish(reject(res, model.KindOpinionExpired, detail)), nil
	}
	res.Reasons = append(res.Reasons, fmt.Sprintf("compliance opinion issued %d days ago", age))

	res.Verdict = model.VerdictVerified
	return v.finish(res), nil
}

func reject(res *model.CrossValidationResult, kind model.ErrorKind, detail string) *model.CrossValidationResult {
	res.Verdict = model.VerdictRejected
	res.Code = kind
	res.Detail = detail
	res.Reasons = append(res.Reasons, detail)
	return res
}

func (v *Validator) finish(res *model.CrossValidationResult) *model.CrossValidationResult {
	v.metrics.CrossValidation(string(res.Verdict), string(res.Code))
	fields := []zap.Field{
		zap.String("verdict", string(res.Verdict)),
		zap.Float64("name_similarity", res.NameSimilarity),
	}
	if res.Registration != nil {
		fields = append(fields, zap.String("rfc", res.Registration.RFC))
	}
	if res.Verified() {
		zap.L().Info("validate: documents verified", fields...)
	} else {
		zap.L().Warn("validate: documents rejected", append(fields,
			zap.String("code", string(res.Code)), zap.String("detail", res.Detail))...)
	}
	return res
}

// AgeInDays returns the number of calendar days between the emission date
// and now. Document dates carry no zone, so the emission's own year, month
// and day are taken as written while now is read in loc. Future dates are
// negative.
func AgeInDays(emission *time.Time, now time.Time, loc *time.Location) (int, bool) {
	if emission == nil || emission.IsZero() {
		return 0, false
	}
	if loc == nil {
		loc = time.UTC
	}
	ey, em, ed := emission.Date()
	ny, nm, nd := now.In(loc).Date()
	from := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	to := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24), true
}
