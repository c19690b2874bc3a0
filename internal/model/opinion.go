package model

import "time"

// Sentiment is the verdict printed on a compliance opinion.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentUnknown  Sentiment = ""
)

// ComplianceOpinion is the canonical record built from an Opinión de
// Cumplimiento 32-D.
type ComplianceOpinion struct {
	RFC          string     `json:"rfc"`
	LegalName    string     `json:"legal_name,omitempty"`
	Sentiment    Sentiment  `json:"sentiment"`
	EmissionRaw  string     `json:"emission_raw,omitempty"`
	EmissionDate *time.Time `json:"emission_date,omitempty"`
	Folio        string     `json:"folio,omitempty"`
	Provenance   Provenance `json:"provenance"`
	Blob         string     `json:"-"`
}
