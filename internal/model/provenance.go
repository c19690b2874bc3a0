package model

import "time"

// Source identifies where a canonical entity's fields came from.
type Source string

const (
	// SourceSATQR marks entities built from the official verification page a QR pointed to.
	SourceSATQR Source = "sat-qr"
	// SourceQuery marks values recovered only from the QR URL's query parameters.
	SourceQuery Source = "sat-query"
	// SourceManual marks entities keyed in by a reviewer.
	SourceManual Source = "manual"
)

// Provenance records where an entity was extracted from and when.
type Provenance struct {
	Source      Source    `json:"source"`
	SourceURL   string    `json:"source_url,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}
