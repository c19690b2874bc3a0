// Package blacklist keeps the current set of excluded taxpayer identifiers
// (the published 69-B list) and rebuilds it from the official spreadsheet.
//
// Every store writes a new set under a fresh version and then swaps a single
// "current version" pointer, so readers see either the previous set or the
// new one in full, never an empty or partial set.
package blacklist

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sells-group/supplier-verify/internal/model"
)

// ErrEmptySnapshot is returned when a replace would install an empty set.
var ErrEmptySnapshot = errors.New("blacklist: refusing to replace with an empty set")

// Store persists the blacklist as a replaceable set.
type Store interface {
	// Replace installs snap as the current set and records an import.
	Replace(ctx context.Context, snap Snapshot) (*model.ImportRecord, error)
	// Contains reports whether rfc is in the current set.
	Contains(ctx context.Context, rfc string) (bool, error)
	// Count returns the size of the current set.
	Count(ctx context.Context) (int, error)
	// LastImport returns the most recent import record, or nil if none.
	LastImport(ctx context.Context) (*model.ImportRecord, error)
}

// Checker is the read side consumed by the cross-validator.
type Checker interface {
	Contains(ctx context.Context, rfc string) (bool, error)
}

// Snapshot is one complete published list.
type Snapshot struct {
	SourceURL string
	At        time.Time
	RFCs      []string
}

// NewSnapshot normalizes rfcs and drops values that are not valid
// identifiers or are repeated.
func NewSnapshot(sourceURL string, at time.Time, rfcs []string) Snapshot {
	return Snapshot{SourceURL: sourceURL, At: at.UTC(), RFCs: Normalize(rfcs)}
}

// Normalize returns the sorted, de-duplicated valid identifiers in rfcs.
func Normalize(rfcs []string) []string {
	seen := make(map[string]struct{}, len(rfcs))
	out := make([]string, 0, len(rfcs))
	for _, raw := range rfcs {
		rfc := model.NormalizeRFC(raw)
		if !model.ValidRFC(rfc) {
			continue
		}
		if _, ok := seen[rfc]; ok {
			continue
		}
		seen[rfc] = struct{}{}
		out = append(out, rfc)
	}
	sort.Strings(out)
	return out
}

func (s Snapshot) entries() []model.BlacklistEntry {
	out := make([]model.BlacklistEntry, len(s.RFCs))
	for i, rfc := range s.RFCs {
		out[i] = model.BlacklistEntry{RFC: rfc, LastSeen: s.At, SourceURL: s.SourceURL}
	}
	return out
}

func (s Snapshot) validate() error {
	if len(s.RFCs) == 0 {
		return ErrEmptySnapshot
	}
	return nil
}

func (s Snapshot) record(id string, version int64) *model.ImportRecord {
	at := s.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &model.ImportRecord{
		ID:         id,
		At:         at,
		SourceURL:  s.SourceURL,
		TotalCount: len(s.RFCs),
		Mode:       model.ImportModeReplace,
		Version:    version,
	}
}
