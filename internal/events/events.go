// Package events delivers the named notifications a submission emits while
// its documents are processed.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/supplier-verify/internal/model"
)

// Name identifies the kind of event.
type Name string

const (
	DocumentUploaded Name = "document.uploaded"
	FieldsExtracted  Name = "fields.extracted"
	DocumentFailed   Name = "document.failed"
	PairVerified     Name = "pair.verified"
	PairFailed       Name = "pair.failed"
	StepChanged      Name = "step.changed"
)

// Event is a single notification.
type Event struct {
	ID           string             `json:"id"`
	Name         Name               `json:"name"`
	SubmissionID string             `json:"submission_id"`
	Document     model.DocumentType `json:"document,omitempty"`
	Reason       model.ErrorKind    `json:"reason,omitempty"`
	Message      string             `json:"message,omitempty"`
	Data         map[string]any     `json:"data,omitempty"`
	At           time.Time          `json:"at"`
}

// New creates an event stamped with a fresh id and the current time.
func New(name Name, submissionID string, doc model.DocumentType) Event {
	return Event{
		ID:           uuid.NewString(),
		Name:         name,
		SubmissionID: submissionID,
		Document:     doc,
		At:           time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
