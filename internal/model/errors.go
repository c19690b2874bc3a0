package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the document verification chain.
type ErrorKind string

const (
	KindQRNotFound           ErrorKind = "QR_NOT_FOUND"
	KindURLNotOfficial       ErrorKind = "URL_NOT_OFFICIAL"
	KindFetchFailed          ErrorKind = "FETCH_FAILED"
	KindParseFailed          ErrorKind = "PARSE_FAILED"
	KindRFCMismatch          ErrorKind = "RFC_MISMATCH"
	KindRFCBlacklisted       ErrorKind = "RFC_BLACKLISTED"
	KindOpinionNotPositive   ErrorKind = "OPINION_NOT_POSITIVE"
	KindOpinionExpired       ErrorKind = "OPINION_EXPIRED"
	KindValidationIncomplete ErrorKind = "VALIDATION_INCOMPLETE"
	KindBankMismatch         ErrorKind = "BANK_DATA_MISMATCH"
)

// Retryable reports whether an operation failing with this kind may be
// retried automatically. Only pure network failures qualify.
func (k ErrorKind) Retryable() bool {
	return k == KindFetchFailed
}

// Rejection reports whether the kind is a verdict about the documents
// themselves rather than a processing failure. Rejections lock a submission
// into manual review.
func (k ErrorKind) Rejection() bool {
	switch k {
	case KindRFCMismatch, KindRFCBlacklisted, KindOpinionNotPositive, KindOpinionExpired, KindURLNotOfficial:
		return true
	default:
		return false
	}
}

// Error is a typed failure carrying a reason code and reviewer-facing detail.
type Error struct {
	Kind    ErrorKind         `json:"reason"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying cause.
func WrapError(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithDetail returns e with key set in its detail map.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of the first *Error in err's chain, or "" when
// err carries no kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
