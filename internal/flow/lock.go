package flow

import "github.com/sells-group/supplier-verify/internal/model"

// LockEvent is a document event that may change the review lock.
type LockEvent string

const (
	// LockPairRejected follows a failed cross-validation of the tax pair.
	LockPairRejected LockEvent = "pair_rejected"
	// LockDocumentRejected follows a rejection of a single document.
	LockDocumentRejected LockEvent = "document_rejected"
	// LockDocumentReplaced follows a new upload of a document.
	LockDocumentReplaced LockEvent = "document_replaced"
)

type lockAction int

const (
	lockKeep lockAction = iota
	lockAcquirePair
	lockAcquireDocument
	lockRelease
)

// lockKey selects a transition by event and whether the document of the
// event currently owns the lock.
type lockKey struct {
	event LockEvent
	owner bool
}

var lockTransitions = map[lockKey]lockAction{
	{LockPairRejected, false}:     lockAcquirePair,
	{LockPairRejected, true}:      lockAcquirePair,
	{LockDocumentRejected, false}: lockAcquireDocument,
	{LockDocumentRejected, true}:  lockAcquireDocument,
	{LockDocumentReplaced, false}: lockKeep,
	{LockDocumentReplaced, true}:  lockRelease,
}

// Lock forces a submission into manual review. Only a new upload of a
// document that caused the lock releases it.
type Lock struct {
	owners  map[model.DocumentType]bool
	Reason  model.ErrorKind
	Message string
}

// Held reports whether the lock is set.
func (l *Lock) Held() bool {
	return len(l.owners) > 0
}

// Owns reports whether doc is one of the documents that caused the lock.
func (l *Lock) Owns(doc model.DocumentType) bool {
	return l.owners[doc]
}

// Owners lists the lock owners in submission order.
func (l *Lock) Owners() []model.DocumentType {
	var out []model.DocumentType
	for _, d := range model.AllDocuments {
		if l.owners[d] {
			out = append(out, d)
		}
	}
	return out
}

// Apply runs the transition for ev on doc and reports whether the lock
// changed. reason and message describe the failure for acquiring events.
func (l *Lock) Apply(ev LockEvent, doc model.DocumentType, reason model.ErrorKind, message string) bool {
	switch lockTransitions[lockKey{event: ev, owner: l.Owns(doc)}] {
	case lockAcquirePair:
		l.acquire(reason, message, model.DocOpinion, model.DocRegistration)
	case lockAcquireDocument:
		l.acquire(reason, message, doc)
	case lockRelease:
		*l = Lock{}
	default:
		return false
	}
	return true
}

func (l *Lock) acquire(reason model.ErrorKind, message string, docs ...model.DocumentType) {
	if l.owners == nil {
		l.owners = make(map[model.DocumentType]bool)
	}
	for _, d := range docs {
		l.owners[d] = true
	}
	l.Reason = reason
	l.Message = message
}
