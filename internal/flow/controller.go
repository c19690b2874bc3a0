// Package flow drives a supplier submission from the first upload to either
// the fast path or manual review.
package flow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/events"
	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/storage"
)

var (
	ErrInvalidSubmission = eris.New("flow: invalid submission id")
	ErrUnknownSubmission = eris.New("flow: submission not found")
	ErrClosed            = eris.New("flow: controller is closed")
)

// Options configures a Controller.
type Options struct {
	MaxBytes       int64
	ProcessTimeout time.Duration
	TempDir        string
	Storage        storage.Uploader
	Events         events.Publisher
	Metrics        *metrics.Metrics
}

// Upload is one document submitted by a supplier.
type Upload struct {
	SubmissionID string
	Document     model.DocumentType
	FileName     string
	Body         io.Reader
	Declared     Declared
}

type document struct {
	state   DocumentState
	outcome *Outcome
	cancel  context.CancelFunc
}

type submission struct {
	id          string
	docs        map[model.DocumentType]*document
	lock        Lock
	pairGen     [2]int
	pairRunning bool
	pairCancel  context.CancelFunc
	verified    bool
	validation  *model.CrossValidationResult
	lastFailure string
	lastCode    model.ErrorKind
	step        Step
	createdAt   time.Time
	updatedAt   time.Time
}

// Controller keeps the state of every submission and runs document
// processing in the background. Each document of a submission is processed
// independently; a new upload of a document abandons the previous run for
// that document only.
type Controller struct {
	processor Processor
	pair      PairChecker
	opts      Options
	now       func() time.Time

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	subs   map[string]*submission
}

// NewController creates a Controller.
func NewController(processor Processor, pair PairChecker, opts Options) *Controller {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 90 * time.Second
	}
	if opts.Events == nil {
		opts.Events = events.Multi{}
	}
	base, stop := context.WithCancel(context.Background())
	return &Controller{
		processor: processor,
		pair:      pair,
		opts:      opts,
		now:       time.Now,
		base:      base,
		stop:      stop,
		subs:      make(map[string]*submission),
	}
}

// Create starts an empty submission and returns its id.
func (c *Controller) Create() string {
	id := uuid.NewString()
	c.mu.Lock()
	c.getOrCreate(id)
	c.mu.Unlock()
	return id
}

// Get returns a snapshot of a submission.
func (c *Controller) Get(id string) (*Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.subs[id]
	if !ok {
		return nil, ErrUnknownSubmission
	}
	return s.snapshot(), nil
}

// Submit accepts a document, stores it and starts processing. It returns
// once the upload is recorded; results arrive through events and Get.
func (c *Controller) Submit(ctx context.Context, up Upload) (*Submission, error) {
	if !storage.ValidSubmissionID(up.SubmissionID) {
		return nil, ErrInvalidSubmission
	}
	data, err := ReadPDF(up.Body, c.opts.MaxBytes)
	if err != nil {
		c.opts.Metrics.Document(string(up.Document), "rejected_intake")
		return nil, err
	}

	var storageURL string
	if c.opts.Storage != nil {
		storageURL, err = c.opts.Storage.Upload(ctx, storage.Object{
			SubmissionID: up.SubmissionID,
			Document:     up.Document,
			FileName:     up.FileName,
			ContentType:  "application/pdf",
			Body:         bytes.NewReader(data),
		})
		if err != nil {
			return nil, eris.Wrap(err, "flow: store document")
		}
	}

	path, err := c.writeTemp(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = os.Remove(path)
		return nil, ErrClosed
	}
	s := c.getOrCreate(up.SubmissionID)
	now := c.now()
	d := s.docs[up.Document]
	if d == nil {
		d = &document{}
		s.docs[up.Document] = d
	} else if d.cancel != nil {
		d.cancel()
	}

	if s.lock.Apply(LockDocumentReplaced, up.Document, "", "") {
		zap.L().Info("flow: review lock released",
			zap.String("submission_id", s.id),
			zap.String("document", string(up.Document)))
		s.lastFailure, s.lastCode = "", ""
	}

	gen := d.state.Generation + 1
	d.state = DocumentState{
		Type:       up.Document,
		Generation: gen,
		Status:     StatusProcessing,
		FileName:   up.FileName,
		StorageURL: storageURL,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	d.outcome = nil
	if up.Document.IsTaxDocument() {
		s.resetPair()
	}
	s.updatedAt = now

	docCtx, cancel := context.WithTimeout(c.base, c.opts.ProcessTimeout)
	d.cancel = cancel

	ev := events.New(events.DocumentUploaded, s.id, up.Document)
	ev.Data = map[string]any{"file_name": up.FileName, "storage_url": storageURL, "generation": gen}
	evs := append([]events.Event{ev}, c.updateStep(s)...)
	snap := s.snapshot()
	c.wg.Add(1)
	c.mu.Unlock()

	zap.L().Info("flow: document accepted",
		zap.String("submission_id", up.SubmissionID),
		zap.String("document", string(up.Document)),
		zap.Int("generation", gen),
		zap.Int("bytes", len(data)))
	c.publish(evs)

	go c.process(docCtx, cancel, up.SubmissionID, up.Document, gen, path, up.Declared)
	return snap, nil
}

// Revalidate runs the pair check again for the current documents, for
// example after a network failure. It does nothing while the submission is
// locked or the tax documents are not both valid.
func (c *Controller) Revalidate(id string) (*Submission, error) {
	c.mu.Lock()
	s, ok := c.subs[id]
	if !ok {
		c.mu.Unlock()
		return nil, ErrUnknownSubmission
	}
	if !s.pairRunning {
		s.pairGen = [2]int{}
	}
	job := c.pairJob(s)
	evs := c.updateStep(s)
	snap := s.snapshot()
	if job != nil {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.publish(evs)
	if job != nil {
		go func() {
			defer c.wg.Done()
			c.runPair(job)
		}()
	}
	return snap, nil
}

// Wait blocks until all background processing has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight processing and waits for it to stop.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

func (c *Controller) getOrCreate(id string) *submission {
	s, ok := c.subs[id]
	if !ok {
		now := c.now()
		s = &submission{
			id:        id,
			docs:      make(map[model.DocumentType]*document),
			step:      StepCollecting,
			createdAt: now,
			updatedAt: now,
		}
		c.subs[id] = s
	}
	return s
}

func (c *Controller) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(c.opts.TempDir, "supplier-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "flow: create temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		_ = os.Remove(f.Name())
		return "", eris.Wrap(err, "flow: write temp file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", eris.Wrap(err, "flow: close temp file")
	}
	return f.Name(), nil
}

func (c *Controller) process(ctx context.Context, cancel context.CancelFunc, id string,
	doc model.DocumentType, gen int, path string, declared Declared) {
	defer c.wg.Done()
	defer cancel()
	defer os.Remove(path) //nolint:errcheck

	log := zap.L().With(zap.String("submission_id", id), zap.String("document", string(doc)), zap.Int("generation", gen))
	out, err := c.processor.Process(ctx, doc, path, declared)

	c.mu.Lock()
	s := c.subs[id]
	d := s.docs[doc]
	if d.state.Generation != gen {
		c.mu.Unlock()
		log.Info("flow: superseded result discarded")
		return
	}
	d.cancel = nil
	now := c.now()
	d.state.UpdatedAt = now
	s.updatedAt = now

	var evs []events.Event
	if err != nil {
		e := asModelError(ctx, err)
		d.state.Status = StatusInvalid
		d.state.Valid = false
		d.state.Error = e
		c.opts.Metrics.Document(string(doc), "invalid")
		log.Warn("flow: document failed", zap.String("reason", string(e.Kind)), zap.Error(err))

		ev := events.New(events.DocumentFailed, id, doc)
		ev.Reason = e.Kind
		ev.Message = e.Message
		if len(e.Details) > 0 {
			ev.Data = map[string]any{"details": e.Details}
		}
		evs = append(evs, ev)
		if e.Kind.Rejection() && s.lock.Apply(LockDocumentRejected, doc, e.Kind, e.Message) {
			s.lastFailure, s.lastCode = e.Message, e.Kind
			log.Warn("flow: review lock set", zap.String("reason", string(e.Kind)))
		}
	} else {
		d.state.Status = StatusValid
		d.state.Valid = true
		d.state.Error = nil
		d.state.QRURL = out.URL
		d.outcome = out
		c.opts.Metrics.Document(string(doc), "valid")
		log.Info("flow: document verified")

		ev := events.New(events.FieldsExtracted, id, doc)
		ev.Data = outcomeData(out)
		evs = append(evs, ev)
	}

	job := c.pairJob(s)
	evs = append(evs, c.updateStep(s)...)
	if job != nil {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.publish(evs)
	if job != nil {
		defer c.wg.Done()
		c.runPair(job)
	}
}

type pairJob struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string
	gen    [2]int
	opURL  string
	regURL string
	op     *model.ComplianceOpinion
	reg    *model.TaxRegistration
}

// pairJob starts a pair check when both tax documents are valid, the
// submission is not locked and these uploads were not checked yet. Callers
// hold c.mu.
func (c *Controller) pairJob(s *submission) *pairJob {
	op, reg := s.docs[model.DocOpinion], s.docs[model.DocRegistration]
	if op == nil || reg == nil || !op.state.Valid || !reg.state.Valid || s.lock.Held() || s.pairRunning {
		return nil
	}
	gen := [2]int{op.state.Generation, reg.state.Generation}
	if s.pairGen == gen {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.base, c.opts.ProcessTimeout)
	s.pairGen = gen
	s.pairRunning = true
	s.pairCancel = cancel
	return &pairJob{
		ctx:    ctx,
		cancel: cancel,
		id:     s.id,
		gen:    gen,
		opURL:  op.state.QRURL,
		regURL: reg.state.QRURL,
		op:     op.outcome.Opinion,
		reg:    reg.outcome.Registration,
	}
}

func (c *Controller) runPair(job *pairJob) {
	defer job.cancel()
	log := zap.L().With(zap.String("submission_id", job.id))
	res, err := c.pair.CheckPair(job.ctx, job.opURL, job.regURL, job.reg, job.op)

	c.mu.Lock()
	s := c.subs[job.id]
	if s.currentPairGen() != job.gen || !s.pairRunning {
		c.mu.Unlock()
		log.Info("flow: superseded pair result discarded")
		return
	}
	s.pairRunning = false
	s.pairCancel = nil
	s.updatedAt = c.now()

	var evs []events.Event
	switch {
	case err != nil:
		e := asModelError(job.ctx, err)
		s.lastFailure, s.lastCode = e.Message, e.Kind
		log.Warn("flow: pair check failed", zap.String("reason", string(e.Kind)), zap.Error(err))
		ev := events.New(events.PairFailed, s.id, "")
		ev.Reason = e.Kind
		ev.Message = FailureMessage(e.Kind, e.Message)
		evs = append(evs, ev)
	case res.Verified():
		s.verified = true
		s.validation = res
		log.Info("flow: pair verified", zap.String("rfc", res.Registration.RFC))
		ev := events.New(events.PairVerified, s.id, "")
		ev.Data = map[string]any{"rfc": res.Registration.RFC, "name_similarity": res.NameSimilarity}
		evs = append(evs, ev)
	default:
		s.validation = res
		msg := FailureMessage(res.Code, res.Detail)
		s.lastFailure, s.lastCode = msg, res.Code
		if res.Code.Rejection() && s.lock.Apply(LockPairRejected, "", res.Code, msg) {
			log.Warn("flow: review lock set", zap.String("reason", string(res.Code)))
		}
		ev := events.New(events.PairFailed, s.id, "")
		ev.Reason = res.Code
		ev.Message = msg
		if e, ok := model.AsError(res.Err()); ok && len(e.Details) > 0 {
			ev.Data = map[string]any{"details": e.Details}
		}
		evs = append(evs, ev)
	}
	evs = append(evs, c.updateStep(s)...)
	c.mu.Unlock()
	c.publish(evs)
}

// updateStep recomputes the step and returns a StepChanged event when it
// moved. Callers hold c.mu.
func (c *Controller) updateStep(s *submission) []events.Event {
	next := s.computeStep()
	if next == s.step {
		return nil
	}
	prev := s.step
	s.step = next
	zap.L().Info("flow: step changed",
		zap.String("submission_id", s.id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	ev := events.New(events.StepChanged, s.id, "")
	ev.Data = map[string]any{"from": string(prev), "to": string(next)}
	if next == StepManualReview && s.lastFailure != "" {
		ev.Reason = s.lastCode
		ev.Message = s.lastFailure
	}
	return []events.Event{ev}
}

func (c *Controller) publish(evs []events.Event) {
	for _, ev := range evs {
		if err := c.opts.Events.Publish(c.base, ev); err != nil {
			zap.L().Warn("flow: publish event failed", zap.String("name", string(ev.Name)), zap.Error(err))
		}
	}
}

// resetPair drops the pair result after a tax document changed.
func (s *submission) resetPair() {
	if s.pairCancel != nil {
		s.pairCancel()
	}
	s.pairCancel = nil
	s.pairRunning = false
	s.verified = false
	s.validation = nil
}

func (s *submission) currentPairGen() [2]int {
	var gen [2]int
	if d := s.docs[model.DocOpinion]; d != nil {
		gen[0] = d.state.Generation
	}
	if d := s.docs[model.DocRegistration]; d != nil {
		gen[1] = d.state.Generation
	}
	return gen
}

// computeStep derives the step. A held lock always means manual review;
// otherwise the fast path needs all three documents valid and the pair
// verified.
func (s *submission) computeStep() Step {
	if s.lock.Held() {
		return StepManualReview
	}
	busy := s.pairRunning
	allValid := true
	for _, doc := range model.AllDocuments {
		d := s.docs[doc]
		if d == nil {
			return StepCollecting
		}
		if d.state.Status == StatusProcessing {
			busy = true
		}
		allValid = allValid && d.state.Valid
	}
	switch {
	case busy:
		return StepValidating
	case allValid && s.verified:
		return StepFastPath
	default:
		return StepManualReview
	}
}

func (s *submission) snapshot() *Submission {
	out := &Submission{
		ID:                 s.id,
		Step:               s.step,
		Documents:          make(map[model.DocumentType]DocumentState, len(s.docs)),
		PairVerified:       s.verified,
		ForcedManualReview: s.lock.Held(),
		LockOwners:         s.lock.Owners(),
		LastFailure:        s.lastFailure,
		LastFailureCode:    s.lastCode,
		Validation:         s.validation,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
	}
	for doc, d := range s.docs {
		out.Documents[doc] = d.state
		if d.outcome == nil {
			continue
		}
		switch {
		case d.outcome.Registration != nil:
			out.Registration = d.outcome.Registration
			info := d.outcome.Registration.CompanyInfo()
			out.Company = &info
		case d.outcome.Opinion != nil:
			out.Opinion = d.outcome.Opinion
		case d.outcome.Bank != nil:
			out.Bank = d.outcome.Bank
		}
	}
	if s.validation != nil && s.validation.Opinion != nil {
		out.Opinion = s.validation.Opinion
	}
	return out
}

// asModelError types an untyped processing error. A timeout counts as a
// network failure.
func asModelError(ctx context.Context, err error) *model.Error {
	if e, ok := model.AsError(err); ok {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.WrapError(model.KindFetchFailed, err, "processing timed out")
	}
	return model.WrapError(model.KindParseFailed, err, "document could not be processed")
}

var failureMessages = map[model.ErrorKind]string{
	model.KindQRNotFound:           "No SAT QR code was found in the document.",
	model.KindURLNotOfficial:       "The QR code does not point to the official SAT validator.",
	model.KindFetchFailed:          "The SAT validator could not be reached. Try again later.",
	model.KindParseFailed:          "The SAT validator page could not be read.",
	model.KindRFCMismatch:          "The RFC of the compliance opinion does not match the tax registration.",
	model.KindRFCBlacklisted:       "The RFC appears on the SAT 69-B list.",
	model.KindOpinionNotPositive:   "The compliance opinion is not positive.",
	model.KindOpinionExpired:       "The compliance opinion is older than allowed.",
	model.KindValidationIncomplete: "The tax registration and the compliance opinion are both required.",
	model.KindBankMismatch:         "The bank statement does not show the declared account.",
}

// FailureMessage returns a human-readable message for a failure, never
// empty.
func FailureMessage(kind model.ErrorKind, detail string) string {
	if detail != "" {
		return detail
	}
	if msg, ok := failureMessages[kind]; ok {
		return msg
	}
	return "The documents could not be verified."
}

// outcomeData is the FieldsExtracted payload.
func outcomeData(out *Outcome) map[string]any {
	data := map[string]any{}
	if out.URL != "" {
		data["url"] = out.URL
	}
	switch {
	case out.Registration != nil:
		data["rfc"] = out.Registration.RFC
		data["company"] = out.Registration.CompanyInfo()
	case out.Opinion != nil:
		data["rfc"] = out.Opinion.RFC
		data["sentiment"] = string(out.Opinion.Sentiment)
		data["emission_date"] = out.Opinion.EmissionRaw
	case out.Bank != nil:
		data["bank"] = out.Bank
	}
	return data
}
