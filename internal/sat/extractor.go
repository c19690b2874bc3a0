package sat

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/supplier-verify/internal/fetcher"
	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/model"
)

// maxPageBytes bounds how much of a validator page is read.
const maxPageBytes = 4 << 20

// Extraction is the result of verifying one validator URL.
type Extraction struct {
	URL    string `json:"url"`
	Fields Fields `json:"fields"`
}

// PairExtraction is the result of verifying an opinion and a registration
// together. It is only returned when both identifiers match.
type PairExtraction struct {
	RFCMatch     bool        `json:"rfcMatch"`
	RFC          string      `json:"rfc"`
	Opinion      *Extraction `json:"opinion"`
	Registration *Extraction `json:"registration"`
}

// Verifier fetches and parses validator pages, either in-process or through
// the intermediary service.
type Verifier interface {
	Fetch(ctx context.Context, rawURL string) (*Extraction, error)
	FetchPair(ctx context.Context, opinionURL, registrationURL string) (*PairExtraction, error)
}

// Extractor fetches validator pages directly from the SAT site.
type Extractor struct {
	fetcher fetcher.Fetcher
	metrics *metrics.Metrics
}

// NewExtractor creates an Extractor. m may be nil.
func NewExtractor(f fetcher.Fetcher, m *metrics.Metrics) *Extractor {
	return &Extractor{fetcher: f, metrics: m}
}

var _ Verifier = (*Extractor)(nil)

// Fetch downloads an official validator page and parses it according to the
// D1 discriminator of its URL. Values read from the query fill gaps left by
// the page.
func (e *Extractor) Fetch(ctx context.Context, rawURL string) (*Extraction, error) {
	start := time.Now()
	ext, err := e.fetch(ctx, rawURL)
	e.metrics.ObserveFetch("single", outcome(err), start)
	return ext, err
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) (*Extraction, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !IsOfficialURL(rawURL) {
		return nil, model.NewError(model.KindURLNotOfficial, "URL is not the official SAT validator").
			WithDetail("url", rawURL)
	}
	q := ParseQuery(rawURL)
	log := zap.L().With(zap.String("url", rawURL), zap.String("d1", q.D1))

	body, err := e.fetcher.Download(ctx, rawURL)
	if err != nil {
		log.Warn("sat: fetch failed", zap.Error(err))
		return nil, model.WrapError(model.KindFetchFailed, err, "could not fetch the SAT validator page")
	}
	defer body.Close() //nolint:errcheck

	page, err := io.ReadAll(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return nil, model.WrapError(model.KindFetchFailed, err, "could not read the SAT validator page")
	}
	text := BodyText(string(page))
	if text == "" {
		return nil, model.NewError(model.KindParseFailed, "SAT validator page has no text").
			WithDetail("url", rawURL)
	}

	f := ParseText(q.Type, text)
	mergeQuery(&f, q)
	f.Blob = text
	f.HTML = string(page)

	log.Info("sat: page parsed", zap.String("type", string(f.Type)), zap.String("rfc", f.RFC))
	return &Extraction{URL: rawURL, Fields: f}, nil
}

func mergeQuery(f *Fields, q Query) {
	if f.CadenaDate == "" {
		f.CadenaDate = q.CadenaDate
	}
	if f.RFC == "" {
		f.RFC = q.RFC
	}
	if f.Type != model.DocOpinion {
		return
	}
	if f.Folio == "" {
		f.Folio = q.Folio
	}
	if f.Date == "" {
		f.Date = q.Date
	}
	if f.Sentiment == "" {
		f.Sentiment = q.Sentiment
	}
}

// FetchPair fetches both pages concurrently and requires their identifiers
// to match. A mismatch is an RFC_MISMATCH error carrying both values.
func (e *Extractor) FetchPair(ctx context.Context, opinionURL, registrationURL string) (*PairExtraction, error) {
	start := time.Now()
	pair, err := e.fetchPair(ctx, opinionURL, registrationURL)
	e.metrics.ObserveFetch("pair", outcome(err), start)
	return pair, err
}

func (e *Extractor) fetchPair(ctx context.Context, opinionURL, registrationURL string) (*PairExtraction, error) {
	for _, u := range []string{opinionURL, registrationURL} {
		if !IsOfficialURL(u) {
			return nil, model.NewError(model.KindURLNotOfficial, "URL is not the official SAT validator").
				WithDetail("url", u)
		}
	}

	var op, reg *Extraction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		op, err = e.fetch(gctx, opinionURL)
		return err
	})
	g.Go(func() (err error) {
		reg, err = e.fetch(gctx, registrationURL)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opRFC := model.NormalizeRFC(op.Fields.RFC)
	regRFC := model.NormalizeRFC(reg.Fields.RFC)
	if opRFC == "" || regRFC == "" {
		return nil, model.NewError(model.KindParseFailed, "could not read the RFC of both documents").
			WithDetail("opinion_rfc", opRFC).
			WithDetail("registration_rfc", regRFC)
	}
	if opRFC != regRFC {
		return nil, model.Errorf(model.KindRFCMismatch,
			"RFC of the compliance opinion (%s) does not match the tax registration (%s)", opRFC, regRFC).
			WithDetail("opinion_rfc", opRFC).
			WithDetail("registration_rfc", regRFC)
	}
	return &PairExtraction{RFCMatch: true, RFC: opRFC, Opinion: op, Registration: reg}, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := model.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
