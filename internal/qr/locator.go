package qr

import (
	"context"
	"errors"
	"image"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/sat"
)

// Target selects which pages to scan.
type Target int

const (
	PageFirst Target = iota + 1
	PageLast
	PageBoth
)

// Candidate is a decoded official URL and where it was found.
type Candidate struct {
	Page    int     `json:"page"`
	URL     string  `json:"url"`
	Attempt Attempt `json:"attempt"`
}

// Result holds the distinct official URLs found, first page first.
type Result struct {
	Candidates []Candidate `json:"candidates"`
}

// Primary is the first URL found, or "".
func (r *Result) Primary() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].URL
}

// Aux is a second, different URL, or "".
func (r *Result) Aux() string {
	if r == nil || len(r.Candidates) < 2 {
		return ""
	}
	return r.Candidates[1].URL
}

// Locator searches PDF pages for an official QR payload.
type Locator struct {
	raster   Rasterizer
	decoder  Decoder
	pages    PageCounter
	attempts []Attempt
	accept   func(string) bool
	metrics  *metrics.Metrics
}

// Option configures a Locator.
type Option func(*Locator)

// WithAttempts overrides the configuration search order.
func WithAttempts(attempts []Attempt) Option {
	return func(l *Locator) {
		if len(attempts) > 0 {
			l.attempts = attempts
		}
	}
}

// WithAccept overrides the predicate a payload must satisfy.
func WithAccept(accept func(string) bool) Option {
	return func(l *Locator) { l.accept = accept }
}

// WithMetrics records decode attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Locator) { l.metrics = m }
}

// NewLocator creates a Locator.
func NewLocator(raster Rasterizer, decoder Decoder, pages PageCounter, opts ...Option) *Locator {
	l := &Locator{
		raster:   raster,
		decoder:  decoder,
		pages:    pages,
		attempts: DefaultAttempts(),
		accept:   sat.IsOfficialURL,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// pageScan is the outcome of scanning one page.
type pageScan struct {
	found    *Candidate
	rejected string // last decoded payload that failed accept
}

// Locate scans the target pages and returns the distinct official URLs.
// It fails with QR_NOT_FOUND when nothing decodes and with URL_NOT_OFFICIAL
// when codes decode but none is an official URL.
func (l *Locator) Locate(ctx context.Context, pdfPath string, target Target) (*Result, error) {
	n, err := l.pages.PageCount(pdfPath)
	if err != nil {
		return nil, model.WrapError(model.KindQRNotFound, err, "could not read PDF pages")
	}
	if n < 1 {
		return nil, model.NewError(model.KindQRNotFound, "PDF has no pages")
	}

	var pages []int
	switch target {
	case PageFirst:
		pages = []int{1}
	case PageLast:
		pages = []int{n}
	default:
		pages = []int{1}
		if n > 1 {
			pages = append(pages, n)
		}
	}

	scans := make([]pageScan, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range pages {
		g.Go(func() error {
			s, err := l.scanPage(gctx, pdfPath, page)
			scans[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	seen := make(map[string]bool)
	var rejected string
	for _, s := range scans {
		if s.found == nil {
			if s.rejected != "" {
				rejected = s.rejected
			}
			continue
		}
		if seen[s.found.URL] {
			zap.L().Debug("qr: duplicate url", zap.Int("page", s.found.Page))
			continue
		}
		seen[s.found.URL] = true
		res.Candidates = append(res.Candidates, *s.found)
	}

	if len(res.Candidates) == 0 {
		if rejected != "" {
			return nil, model.NewError(model.KindURLNotOfficial, "QR code does not point to the official SAT validator").
				WithDetail("payload", rejected)
		}
		return nil, model.NewError(model.KindQRNotFound, "no SAT QR code found on the first or last page")
	}
	return res, nil
}

// scanPage tries each attempt in order on one page and stops at the first
// accepted payload. Renders are reused across attempts with equal scale.
// Only context cancellation is returned as an error.
func (l *Locator) scanPage(ctx context.Context, pdfPath string, page int) (pageScan, error) {
	log := zap.L().With(zap.String("pdf", pdfPath), zap.Int("page", page))
	renders := make(map[float64]image.Image)
	var out pageScan

	for _, a := range l.attempts {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "qr: scan cancelled")
		}

		img, ok := renders[a.Scale]
		if !ok {
			var err error
			img, err = l.raster.Render(ctx, pdfPath, page, a.Scale)
			if err != nil {
				if ctx.Err() != nil {
					return out, eris.Wrap(ctx.Err(), "qr: scan cancelled")
				}
				log.Debug("qr: render failed", zap.Float64("scale", a.Scale), zap.Error(err))
				continue
			}
			renders[a.Scale] = img
		}

		text, err := l.decoder.Decode(img, a.Invert)
		l.metrics.QRAttempt(err == nil && text != "")
		if err != nil {
			if !errors.Is(err, ErrNoCode) {
				log.Debug("qr: decode failed", zap.Stringer("attempt", a), zap.Error(err))
			}
			continue
		}
		if text == "" {
			continue
		}
		if !l.accept(text) {
			log.Info("qr: decoded payload is not an official url, continuing", zap.Stringer("attempt", a))
			out.rejected = text
			continue
		}

		log.Info("qr: found", zap.Stringer("attempt", a))
		out.found = &Candidate{Page: page, URL: text, Attempt: a}
		return out, nil
	}

	log.Info("qr: no code on page")
	return out, nil
}
