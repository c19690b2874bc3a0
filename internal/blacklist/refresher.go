package blacklist

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/model"
)

// Loader produces a complete snapshot of the published list.
type Loader interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// RefreshResult describes one refresh run.
type RefreshResult struct {
	Skipped bool                `json:"skipped"`
	Import  *model.ImportRecord `json:"import,omitempty"`
	// Previous is the import that was current before the run.
	Previous *model.ImportRecord `json:"previous,omitempty"`
}

// Refresher rebuilds the stored set from a Loader.
type Refresher struct {
	loader  Loader
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRefresher creates a Refresher. m may be nil.
func NewRefresher(loader Loader, store Store, m *metrics.Metrics) *Refresher {
	return &Refresher{loader: loader, store: store, metrics: m, now: time.Now}
}

// MonthlySchedule returns true if no import happened yet in now's calendar
// month (UTC).
func MonthlySchedule(now time.Time, lastImport *time.Time) bool {
	if lastImport == nil {
		return true
	}
	now = now.UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return lastImport.Before(thisMonth)
}

// Run refreshes the stored set unless it was already imported this month.
// force bypasses the monthly check.
func (r *Refresher) Run(ctx context.Context, force bool) (*RefreshResult, error) {
	log := zap.L().With(zap.Bool("force", force))

	last, err := r.store.LastImport(ctx)
	if err != nil {
		r.metrics.Refresh("failed", 0)
		return nil, eris.Wrap(err, "blacklist: read last import")
	}
	res := &RefreshResult{Previous: last}

	var lastAt *time.Time
	if last != nil {
		lastAt = &last.At
	}
	if !force && !MonthlySchedule(r.now(), lastAt) {
		log.Info("blacklist: already imported this month, skipping", zap.Time("last_import", last.At))
		r.metrics.Refresh("skipped", 0)
		res.Skipped = true
		return res, nil
	}

	snap, err := r.loader.Fetch(ctx)
	if err != nil {
		r.metrics.Refresh("failed", 0)
		return nil, eris.Wrap(err, "blacklist: load source")
	}
	rec, err := r.store.Replace(ctx, snap)
	if err != nil {
		r.metrics.Refresh("failed", 0)
		return nil, eris.Wrap(err, "blacklist: replace set")
	}

	log.Info("blacklist: imported",
		zap.String("url", rec.SourceURL),
		zap.Int("rows", rec.TotalCount),
		zap.Int64("version", rec.Version),
	)
	r.metrics.Refresh("imported", rec.TotalCount)
	res.Import = rec
	return res, nil
}
