package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/bank"
	"github.com/sells-group/supplier-verify/internal/blacklist"
	"github.com/sells-group/supplier-verify/internal/config"
	"github.com/sells-group/supplier-verify/internal/db"
	"github.com/sells-group/supplier-verify/internal/events"
	"github.com/sells-group/supplier-verify/internal/fetcher"
	"github.com/sells-group/supplier-verify/internal/flow"
	"github.com/sells-group/supplier-verify/internal/mapper"
	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/ocr"
	"github.com/sells-group/supplier-verify/internal/qr"
	"github.com/sells-group/supplier-verify/internal/resilience"
	"github.com/sells-group/supplier-verify/internal/sat"
	"github.com/sells-group/supplier-verify/internal/storage"
	"github.com/sells-group/supplier-verify/internal/validate"
)

// newMetrics creates a private registry with the runtime collectors and
// the pipeline instruments.
func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), reg
}

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:      c.SAT.UserAgent,
		AcceptLanguage: c.SAT.AcceptLanguage,
		Timeout:        time.Duration(c.SAT.TimeoutSecs) * time.Second,
		MaxRetries:     c.SAT.RetryAttempts,
	})
}

// newVerifier fetches validator pages directly, or through the
// intermediary when sat.endpoint is set.
func newVerifier(c *config.Config, f fetcher.Fetcher, m *metrics.Metrics) sat.Verifier {
	if c.SAT.Endpoint == "" {
		return sat.NewExtractor(f, m)
	}
	breaker := resilience.DefaultBreakerConfig()
	if c.SAT.BreakerFails > 0 {
		breaker.Threshold = c.SAT.BreakerFails
	}
	return sat.NewClient(sat.ClientOptions{
		Endpoint: c.SAT.Endpoint,
		Timeout:  time.Duration(c.SAT.TimeoutSecs) * time.Second,
		Retry:    resilience.NewRetryConfig(max(c.SAT.RetryAttempts, 1), 500*time.Millisecond),
		Breaker:  breaker,
		Metrics:  m,
	})
}

func newLocator(c *config.Config, m *metrics.Metrics) *qr.Locator {
	attempts := make([]qr.Attempt, 0, len(c.QR.Attempts))
	for _, a := range c.QR.Attempts {
		attempts = append(attempts, qr.Attempt{Scale: a.Scale, Invert: a.Invert})
	}
	return qr.NewLocator(
		qr.NewPdfToPPM(c.QR.PdfToPPMPath),
		qr.ZXingDecoder{},
		qr.PdfcpuCounter{},
		qr.WithAttempts(attempts),
		qr.WithMetrics(m),
	)
}

func sourceConfig(c *config.Config) blacklist.SourceConfig {
	src := blacklist.DefaultSourceConfig()
	if c.Blacklist.ListingURL != "" {
		src.ListingURL = c.Blacklist.ListingURL
	}
	if len(c.Blacklist.LinkLabels) > 0 {
		src.LinkLabels = c.Blacklist.LinkLabels
	}
	src.Column = c.Blacklist.Column
	src.SkipRows = c.Blacklist.SkipRows
	return src
}

// openBlacklist opens the configured store and applies its schema. The
// returned function releases it.
func openBlacklist(ctx context.Context, c *config.Config) (blacklist.Store, func(), error) {
	switch c.Blacklist.Driver {
	case "memory":
		return blacklist.NewMemory(), func() {}, nil

	case "sqlite":
		st, err := blacklist.NewSQLite(c.Blacklist.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, eris.Wrap(err, "blacklist: migrate sqlite")
		}
		return st, func() { _ = st.Close() }, nil

	case "postgres":
		pool, err := db.Connect(ctx, c.Blacklist.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		st := blacklist.NewPostgres(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, eris.Wrap(err, "blacklist: migrate postgres")
		}
		return st, pool.Close, nil

	case "redis":
		rdb, err := blacklist.ConnectRedis(ctx, c.Blacklist.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return blacklist.NewRedis(rdb, c.Blacklist.RedisPrefix), func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, eris.Errorf("blacklist: unknown driver %q", c.Blacklist.Driver)
	}
}

func newRefresher(c *config.Config, store blacklist.Store, m *metrics.Metrics) *blacklist.Refresher {
	return blacklist.NewRefresher(blacklist.NewSource(newFetcher(c), sourceConfig(c)), store, m)
}

// app holds the components of the verification service.
type app struct {
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	Verifier   sat.Verifier
	Blacklist  blacklist.Store
	Bus        *events.Bus
	Controller *flow.Controller

	closers []func()
}

// Close stops processing and releases the stores.
func (a *app) Close() {
	if a.Controller != nil {
		a.Controller.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds the submission pipeline from configuration. Callers should
// defer app.Close().
func newApp(ctx context.Context, c *config.Config) (*app, error) {
	m, reg := newMetrics()
	a := &app{Metrics: m, Registry: reg}

	store, closeStore, err := openBlacklist(ctx, c)
	if err != nil {
		return nil, err
	}
	a.Blacklist = store
	a.closers = append(a.closers, closeStore)

	text, err := ocr.NewExtractor(c.OCR)
	if err != nil {
		a.Close()
		return nil, err
	}
	uploads, err := storage.NewLocal(c.Storage.Dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Verifier = newVerifier(c, newFetcher(c), m)
	a.Bus = events.NewBus()
	publishers := events.Multi{a.Bus}
	if c.Events.WebhookURL != "" {
		publishers = append(publishers, events.NewWebhook(c.Events.WebhookURL))
	}

	processor := flow.NewPipeline(newLocator(c, m), a.Verifier, mapper.New(nil), bank.NewRecognizer(text))
	validator := validate.New(store, validate.Config{
		RecencyDays:      c.Validation.RecencyDays,
		RegistrationDays: c.Validation.RegistrationDays,
		NameThreshold:    c.Validation.NameThreshold,
		TimeZone:         c.Validation.TimeZone,
	}, m)
	a.Controller = flow.NewController(processor, flow.NewPairCheck(a.Verifier, validator), flow.Options{
		MaxBytes: c.Intake.MaxBytes,
		Storage:  uploads,
		Events:   publishers,
		Metrics:  m,
	})

	zap.L().Info("verification service ready",
		zap.String("blacklist_driver", c.Blacklist.Driver),
		zap.Bool("intermediary", c.SAT.Endpoint != ""),
		zap.String("ocr_provider", c.OCR.Provider))
	return a, nil
}

// logEvents writes every bus event to the log until ctx ends.
func logEvents(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			zap.L().Info("submission event",
				zap.String("event", string(ev.Name)),
				zap.String("submission_id", ev.SubmissionID),
				zap.String("document", string(ev.Document)),
				zap.String("reason", string(ev.Reason)),
				zap.String("message", ev.Message))
		}
	}
}
