package sat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/metrics"
	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/resilience"
)

// maxResponseBytes leaves room for two pages plus the envelope.
const maxResponseBytes = 2*maxPageBytes + 1<<20

// ClientOptions configures the intermediary client.
type ClientOptions struct {
	Endpoint string
	Timeout  time.Duration
	Retry    resilience.RetryConfig
	Breaker  resilience.BreakerConfig
	Metrics  *metrics.Metrics
}

// Client calls the verification intermediary, which performs the outbound
// fetch of SAT pages.
type Client struct {
	endpoint string
	http     *http.Client
	retry    resilience.RetryConfig
	breakers *resilience.Breakers
	metrics  *metrics.Metrics
}

var _ Verifier = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	opts.Retry.OnRetry = resilience.RetryLogger("sat", "intermediary")
	m := opts.Metrics
	onChange := opts.Breaker.OnStateChange
	opts.Breaker.OnStateChange = func(mode string, from, to resilience.BreakerState) {
		zap.L().Warn("sat: intermediary breaker changed state",
			zap.String("mode", mode), zap.Stringer("from", from), zap.Stringer("to", to))
		m.Breaker(mode, to != resilience.BreakerClosed)
		if onChange != nil {
			onChange(mode, from, to)
		}
	}
	return &Client{
		endpoint: opts.Endpoint,
		http:     &http.Client{Timeout: opts.Timeout},
		retry:    opts.Retry,
		breakers: resilience.NewBreakers(opts.Breaker),
		metrics:  m,
	}
}

// singleRequest is the body of a single-mode call.
type singleRequest struct {
	URL string `json:"url"`
}

// PairRequest is the body of a pair-mode call.
type PairRequest struct {
	URLOpinion      string `json:"urlOpinion"`
	URLRegistration string `json:"urlRegistration"`
}

// Response is the intermediary's envelope for both modes.
type Response struct {
	OK      bool              `json:"ok"`
	Reason  model.ErrorKind   `json:"reason,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`

	// single mode
	URL    string  `json:"url,omitempty"`
	Fields *Fields `json:"fields,omitempty"`

	// pair mode
	RFCMatch     *bool       `json:"rfcMatch,omitempty"`
	RFC          string      `json:"rfc,omitempty"`
	Opinion      *Extraction `json:"opinion,omitempty"`
	Registration *Extraction `json:"registration,omitempty"`
}

// Fetch verifies one validator URL through the intermediary.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Extraction, error) {
	if !IsOfficialURL(rawURL) {
		return nil, model.NewError(model.KindURLNotOfficial, "URL is not the official SAT validator").
			WithDetail("url", rawURL)
	}
	start := time.Now()
	resp, err := c.call(ctx, "single", singleRequest{URL: strings.TrimSpace(rawURL)})
	if err == nil && resp.Fields == nil {
		err = model.NewError(model.KindParseFailed, "intermediary returned no fields")
	}
	c.metrics.ObserveFetch("single", outcome(err), start)
	if err != nil {
		return nil, err
	}
	return &Extraction{URL: resp.URL, Fields: *resp.Fields}, nil
}

// FetchPair verifies an opinion and a registration together. A response
// without rfcMatch is an RFC_MISMATCH carrying both identifiers.
func (c *Client) FetchPair(ctx context.Context, opinionURL, registrationURL string) (*PairExtraction, error) {
	for _, u := range []string{opinionURL, registrationURL} {
		if !IsOfficialURL(u) {
			return nil, model.NewError(model.KindURLNotOfficial, "URL is not the official SAT validator").
				WithDetail("url", u)
		}
	}
	start := time.Now()
	resp, err := c.call(ctx, "pair", PairRequest{URLOpinion: opinionURL, URLRegistration: registrationURL})
	if err == nil && (resp.RFCMatch == nil || !*resp.RFCMatch) {
		mismatch := model.NewError(model.KindRFCMismatch, "RFC of the compliance opinion does not match the tax registration")
		for k, v := range resp.Details {
			mismatch.WithDetail(k, v)
		}
		if resp.Opinion != nil {
			mismatch.WithDetail("opinion_rfc", resp.Opinion.Fields.RFC)
		}
		if resp.Registration != nil {
			mismatch.WithDetail("registration_rfc", resp.Registration.Fields.RFC)
		}
		err = mismatch
	}
	c.metrics.ObserveFetch("pair", outcome(err), start)
	if err != nil {
		return nil, err
	}
	return &PairExtraction{
		RFCMatch:     true,
		RFC:          model.NormalizeRFC(resp.RFC),
		Opinion:      resp.Opinion,
		Registration: resp.Registration,
	}, nil
}

// call posts body with retries for network failures, behind the breaker of
// mode. Single and pair calls trip independently. Rejections from the
// intermediary are returned as typed errors.
func (c *Client) call(ctx context.Context, mode string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "sat: encode request")
	}

	resp, err := resilience.ExecuteVal(ctx, c.breakers.Get(mode), func(ctx context.Context) (*Response, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Response, error) {
			return c.post(ctx, payload)
		})
	})
	var open *resilience.OpenError
	if errors.As(err, &open) {
		return nil, model.WrapError(model.KindFetchFailed, err, "verification service temporarily unavailable").
			WithDetail("mode", mode).
			WithDetail("retry_after_seconds", strconv.Itoa(int(open.RetryAfter.Seconds())))
	}
	return resp, err
}

func (c *Client) post(ctx context.Context, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "sat: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, model.WrapError(model.KindFetchFailed, err, "verification service unreachable")
	}
	defer httpResp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, model.WrapError(model.KindFetchFailed, err, "could not read verification response")
	}

	var out Response
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil {
		if httpResp.StatusCode >= 500 || resilience.IsTransientHTTPStatus(httpResp.StatusCode) {
			return nil, model.Errorf(model.KindFetchFailed, "verification service returned HTTP %d", httpResp.StatusCode)
		}
		zap.L().Warn("sat: non-JSON response", zap.Int("status", httpResp.StatusCode), zap.Int("bytes", len(raw)))
		return nil, model.WrapError(model.KindParseFailed, jsonErr, "verification service returned a non-JSON response")
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 && out.OK {
		return &out, nil
	}
	return nil, responseError(httpResp.StatusCode, &out)
}

// responseError converts a failure envelope into a typed error. Without a
// reason, server-side and throttling statuses count as fetch failures and
// everything else as a parse failure.
func responseError(status int, r *Response) error {
	kind := r.Reason
	if kind == "" {
		if status >= 500 || resilience.IsTransientHTTPStatus(status) {
			kind = model.KindFetchFailed
		} else {
			kind = model.KindParseFailed
		}
	}
	msg := r.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := model.NewError(kind, msg)
	for k, v := range r.Details {
		e.WithDetail(k, v)
	}
	return e
}
