// Package transport builds the pooled, retrying HTTP client shared by every
// procurement API call.
package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/benchwork/procurement-bridge/internal/metrics"
)

const maxWait = 30 * time.Second

var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options tunes the client returned by NewClient.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	Backoff           time.Duration
	MaxWorkers        int
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// NewClient returns an http.Client whose connection pool is sized for
// concurrent page workers and whose transport retries transient failures.
func NewClient(opts Options) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	pool := 4 * opts.MaxWorkers
	base.MaxIdleConns = max(64, pool)
	base.MaxIdleConnsPerHost = max(32, pool)
	base.MaxConnsPerHost = 0

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: NewRetryTransport(base, opts),
	}
}

// RetryTransport retries idempotent requests on 429/5xx gateway statuses and
// connection errors with exponential backoff.
type RetryTransport struct {
	next       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wraps next. A nil next uses http.DefaultTransport.
func NewRetryTransport(next http.RoundTripper, opts Options) *RetryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &RetryTransport{
		next:       next,
		maxRetries: retries,
		backoff:    opts.Backoff,
		limiter:    limiter,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	retryable := idempotent(req.Method) && replayable(req)
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		out := req
		if attempt > 0 {
			rewound, err := rewind(req)
			if err != nil {
				return nil, err
			}
			out = rewound
		}

		resp, err := t.next.RoundTrip(out)
		if !retryable || attempt >= t.maxRetries {
			return resp, err
		}

		var reason string
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			reason = "conn"
			wait = t.delay(attempt, nil)
		case retryStatus[resp.StatusCode]:
			reason = strconv.Itoa(resp.StatusCode)
			wait = t.delay(attempt, resp)
			drain(resp)
		default:
			return resp, nil
		}

		metrics.IncTransportRetry(reason)
		t.logger.Debug("retrying request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.String("reason", reason),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
		)
		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) delay(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			return d
		}
	}
	d := t.backoff << attempt
	if d > maxWait || d < 0 {
		d = maxWait
	}
	return d
}

func retryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return min(time.Duration(max(secs, 0))*time.Second, maxWait), true
	}
	if at, err := http.ParseTime(v); err == nil {
		return min(max(time.Until(at), 0), maxWait), true
	}
	return 0, false
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete, http.MethodTrace:
		return true
	}
	return false
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
