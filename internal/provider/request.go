// internal/provider/request.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codr1/courtbook/internal/metrics"
)

const (
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 512
	maxBodyBytes   = 4 << 20
)

// Request describes one provider call. Body, when set, is sent as JSON.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    any
	Timeout time.Duration
}

// Requester is the shared HTTP helper every adapter goes through. It
// enforces the per-call timeout, throttles each provider config separately
// and classifies failures as ErrTimeout or *HTTPStatusError.
type Requester struct {
	client  *http.Client
	timeout time.Duration
	limit   rate.Limit
	burst   int
	metrics *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type RequesterOptions struct {
	Client            *http.Client
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Metrics           *metrics.Metrics
}

func NewRequester(opts RequesterOptions) *Requester {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Requester{
		client:   client,
		timeout:  timeout,
		limit:    limit,
		burst:    burst,
		metrics:  opts.Metrics,
		limiters: map[string]*rate.Limiter{},
	}
}

func (r *Requester) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	return l
}

// DoJSON performs req and decodes a 2xx JSON response into out. limiterKey
// scopes throttling, typically one key per provider config.
func (r *Requester) DoJSON(ctx context.Context, providerType, limiterKey string, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := r.do(ctx, limiterKey, req, out)
	r.metrics.ObserveProviderRequest(providerType, resultLabel(err), time.Since(started))
	return err
}

func (r *Requester) do(ctx context.Context, limiterKey string, req Request, out any) error {
	if err := r.limiter(limiterKey).Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for rate limiter: %v", ErrTimeout, err)
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode provider request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return fmt.Errorf("create provider request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, req.URL)
		}
		return fmt.Errorf("execute provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: reading %s", ErrTimeout, req.URL)
		}
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func resultLabel(err error) string {
	var statusErr *HTTPStatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &statusErr):
		return "http_error"
	default:
		return "error"
	}
}
