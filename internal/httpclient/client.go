package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"ordergate/internal/reqctx"
	"ordergate/internal/resilience"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	maxResponseBytes = 1 << 20
)

// Options configures a Client.
type Options struct {
	Service    string
	BaseURL    string
	HTTPClient *http.Client
	Breaker    *resilience.CircuitBreaker
	Retry      resilience.RetryPolicy
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client performs guarded JSON calls against one dependency.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
	timeout time.Duration
	log     *slog.Logger
}

// Response is a dependency answer the caller recognized.
type Response struct {
	StatusCode int
	Body       []byte
}

// New constructs a Client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		service: opts.Service,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		breaker: opts.Breaker,
		retry:   opts.Retry,
		timeout: opts.Timeout,
		log:     log.With("dependency", opts.Service),
	}
}

// Breaker returns the breaker guarding the dependency.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// PostJSON sends payload to path under the breaker and retry policy.
//
// recognized decides which statuses are business answers: those close the
// call with OnSuccess and are returned. Transport errors and 5xx are retried;
// once the attempts are exhausted the breaker records one failure. Any other
// status ends the call with a *StatusError and leaves the breaker counters
// untouched.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, headers http.Header, recognized func(int) bool) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("%s: encode request: %w", c.service, err)
	}

	ticket, err := c.breaker.BeforeCall()
	if err != nil {
		c.log.WarnContext(ctx, "dependency call rejected", "error", err)
		return Response{}, fmt.Errorf("%s: %w", c.service, err)
	}
	defer c.breaker.OnFinish(ticket)

	var lastErr error
	attempts := c.retry.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.send(ctx, path, body, headers)
		switch {
		case err != nil:
			lastErr = err
		case recognized(resp.StatusCode):
			c.breaker.OnSuccess(ticket)
			return resp, nil
		default:
			statusErr := &StatusError{Service: c.service, StatusCode: resp.StatusCode}
			if !statusErr.Retryable() {
				return Response{}, statusErr
			}
			lastErr = statusErr
		}

		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%s: %w: %w", c.service, ErrTransport, ctx.Err())
		}
		if attempt == attempts {
			break
		}
		c.log.InfoContext(ctx, "retrying dependency call", "attempt", attempt, "error", lastErr)
		if err := c.retry.Wait(ctx, attempt); err != nil {
			return Response{}, fmt.Errorf("%s: %w: %w", c.service, ErrTransport, err)
		}
	}

	c.breaker.OnFailure(ticket)
	c.log.WarnContext(ctx, "dependency call failed", "attempts", attempts, "error", lastErr)
	return Response{}, lastErr
}

func (c *Client) send(ctx context.Context, path string, body []byte, headers http.Header) (Response, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%s: build request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := reqctx.RequestID(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w: %w", c.service, ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return Response{}, fmt.Errorf("%s: %w: read body: %w", c.service, ErrTransport, err)
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}
