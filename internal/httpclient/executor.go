package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/vecsweep/internal/auth"
	"github.com/torosent/vecsweep/internal/tracing"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Options configures an Executor.
type Options struct {
	URL  string
	Auth auth.Provider
	// CheckResponseCode treats a non-zero JSON "code" in a 2xx body as a failure.
	CheckResponseCode bool
	// Tracing is optional; a nil or disabled provider records no spans.
	Tracing *tracing.Provider
}

// Executor sends prebuilt search payloads to one endpoint. It is safe for
// concurrent use by many workers.
type Executor struct {
	client    *http.Client
	url       string
	auth      auth.Provider
	checkCode bool
	tracing   *tracing.Provider
}

func NewExecutor(client *http.Client, opts Options) (*Executor, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}
	target := strings.TrimSpace(opts.URL)
	if target == "" {
		return nil, errors.New("search URL is required")
	}
	return &Executor{
		client:    client,
		url:       target,
		auth:      opts.Auth,
		checkCode: opts.CheckResponseCode,
		tracing:   opts.Tracing,
	}, nil
}

// Execute posts payload and returns the time from send until the response body
// was fully read. The latency is only meaningful when err is nil.
func (e *Executor) Execute(ctx context.Context, payload []byte) (latency time.Duration, err error) {
	if e.tracing.Enabled() {
		var span trace.Span
		ctx, span = tracing.StartRequestSpan(ctx, e.tracing.Tracer(), http.MethodPost, e.url)
		defer func() {
			var attrs []attribute.KeyValue
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				attrs = append(attrs, attribute.Int("http.response.status_code", httpErr.StatusCode))
			}
			tracing.EndSpan(span, err, attrs...)
		}()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	if e.auth != nil {
		if err := e.auth.InjectHeader(ctx, req); err != nil {
			return 0, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	if e.tracing.ShouldPropagate() {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return time.Since(start), err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	latency = time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return latency, &HTTPError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	if readErr != nil {
		return latency, fmt.Errorf("read response body: %w", readErr)
	}
	if e.checkCode {
		if err := checkResponseCode(body); err != nil {
			return latency, err
		}
	}
	return latency, nil
}

func checkResponseCode(body []byte) error {
	if !gjson.ValidBytes(body) {
		return nil
	}
	code := gjson.GetBytes(body, "code")
	if !code.Exists() || code.Int() == 0 {
		return nil
	}
	return &ResponseCodeError{
		Code:    code.Int(),
		Message: gjson.GetBytes(body, "message").String(),
	}
}
