package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/vecsweep/internal/auth"
	"github.com/torosent/vecsweep/internal/tracing"
)

func TestClientTimeoutApplied(t *testing.T) {
	timeout := 50 * time.Millisecond
	client := NewClient(timeout, 8)
	defer client.CloseIdleConnections()

	if client.Timeout != timeout {
		t.Fatalf("expected client timeout %s, got %s", timeout, client.Timeout)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(timeout * 3)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}

	elapsed := time.Since(start)
	if elapsed < timeout {
		t.Fatalf("request returned too quickly: %s < %s", elapsed, timeout)
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Fatalf("expected timeout error, got %v", err)
		}
	}
}

func TestNewClientSizesIdlePool(t *testing.T) {
	tests := []struct {
		name    string
		perHost int
		want    int
	}{
		{"small levels keep the floor", 4, 32},
		{"large level", 500, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(-time.Second, tt.perHost)
			if client.Timeout != 0 {
				t.Errorf("negative timeout should become 0, got %s", client.Timeout)
			}
			transport, ok := client.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", client.Transport)
			}
			if transport.MaxIdleConnsPerHost != tt.want {
				t.Errorf("MaxIdleConnsPerHost = %d, want %d", transport.MaxIdleConnsPerHost, tt.want)
			}
			if transport.MaxIdleConns < transport.MaxIdleConnsPerHost {
				t.Errorf("MaxIdleConns %d < per host %d", transport.MaxIdleConns, transport.MaxIdleConnsPerHost)
			}
		})
	}
}

func TestNewExecutorValidates(t *testing.T) {
	if _, err := NewExecutor(nil, Options{URL: "http://x"}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewExecutor(http.DefaultClient, Options{URL: "  "}); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestExecuteSendsSearchRequest(t *testing.T) {
	var (
		gotMethod string
		gotCT     string
		gotAuth   string
		gotBody   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"code":0,"data":[{"id":1,"distance":0.5}]}`))
	}))
	defer server.Close()

	exec, err := NewExecutor(server.Client(), Options{
		URL:               server.URL + "/v2/vectordb/entities/search",
		Auth:              auth.NewStaticTokenProvider("root:Milvus"),
		CheckResponseCode: true,
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	latency, err := exec.Execute(context.Background(), []byte(`{"collectionName":"c"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if latency <= 0 {
		t.Errorf("latency = %s, want > 0", latency)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotCT != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotAuth != "Bearer root:Milvus" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody != `{"collectionName":"c"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		checkCode bool
		check     func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			body:   "overloaded",
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				if !errors.As(err, &httpErr) {
					t.Fatalf("expected *HTTPError, got %T", err)
				}
				if httpErr.StatusCode != http.StatusServiceUnavailable || httpErr.Body != "overloaded" {
					t.Errorf("HTTPError = %+v", httpErr)
				}
			},
		},
		{
			name:      "non-zero code",
			status:    http.StatusOK,
			body:      `{"code":1100,"message":"collection not found"}`,
			checkCode: true,
			check: func(t *testing.T, err error) {
				var codeErr *ResponseCodeError
				if !errors.As(err, &codeErr) {
					t.Fatalf("expected *ResponseCodeError, got %T", err)
				}
				if codeErr.Code != 1100 || codeErr.Message != "collection not found" {
					t.Errorf("ResponseCodeError = %+v", codeErr)
				}
			},
		},
		{
			name:   "non-zero code ignored when disabled",
			status: http.StatusOK,
			body:   `{"code":1100}`,
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
			},
		},
		{
			name:      "non-JSON body is success",
			status:    http.StatusOK,
			body:      "ok",
			checkCode: true,
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			exec, err := NewExecutor(server.Client(), Options{URL: server.URL, CheckResponseCode: tt.checkCode})
			if err != nil {
				t.Fatalf("NewExecutor() error = %v", err)
			}
			_, err = exec.Execute(context.Background(), []byte(`{}`))
			tt.check(t, err)
		})
	}
}

func TestExecuteTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	exec, err := NewExecutor(NewClient(time.Second, 1), Options{URL: url})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if _, err := exec.Execute(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestExecuteHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	exec, err := NewExecutor(server.Client(), Options{URL: server.URL})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = exec.Execute(ctx, []byte(`{}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestHTTPErrorSnippetTruncated(t *testing.T) {
	long := strings.Repeat("x", 4096)
	if got := snippet([]byte(long)); len(got) != maxLoggedBodyBytes {
		t.Errorf("snippet length = %d, want %d", len(got), maxLoggedBodyBytes)
	}
	err := &HTTPError{StatusCode: 500}
	if err.Error() != "http status 500" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestExecuteTracesSearchAndPropagatesContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	exec, err := NewExecutor(server.Client(), Options{
		URL:     server.URL + "/v2/vectordb/entities/search",
		Tracing: tracing.NewProvider(tp, true),
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if _, err := exec.Execute(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected HTTP 429 failure")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "vectordb.search" || span.Status.Code != codes.Error {
		t.Errorf("span %q status = %v, want error", span.Name, span.Status.Code)
	}
	var status int64
	for _, attr := range span.Attributes {
		if attr.Key == "http.response.status_code" {
			status = attr.Value.AsInt64()
		}
	}
	if status != http.StatusTooManyRequests {
		t.Errorf("http.response.status_code = %d, want 429", status)
	}
	if !strings.Contains(traceparent, span.SpanContext.TraceID().String()) {
		t.Errorf("traceparent %q does not carry trace %s", traceparent, span.SpanContext.TraceID())
	}
}
