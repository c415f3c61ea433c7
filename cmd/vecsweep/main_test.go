package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeSearch answers like the vector database search API.
func fakeSearch(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v2/vectordb/entities/search" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer root:Milvus" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func okSearch(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"code":0,"data":[{"id":1,"distance":0.1}]}`))
}

type jsonReport struct {
	RunID       string `json:"run_id"`
	Interrupted bool   `json:"interrupted"`
	Levels      []struct {
		Concurrency   int     `json:"concurrency"`
		TotalExecuted int64   `json:"total_executed"`
		TotalFailed   int64   `json:"total_failed"`
		QPS           float64 `json:"qps"`
		P99LatencyMs  int64   `json:"p99_latency_ms"`
		Degenerate    bool    `json:"degenerate"`
		Latency       struct {
			Count int64 `json:"count"`
		} `json:"latency"`
		Errors map[string]int64 `json:"errors"`
	} `json:"levels"`
}

func sweepArgs(uri, levels string, extra ...string) []string {
	args := []string{
		"--uri", uri,
		"--conc-list", levels,
		"--conc-duration", "1",
		"--conc-intermission", "0",
		"--dim", "8",
		"--pool-size", "16",
		"--seed", "7",
		"--output", "json",
		"--log-level", "error",
	}
	return append(args, extra...)
}

func TestRunSweepAgainstFakeSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("runs two one-second levels")
	}
	srv, calls := fakeSearch(t, okSearch)

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), sweepArgs(srv.URL, "1,2"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}

	var report jsonReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout.String())
	}
	if report.RunID == "" || report.Interrupted {
		t.Errorf("run_id=%q interrupted=%v", report.RunID, report.Interrupted)
	}
	if len(report.Levels) != 2 || report.Levels[0].Concurrency != 1 || report.Levels[1].Concurrency != 2 {
		t.Fatalf("levels = %+v, want [1 2] in order", report.Levels)
	}

	var executed int64
	for _, level := range report.Levels {
		if level.TotalExecuted < 1 || level.Degenerate {
			t.Errorf("level %d executed %d requests", level.Concurrency, level.TotalExecuted)
		}
		if level.Latency.Count != level.TotalExecuted {
			t.Errorf("level %d: %d samples for %d executed", level.Concurrency, level.Latency.Count, level.TotalExecuted)
		}
		if level.QPS <= 0 {
			t.Errorf("level %d: qps = %v", level.Concurrency, level.QPS)
		}
		executed += level.TotalExecuted
	}
	if executed != calls.Load() {
		t.Errorf("reported %d requests, server saw %d", executed, calls.Load())
	}
}

func TestRunCountsSearchErrorCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a one-second level")
	}
	srv, _ := fakeSearch(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`{"code":1100,"message":"collection not loaded"}`))
	})

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), sweepArgs(srv.URL, "1"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var report jsonReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}
	level := report.Levels[0]
	if !level.Degenerate || level.TotalExecuted != 0 || level.QPS != 0 {
		t.Errorf("expected degenerate level, got %+v", level)
	}
	if level.Errors["Search code 1100"] != level.TotalFailed || level.TotalFailed == 0 {
		t.Errorf("errors = %v, failed = %d", level.Errors, level.TotalFailed)
	}
}

func TestRunTextReportFromLegacyConfig(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a one-second level")
	}
	srv, _ := fakeSearch(t, okSearch)
	path := filepath.Join(t.TempDir(), "config.txt")
	content := strings.Join([]string{
		"uri#" + srv.URL,
		"token#root:Milvus",
		"dim#4",
		"conc_duration#1",
		"conc_intermission#0",
		"conc_list#1",
		"pool_size#4",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{path, "--log-level", "error"}, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Thread count: 1", "Elapse time: 1 seconds", "requests executed", "P99 latency:", "conc       | qps"} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q\n%s", want, out)
		}
	}
}

func TestRunInterruptedBeforeStartReportsPartialResults(t *testing.T) {
	srv, calls := fakeSearch(t, okSearch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	if err := run(ctx, sweepArgs(srv.URL, "1,2", "--log-level", "warn"), &stdout, &stderr); err != nil {
		t.Fatalf("interrupt should not be an error, got %v", err)
	}
	var report jsonReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout.String())
	}
	if !report.Interrupted || len(report.Levels) != 0 {
		t.Errorf("interrupted=%v levels=%d", report.Interrupted, len(report.Levels))
	}
	if calls.Load() != 0 {
		t.Errorf("no request should be sent after an interrupt, got %d", calls.Load())
	}
	if !strings.Contains(stderr.String(), "sweep interrupted") {
		t.Errorf("expected interrupt warning on stderr, got %q", stderr.String())
	}
}

func TestRunLogsPayloadPool(t *testing.T) {
	srv, _ := fakeSearch(t, okSearch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	args := sweepArgs(srv.URL, "1", "--log-level", "info", "--log-format", "json")
	if err := run(ctx, args, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	logs := stderr.String()
	if !strings.Contains(logs, `"msg":"search payloads ready"`) || !strings.Contains(logs, `"payloads":16`) {
		t.Errorf("expected pool size in startup logs, got %s", logs)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad uri", []string{"--uri", "not a url"}},
		{"zero level", []string{"--conc-list", "1,0"}},
		{"unknown flag", []string{"--bogus"}},
		{"bad output", []string{"--output", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(context.Background(), tt.args, &stdout, &stderr); err == nil {
				t.Fatal("expected configuration error")
			}
			if stdout.Len() != 0 {
				t.Errorf("nothing should be printed on stdout, got %q", stdout.String())
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("--help should succeed, got %v", err)
	}
}
