// Package output renders sweep results for people and for machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/vecsweep/internal/runner"
)

const rule = "================================================="

// Report is everything printed at the end of a sweep.
type Report struct {
	RunID       string               `json:"run_id" yaml:"run_id"`
	Target      string               `json:"target" yaml:"target"`
	Collection  string               `json:"collection" yaml:"collection"`
	StartedAt   time.Time            `json:"started_at" yaml:"started_at"`
	Interrupted bool                 `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Levels      []runner.LevelResult `json:"levels" yaml:"levels"`
}

// PrintReport writes one block per level, in test order, followed by the
// summary table.
func PrintReport(w io.Writer, report Report) {
	fmt.Fprintf(w, "\n--- Sweep %s ---\n", report.RunID)
	fmt.Fprintf(w, "Target:            %s\n", report.Target)
	fmt.Fprintf(w, "Collection:        %s\n", report.Collection)
	if report.Interrupted {
		fmt.Fprintln(w, "Status:            interrupted, partial results")
	}

	for _, level := range report.Levels {
		fmt.Fprintln(w)
		fmt.Fprintln(w, rule)
		printLevel(w, level)
	}

	fmt.Fprintln(w)
	PrintSummaryTable(w, report.Levels)
}

func printLevel(w io.Writer, level runner.LevelResult) {
	fmt.Fprintf(w, "Thread count: %d\n", level.Concurrency)
	fmt.Fprintf(w, "Elapse time: %s seconds\n", seconds(level.RequestedDuration))
	fmt.Fprintf(w, "Wall clock: %.3f seconds\n", level.WallClock.Seconds())
	fmt.Fprintf(w, "%d requests executed\n", level.TotalExecuted)
	if level.TotalFailed > 0 {
		fmt.Fprintf(w, "%d requests failed\n", level.TotalFailed)
	}
	if level.Degenerate {
		fmt.Fprintln(w, "No request completed; latency and QPS are not available")
	} else {
		fmt.Fprintf(w, "Average latency: %.1f milliseconds\n", level.AvgLatencyMs)
		fmt.Fprintf(w, "P99 latency: %d milliseconds\n", level.P99LatencyMs)
		fmt.Fprintf(w, "QPS: %.1f\n", level.QPS)

		s := level.Latency
		fmt.Fprintln(w, "Sample latency (ms):")
		fmt.Fprintf(w, "  Min:  %.2f\n", s.MinMs)
		fmt.Fprintf(w, "  Mean: %.2f\n", s.MeanMs)
		fmt.Fprintf(w, "  P50:  %.2f\n", s.P50Ms)
		fmt.Fprintf(w, "  P90:  %.2f\n", s.P90Ms)
		fmt.Fprintf(w, "  P95:  %.2f\n", s.P95Ms)
		fmt.Fprintf(w, "  P99:  %.2f\n", s.P99Ms)
		fmt.Fprintf(w, "  Max:  %.2f\n", s.MaxMs)
	}

	if len(level.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		keys := make([]string, 0, len(level.Errors))
		for key := range level.Errors {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if level.Errors[keys[i]] != level.Errors[keys[j]] {
				return level.Errors[keys[i]] > level.Errors[keys[j]]
			}
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %d\n", key, level.Errors[key])
		}
	}
	if level.LostWorkers > 0 {
		fmt.Fprintf(w, "Lost workers: %d\n", level.LostWorkers)
	}
	if level.Interrupted {
		fmt.Fprintln(w, "Interrupted before the requested duration")
	}
}

// PrintSummaryTable writes one row per level: concurrency, QPS, average and
// P99 latency.
func PrintSummaryTable(w io.Writer, levels []runner.LevelResult) {
	fmt.Fprintf(w, "%-10s | %-10s | %-20s | %-20s\n", "conc", "qps", "latency_avg (ms)", "latency_p99 (ms)")
	fmt.Fprintln(w, strings.Repeat("─", 75))
	for _, level := range levels {
		fmt.Fprintf(w, "%-10d | %-10.2f | %-20.2f | %-20d\n",
			level.Concurrency, level.QPS, level.AvgLatencyMs, level.P99LatencyMs)
	}
	fmt.Fprintln(w, strings.Repeat("─", 75))
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func seconds(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d", int64(d/time.Second))
	}
	return fmt.Sprintf("%.3f", d.Seconds())
}
