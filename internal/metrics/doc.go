// Package metrics turns raw per-request samples into report figures.
//
// [Summarize] folds a level's latencies into an HDR histogram and reports
// min, mean, p50, p90, p95, p99 and max in milliseconds. [ErrorKey] and
// [FriendlyErrorName] name request failures for the error breakdown.
//
// Nothing here is touched from the worker hot loop; summaries are built once
// per level after all workers have joined.
package metrics
