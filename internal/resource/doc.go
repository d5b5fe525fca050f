// Package resource provides the process-wide resource controller of a database.
//
// A [Controller] governs three budgets:
//
//   - Memory: caches account every retained entry and drop entries instead of
//     blocking when the limit is reached.
//   - Scan workers: a pool shared by all partition fan-out scans, so concurrent
//     queries cannot multiply the number of busy goroutines.
//   - IO bandwidth: backup uploads and downloads wait on a token bucket.
//
// A nil *Controller is valid and imposes no limits.
package resource
