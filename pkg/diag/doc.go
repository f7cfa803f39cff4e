// Package diag aggregates engine activity for diagnostics consumers.
//
// Every batch flush records an activity Sample. The tracker keeps a
// bounded rolling history, computes windowed rates (ops/s, batches/s),
// bucketizes the history into a fixed-width timeline, and attributes
// load to operation and node types, including the four "worst batch"
// picks (largest, slowest, most-skipped, most-growth). Consumers poll
// snapshots; the tracker never pushes.
package diag
