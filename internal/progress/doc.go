// Package progress carries pipeline milestones (generation started, HTML
// stored, screenshot stored or failed) from the request path and the
// screenshot workers to pluggable sinks. Emit never blocks; a background
// goroutine batches events and fans them out.
package progress
