// Package sinks contains progress.Sink implementations for logs, metrics and
// message brokers.
package sinks
