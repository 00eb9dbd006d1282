package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitegen/internal/progress"
)

// PrometheusSink exports pipeline milestones as Prometheus metrics.
type PrometheusSink struct {
	events       *prometheus.CounterVec
	storedBytes  *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegen_progress_events_total",
			Help: "Pipeline events partitioned by stage.",
		}, []string{"stage"}),
		storedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegen_stored_bytes_total",
			Help: "Bytes written to object storage partitioned by stage.",
		}, []string{"stage"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitegen_step_duration_seconds",
			Help:    "Duration of the step that produced each event.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
	}
	for _, collector := range []prometheus.Collector{s.events, s.storedBytes, s.stepDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		stage := string(evt.Stage)
		s.events.WithLabelValues(stage).Inc()
		if evt.Bytes > 0 {
			s.storedBytes.WithLabelValues(stage).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.stepDuration.WithLabelValues(stage).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
