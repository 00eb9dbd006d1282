package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitegen/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{SiteID: 42, TS: now, Stage: progress.StageGenerationStart},
		{SiteID: 42, TS: now, Stage: progress.StageHTMLStored, Key: "data/index_42.html", Bytes: 1024, Dur: 3 * time.Second},
		{SiteID: 42, TS: now, Stage: progress.StageScreenshotError, Note: "render failed"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.events.WithLabelValues("HTML_STORED")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.events.WithLabelValues("SCREENSHOT_ERROR")), 1e-9)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.storedBytes.WithLabelValues("HTML_STORED")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.stepDuration, "sitegen_step_duration_seconds"))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
