package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitegen/internal/progress"
	"github.com/JakeFAU/sitegen/internal/publisher/memory"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SiteID: 1, TS: now, Stage: progress.StageHTMLStored, Key: "data/index_1.html"},
		{SiteID: 1, TS: now, Stage: progress.StageGenerationError, Note: "boom"},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "GENERATION_ERROR", entries[1].ContextMap()["stage"])
}

func TestPublisherSinkPublishesEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewPublisherSink(pub, "site-events")
	require.NoError(t, err)

	evt := progress.Event{SiteID: 3, TS: time.Now(), Stage: progress.StageGenerationStart}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "site-events", msgs[0].Topic)
	require.Equal(t, evt, msgs[0].Payload)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("broker down")
}

func TestPublisherSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	sink, err := NewPublisherSink(failingPublisher{}, "t")
	require.NoError(t, err)
	err = sink.Consume(context.Background(), []progress.Event{
		{SiteID: 1, Stage: progress.StageGenerationStart},
		{SiteID: 2, Stage: progress.StageGenerationStart},
	})
	require.ErrorContains(t, err, "site 1")
	require.ErrorContains(t, err, "site 2")

	_, err = NewPublisherSink(nil, "t")
	require.Error(t, err)
	_, err = NewPublisherSink(failingPublisher{}, "")
	require.Error(t, err)
}
