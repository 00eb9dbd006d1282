package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "site-events", map[string]int{"site_id": 1})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "site-events", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "payload", msgs[1].Payload)

	msgs[0].Topic = "modified"
	require.Equal(t, "site-events", pub.Messages()[0].Topic)
}

func TestPublisherHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "t", 1)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, New().Messages())
}
