package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "batches", map[string]any{"session_id": int64(7)})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	events := p.Events()
	require.Len(t, events, 1)
	require.Equal(t, "batches", events[0].Topic)
}

func TestPublisherCopiesEvents(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "batches", "a")
	require.NoError(t, err)

	events := p.Events()
	events[0].Topic = "mutated"
	require.Equal(t, "batches", p.Events()[0].Topic)
}
