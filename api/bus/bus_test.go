package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationTopic(t *testing.T) {
	assert.Equal(t, "conv.c_1", ConversationTopic("c_1"))
}

func TestMemoryBusDeliversOnlyWhileSubscribed(t *testing.T) {
	ctx := context.Background()

	var got [][]byte
	b := NewMemory()
	b.Start(func(topic string, payload []byte) {
		got = append(got, payload)
	})

	// Not subscribed yet: publish is dropped.
	require.NoError(t, b.Publish(ctx, "conv.c_1", []byte("one")))
	assert.Empty(t, got)

	require.NoError(t, b.Subscribe(ctx, "conv.c_1"))
	require.NoError(t, b.Publish(ctx, "conv.c_1", []byte("two")))
	require.NoError(t, b.Publish(ctx, "conv.c_2", []byte("other topic")))
	require.Len(t, got, 1)
	assert.Equal(t, []byte("two"), got[0])

	require.NoError(t, b.Unsubscribe(ctx, "conv.c_1"))
	require.NoError(t, b.Publish(ctx, "conv.c_1", []byte("three")))
	assert.Len(t, got, 1)
}

func TestMemoryBusPreservesPublishOrder(t *testing.T) {
	ctx := context.Background()

	var got []string
	b := NewMemory()
	b.Start(func(topic string, payload []byte) {
		got = append(got, string(payload))
	})
	require.NoError(t, b.Subscribe(ctx, "conv.c_1"))

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, "conv.c_1", []byte(p)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMemoryBusClosedDropsPublishes(t *testing.T) {
	ctx := context.Background()

	calls := 0
	b := NewMemory()
	b.Start(func(string, []byte) { calls++ })
	require.NoError(t, b.Subscribe(ctx, "conv.c_1"))
	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(ctx, "conv.c_1", []byte("late")))
	assert.Zero(t, calls)
}

func TestMemoryBusDropsPublishesBeforeStart(t *testing.T) {
	ctx := context.Background()

	calls := 0
	b := NewMemory()
	require.NoError(t, b.Subscribe(ctx, "conv.c_1"))
	require.NoError(t, b.Publish(ctx, "conv.c_1", []byte("early")))
	assert.Zero(t, calls)

	b.Start(func(string, []byte) { calls++ })
	require.NoError(t, b.Publish(ctx, "conv.c_1", []byte("after")))
	assert.Equal(t, 1, calls)
}
