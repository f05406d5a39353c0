package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_LastSend(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.LastSend(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now()
	require.NoError(t, m.MarkSend(ctx, 1, at, time.Hour))

	got, ok, err := m.LastSend(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, at, got, time.Second)

	// Other recipients are unaffected.
	_, ok, err = m.LastSend(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.MarkSend(ctx, 1, time.Now().Add(-time.Minute), 10*time.Millisecond))

	_, ok, err := m.LastSend(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_MarkSendOverwrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := time.Now().Add(-time.Hour)
	second := time.Now()
	require.NoError(t, m.MarkSend(ctx, 1, first, 2*time.Hour))
	require.NoError(t, m.MarkSend(ctx, 1, second, 2*time.Hour))

	got, ok, err := m.LastSend(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, second, got, time.Second)
}
