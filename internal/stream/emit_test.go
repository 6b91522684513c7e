package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySink fails the first failures sends, then succeeds.
type flakySink struct {
	failures int
	calls    int
}

func (f *flakySink) Send(ctx context.Context, event string, payload any) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transport down")
	}
	return nil
}

func emitterConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestEmitRetriesThenSucceeds(t *testing.T) {
	r := NewRegistry()
	sink := &flakySink{failures: 2}
	s, err := r.Create("s1", sink)
	require.NoError(t, err)

	e := newEmitter(r, emitterConfig())
	err = e.emit(context.Background(), s, EventChunk, ChunkPayload{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 3, sink.calls, "two failures plus the successful retry")
}

func TestEmitExhaustsRetries(t *testing.T) {
	r := NewRegistry()
	sink := &flakySink{failures: 100}
	s, err := r.Create("s1", sink)
	require.NoError(t, err)

	e := newEmitter(r, emitterConfig())
	err = e.emit(context.Background(), s, EventChunk, ChunkPayload{SessionID: "s1"})
	require.ErrorIs(t, err, ErrDeliveryExhausted)
	assert.Equal(t, 3, sink.calls, "attempts are bounded by the configured total")
}

func TestEmitRemovedSessionIsNoop(t *testing.T) {
	r := NewRegistry()
	sink := &flakySink{failures: 100}
	s, err := r.Create("s1", sink)
	require.NoError(t, err)

	r.Remove("s1")

	e := newEmitter(r, emitterConfig())
	err = e.emit(context.Background(), s, EventStatus, StatusPayload{SessionID: "s1"})
	require.NoError(t, err, "emission for a cleaned-up session is silently dropped")
	assert.Zero(t, sink.calls)
}

func TestEmitContextCancelledPassesThrough(t *testing.T) {
	r := NewRegistry()
	sink := &flakySink{failures: 100}
	s, err := r.Create("s1", sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEmitter(r, emitterConfig())
	err = e.emit(ctx, s, EventChunk, ChunkPayload{SessionID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDeliveryExhausted)
}
