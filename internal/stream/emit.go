package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/vaultchat/vaultchat/internal/logging"
)

// emitter delivers events to a session's sink with bounded retry. Transient
// send failures are retried with exponential backoff; only exhaustion is
// surfaced to the Controller.
type emitter struct {
	registry *Registry
	cfg      Config
}

func newEmitter(registry *Registry, cfg Config) *emitter {
	return &emitter{registry: registry, cfg: cfg.withDefaults()}
}

// emit sends one (event, payload) pair for session s. If the session has
// already been removed from the registry the call is a silent no-op: the
// session may have been cancelled and cleaned up while this emission was in
// flight.
func (e *emitter) emit(ctx context.Context, s *Session, event string, payload any) error {
	if _, err := e.registry.Get(s.ID); err != nil {
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := s.sink.Send(ctx, event, payload); err != nil {
			logging.Warn().
				Str("sessionID", s.ID).
				Str("event", event).
				Int("attempt", attempt).
				Err(err).
				Msg("emit attempt failed")
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	// RetryAttempts counts total tries, so allow attempts-1 retries on top of
	// the first call.
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.RetryAttempts-1)), ctx)

	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logging.Error().
			Str("sessionID", s.ID).
			Str("event", event).
			Int("attempts", e.cfg.RetryAttempts).
			Err(err).
			Msg("emit failed after retries")
		return fmt.Errorf("%w: %s: %v", ErrDeliveryExhausted, event, err)
	}
	return nil
}
