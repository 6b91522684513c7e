package stream

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vaultchat/vaultchat/internal/logging"
)

// Controller orchestrates streaming sessions: it owns the phase transitions,
// drives the Segmenter over a fragment source, and guarantees that every
// session ends in a terminal status event and a deferred registry cleanup.
// One Controller instance serves any number of concurrent sessions.
type Controller struct {
	cfg      Config
	registry *Registry
	emitter  *emitter
}

// NewController creates a Controller around registry. Zero fields in cfg
// fall back to the defaults.
func NewController(cfg Config, registry *Registry) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		registry: registry,
		emitter:  newEmitter(registry, cfg),
	}
}

// Registry exposes the session registry for status queries.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// StartSession registers a new session and announces the thinking phase.
// Fails with ErrDuplicateSession if the id is already in use; the existing
// session is unaffected.
func (c *Controller) StartSession(ctx context.Context, id string, sink Sink) (*Session, error) {
	s, err := c.registry.Create(id, sink)
	if err != nil {
		return nil, err
	}

	if err := c.emitStatus(ctx, s, PhaseThinking, StatusData{Message: "Assistant is thinking..."}); err != nil {
		return nil, c.fail(ctx, s, err)
	}

	logging.Info().Str("sessionID", id).Msg("stream started")
	return s, nil
}

// Cancel requests cancellation of a session. Safe to call at any time and
// from any goroutine; cancelling an absent or already-cancelled session is a
// no-op. Exactly one cancelled status event is emitted, and no further chunk
// events follow it.
func (c *Controller) Cancel(ctx context.Context, id string) {
	s, err := c.registry.Get(id)
	if err != nil {
		return
	}
	if !s.Cancel() {
		return
	}

	if s.setPhase(PhaseCancelled) {
		c.scheduleCleanup(id, c.cfg.AbortCleanupDelay)
		if err := c.emitStatusLocked(ctx, s, PhaseCancelled, StatusData{Message: "Stream cancelled by user"}); err != nil {
			logging.Error().Str("sessionID", id).Err(err).Msg("cancelled status not delivered")
		}
	}

	logging.Info().Str("sessionID", id).Msg("stream cancelled")
}

// CancelAll sweeps every registered session, e.g. on transport disconnect.
// Sessions disappearing between listing and cancellation are tolerated.
func (c *Controller) CancelAll(ctx context.Context) {
	for _, id := range c.registry.ListActive() {
		c.Cancel(ctx, id)
	}
}

// Status returns a snapshot of a session, or ErrNotFound after cleanup.
func (c *Controller) Status(id string) (Summary, error) {
	s, err := c.registry.Get(id)
	if err != nil {
		return Summary{}, err
	}
	return s.Summary(), nil
}

// ListActive returns the ids of all registered sessions.
func (c *Controller) ListActive() []string {
	return c.registry.ListActive()
}

// Run consumes source for the given session, emitting chunks until the
// source is exhausted, fails, or the session is cancelled. It finalizes the
// session phase and schedules cleanup before returning. The returned error
// reflects the terminal outcome; a cancelled run returns nil.
func (c *Controller) Run(ctx context.Context, id string, source FragmentSource, contentType ContentType) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	if err := c.emitStatus(ctx, s, PhaseAnalyzing, StatusData{Message: "Assistant is analyzing context..."}); err != nil {
		return c.fail(ctx, s, err)
	}

	// Fixed pause so the consumer sees the analyzing phase before content
	// starts flowing. Pacing only, not a correctness requirement.
	waitFor(ctx, c.cfg.AnalyzingPause)
	if s.Cancelled() {
		return nil
	}

	if err := c.emitStatus(ctx, s, PhaseWriting, StatusData{Message: "Assistant is writing..."}); err != nil {
		return c.fail(ctx, s, err)
	}

	seg := NewSegmenter(c.cfg)

	for {
		// Cancellation and context are checked once per fragment boundary.
		if s.Cancelled() {
			logging.Info().Str("sessionID", id).Msg("stream cancelled during generation")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, s, err)
		}

		frag, err := source.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.fail(ctx, s, fmt.Errorf("fragment source: %w", err))
		}

		// Recv may have blocked across a cancellation; nothing received
		// after the cancelled status may reach the sink.
		if s.Cancelled() {
			logging.Info().Str("sessionID", id).Msg("stream cancelled during generation")
			return nil
		}

		chunk := seg.Push(frag)
		if chunk == nil {
			continue
		}
		if err := c.deliver(ctx, s, chunk, contentType); err != nil {
			return c.fail(ctx, s, err)
		}

		// Throttle perceived display speed by the length of the chunk just
		// shown. Cancellation is picked up at the next boundary check.
		waitFor(ctx, c.typingDelay(len(chunk.Content)))
	}

	if s.Cancelled() {
		return nil
	}

	if final := seg.Finish(); final != nil {
		if err := c.deliver(ctx, s, final, contentType); err != nil {
			return c.fail(ctx, s, err)
		}
	}

	return c.complete(ctx, s)
}

// deliver emits one chunk and folds it into the session's accumulated text.
func (c *Controller) deliver(ctx context.Context, s *Session, chunk *Chunk, contentType ContentType) error {
	chunk.ContentType = contentType
	payload := ChunkPayload{SessionID: s.ID, Chunk: *chunk}
	if err := c.emitter.emit(ctx, s, EventChunk, payload); err != nil {
		return err
	}
	s.recordChunk(chunk.Content, chunk.Timestamp)
	return nil
}

// complete finalizes a successful run. If the session was cancelled in the
// meantime the cancelled outcome wins and no complete event is sent.
func (c *Controller) complete(ctx context.Context, s *Session) error {
	if !s.setPhase(PhaseComplete) {
		return nil
	}
	c.scheduleCleanup(s.ID, c.cfg.CompleteCleanupDelay)

	sum := s.Summary()
	data := StatusData{
		Message:    "Response complete",
		TotalChars: sum.TotalChars,
		DurationMS: sum.Duration.Milliseconds(),
	}
	if err := c.emitStatusLocked(ctx, s, PhaseComplete, data); err != nil {
		// The consumer never saw the completion; surface the session as
		// errored for late status queries.
		s.forcePhase(PhaseError)
		return err
	}

	logging.Info().
		Str("sessionID", s.ID).
		Int("totalChars", sum.TotalChars).
		Dur("duration", sum.Duration).
		Msg("stream complete")
	return nil
}

// fail moves the session to the error phase, emits a best-effort terminal
// error status, schedules cleanup, and returns cause for the caller.
func (c *Controller) fail(ctx context.Context, s *Session, cause error) error {
	if s.setPhase(PhaseError) {
		c.scheduleCleanup(s.ID, c.cfg.AbortCleanupDelay)
		data := StatusData{
			Message: "Streaming error: " + cause.Error(),
			Error:   cause.Error(),
		}
		if err := c.emitStatusLocked(ctx, s, PhaseError, data); err != nil {
			logging.Error().Str("sessionID", s.ID).Err(err).Msg("terminal error status not delivered")
		}
	}

	logging.Error().Str("sessionID", s.ID).Err(cause).Msg("stream failed")
	return cause
}

// emitStatus records a phase transition and emits the matching status event.
// Terminal phases are sticky, so a session that has already ended ignores
// further transitions.
func (c *Controller) emitStatus(ctx context.Context, s *Session, phase Phase, data StatusData) error {
	if !s.setPhase(phase) {
		return nil
	}
	return c.emitStatusLocked(ctx, s, phase, data)
}

// emitStatusLocked emits a status event for a phase the session already
// holds. Terminal statuses are sent on a detached context so an aborted
// request cannot leave observers waiting.
func (c *Controller) emitStatusLocked(ctx context.Context, s *Session, phase Phase, data StatusData) error {
	if phase.Terminal() {
		ctx = context.WithoutCancel(ctx)
	}
	data.Timestamp = time.Now()
	return c.emitter.emit(ctx, s, EventStatus, StatusPayload{
		SessionID: s.ID,
		Phase:     phase,
		Data:      data,
	})
}

func (c *Controller) typingDelay(chars int) time.Duration {
	d := time.Duration(chars) * c.cfg.TypingSpeed
	if d > c.cfg.MaxTypingDelay {
		d = c.cfg.MaxTypingDelay
	}
	return d
}

// scheduleCleanup removes the session from the registry after a grace delay,
// leaving a window for late status queries.
func (c *Controller) scheduleCleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		c.registry.Remove(id)
		logging.Debug().Str("sessionID", id).Msg("stream cleaned up")
	})
}

// waitFor sleeps for d or until ctx is done, whichever comes first.
func waitFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
