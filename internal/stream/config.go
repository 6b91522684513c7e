package stream

import "time"

// Config holds the tunable knobs of the delivery engine. The thresholds are
// presentation defaults, not semantic requirements; callers may override any
// of them.
type Config struct {
	// MinChunkSize is the buffer length at which a flush becomes eligible.
	MinChunkSize int

	// MaxDelay bounds the time between flushes regardless of content shape.
	MaxDelay time.Duration

	// RetryAttempts is the maximum number of delivery attempts per event.
	RetryAttempts int

	// RetryDelay is the initial backoff interval, doubled on each attempt.
	RetryDelay time.Duration

	// TypingSpeed is the per-character pacing delay applied after emitting a
	// chunk, based on that chunk's length.
	TypingSpeed time.Duration

	// MaxTypingDelay caps the per-chunk pacing delay.
	MaxTypingDelay time.Duration

	// AnalyzingPause is the fixed pause that surfaces the analyzing phase to
	// the consumer before fragments start flowing.
	AnalyzingPause time.Duration

	// CompleteCleanupDelay is how long a completed session stays registered
	// for late status queries.
	CompleteCleanupDelay time.Duration

	// AbortCleanupDelay is the registration grace period after an error or a
	// cancellation.
	AbortCleanupDelay time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		MinChunkSize:         20,
		MaxDelay:             100 * time.Millisecond,
		RetryAttempts:        3,
		RetryDelay:           time.Second,
		TypingSpeed:          50 * time.Millisecond,
		MaxTypingDelay:       100 * time.Millisecond,
		AnalyzingPause:       500 * time.Millisecond,
		CompleteCleanupDelay: 5 * time.Second,
		AbortCleanupDelay:    time.Second,
	}
}

// withDefaults fills zero fields so a partially populated Config behaves.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxTypingDelay <= 0 {
		c.MaxTypingDelay = d.MaxTypingDelay
	}
	if c.CompleteCleanupDelay <= 0 {
		c.CompleteCleanupDelay = d.CompleteCleanupDelay
	}
	if c.AbortCleanupDelay <= 0 {
		c.AbortCleanupDelay = d.AbortCleanupDelay
	}
	return c
}
