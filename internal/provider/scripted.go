package provider

import (
	"io"
	"time"
)

// ScriptedSource replays a fixed list of fragments. It is used by the echo
// provider and by tests that need deterministic streams.
type ScriptedSource struct {
	fragments []string
	index     int
	delay     time.Duration
	err       error
}

// NewScriptedSource creates a source that yields the given fragments in
// order and then io.EOF.
func NewScriptedSource(fragments ...string) *ScriptedSource {
	return &ScriptedSource{fragments: fragments}
}

// WithDelay sleeps d before returning each fragment.
func (s *ScriptedSource) WithDelay(d time.Duration) *ScriptedSource {
	s.delay = d
	return s
}

// WithError makes the source return err after the last fragment instead of
// io.EOF.
func (s *ScriptedSource) WithError(err error) *ScriptedSource {
	s.err = err
	return s
}

// Recv returns the next fragment.
func (s *ScriptedSource) Recv() (string, error) {
	if s.index >= len(s.fragments) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	frag := s.fragments[s.index]
	s.index++
	return frag, nil
}
