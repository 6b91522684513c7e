package stream

import (
	"context"
	"errors"
	"time"
)

// Event names used on the wire. Both kinds go through the same retry path.
const (
	EventStatus = "stream_status"
	EventChunk  = "stream_chunk"
)

// Phase is the lifecycle state of a streaming session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseThinking  Phase = "thinking"
	PhaseAnalyzing Phase = "analyzing"
	PhaseWriting   Phase = "writing"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether the phase is one of the end states.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError || p == PhaseCancelled
}

// ContentType tells the consumer how to render a chunk. It describes the
// intended rendering, not how the content was produced.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentCode     ContentType = "code"
	ContentMarkdown ContentType = "markdown"
	ContentJSON     ContentType = "json"
)

// Chunk is a buffered, boundary-aware unit of text emitted for display.
// Concatenating Content across all chunks of a session in emission order
// reproduces the upstream output exactly.
type Chunk struct {
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	// Position is the cumulative character count at the time of the flush.
	// Strictly non-decreasing across the chunks of one session.
	Position   int        `json:"position"`
	TotalChars int        `json:"totalChars,omitempty"`
	IsFinal    bool       `json:"isFinal,omitempty"`
	Structure  *Structure `json:"structure,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Structure holds structural metadata detected in a single chunk's content.
type Structure struct {
	CodeFence *CodeFence        `json:"codeFence,omitempty"`
	Markdown  []MarkdownElement `json:"markdown,omitempty"`
}

// CodeFence describes fenced-code markers found in a chunk.
type CodeFence struct {
	Language string `json:"language,omitempty"`
	Start    int    `json:"start"`
	Opening  bool   `json:"opening"`
	Closing  bool   `json:"closing"`
}

// MarkdownElement is a single markdown construct found in a chunk.
type MarkdownElement struct {
	Type     string `json:"type"` // "header", "bold", "list_item"
	Level    int    `json:"level,omitempty"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// StatusPayload is the payload of a stream_status event.
type StatusPayload struct {
	SessionID string     `json:"sessionId"`
	Phase     Phase      `json:"phase"`
	Data      StatusData `json:"data"`
}

// StatusData carries the human-readable detail of a status event.
type StatusData struct {
	Message    string    `json:"message"`
	TotalChars int       `json:"totalChars,omitempty"`
	DurationMS int64     `json:"durationMs,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChunkPayload is the payload of a stream_chunk event.
type ChunkPayload struct {
	SessionID string `json:"sessionId"`
	Chunk
}

// Summary is a point-in-time snapshot of a session, served to late status
// queries while the session is still registered.
type Summary struct {
	SessionID  string        `json:"sessionId"`
	Phase      Phase         `json:"phase"`
	TotalChars int           `json:"totalChars"`
	Duration   time.Duration `json:"duration"`
	Cancelled  bool          `json:"cancelled"`
}

// Sink delivers (event, payload) pairs for exactly one session. A Sink is
// exclusively owned by its session and is never shared.
type Sink interface {
	Send(ctx context.Context, event string, payload any) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event string, payload any) error

func (f SinkFunc) Send(ctx context.Context, event string, payload any) error {
	return f(ctx, event, payload)
}

// FragmentSource is a finite, non-restartable sequence of text fragments.
// Recv returns io.EOF after the last fragment.
type FragmentSource interface {
	Recv() (string, error)
}

var (
	// ErrDuplicateSession is returned when creating a session whose id is
	// already registered.
	ErrDuplicateSession = errors.New("stream: duplicate session id")

	// ErrNotFound is returned by lookups against an unknown session id. It is
	// a normal outcome for status queries arriving after cleanup.
	ErrNotFound = errors.New("stream: session not found")

	// ErrDeliveryExhausted is returned when every delivery attempt for an
	// event failed.
	ErrDeliveryExhausted = errors.New("stream: delivery retries exhausted")
)
