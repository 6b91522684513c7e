package stream

import (
	"regexp"
	"strings"
	"time"
)

// naturalBreaks are the buffer shapes at which a flush yields a readable
// unit: sentence-final punctuation, a paragraph break, a closing code fence,
// or a trailing colon/semicolon.
var naturalBreaks = []*regexp.Regexp{
	regexp.MustCompile(`\.\s*$`),
	regexp.MustCompile(`[!?]\s*$`),
	regexp.MustCompile(`\n\n`),
	regexp.MustCompile("```\\s*$"),
	regexp.MustCompile(`:\s*$`),
	regexp.MustCompile(`;\s*$`),
}

// isNaturalBreak reports whether content ends at a natural breaking point.
func isNaturalBreak(content string) bool {
	if content == "" {
		return false
	}
	for _, re := range naturalBreaks {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// Segmenter re-segments a fragment sequence into display chunks. It favors
// responsiveness (time bound) and readability (natural breaks) over strict
// minimality (size bound). Not safe for concurrent use; each running stream
// owns its own Segmenter.
type Segmenter struct {
	cfg      Config
	buf      strings.Builder
	position int
	lastEmit time.Time

	now func() time.Time
}

// NewSegmenter creates a Segmenter with cfg's size and time thresholds.
func NewSegmenter(cfg Config) *Segmenter {
	s := &Segmenter{cfg: cfg.withDefaults(), now: time.Now}
	s.lastEmit = s.now()
	return s
}

// Push appends one fragment to the rolling buffer and returns a Chunk if the
// flush condition holds, nil otherwise. The flush check runs once per
// fragment, so a single fragment larger than the size threshold comes out as
// one oversized chunk rather than being split.
func (s *Segmenter) Push(fragment string) *Chunk {
	s.buf.WriteString(fragment)
	s.position += len(fragment)

	content := s.buf.String()
	shouldFlush := len(content) >= s.cfg.MinChunkSize ||
		s.now().Sub(s.lastEmit) >= s.cfg.MaxDelay ||
		isNaturalBreak(content)

	if !shouldFlush || strings.TrimSpace(content) == "" {
		return nil
	}
	return s.flush(content, false)
}

// Finish flushes whatever non-blank content remains as the final chunk.
// Returns nil if the buffer is empty or blank; an empty fragment sequence
// produces no final chunk.
func (s *Segmenter) Finish() *Chunk {
	content := s.buf.String()
	if strings.TrimSpace(content) == "" {
		return nil
	}
	c := s.flush(content, true)
	c.TotalChars = s.position
	return c
}

// Position returns the cumulative character count consumed so far.
func (s *Segmenter) Position() int {
	return s.position
}

func (s *Segmenter) flush(content string, final bool) *Chunk {
	now := s.now()
	s.buf.Reset()
	s.lastEmit = now
	return &Chunk{
		Content:   content,
		Position:  s.position,
		IsFinal:   final,
		Structure: DetectStructure(content),
		Timestamp: now,
	}
}
