// Package provider abstracts LLM access behind the Eino framework and adapts
// completion streams into plain text fragment sources.
package provider

import (
	"context"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/vaultchat/vaultchat/internal/stream"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages     []*schema.Message `json:"messages"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	AllowedTools []string          `json:"allowedTools,omitempty"`
	MaxTokens    int               `json:"maxTokens,omitempty"`
	Temperature  float64           `json:"temperature,omitempty"`
}

// Provider generates streaming completions.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Model returns the model ID completions are generated with.
	Model() string

	// ChatModel returns the underlying Eino ChatModel.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion starts a streaming completion. The returned stream
	// yields text fragments and io.EOF at the end; Close releases the
	// underlying reader.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionStream wraps an Eino stream reader as a fragment source.
// Message chunks that carry no text content (tool calls, metadata) are
// skipped, so Recv only ever returns non-empty fragments or io.EOF.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

var _ stream.FragmentSource = (*CompletionStream)(nil)

// NewCompletionStream creates a new completion stream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv returns the next text fragment from the stream.
func (s *CompletionStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
		if msg.Content != "" {
			return msg.Content, nil
		}
	}
}

// Close closes the underlying stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToEinoMessages converts stored conversation messages to Eino format.
func ToEinoMessages(messages []*types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		role := schema.Assistant
		switch msg.Role {
		case "user":
			role = schema.User
		case "system":
			role = schema.System
		}
		result = append(result, &schema.Message{Role: role, Content: msg.Content})
	}
	return result
}
