package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EchoProvider is a keyless fallback that streams back a canned reply
// quoting the last user message. Useful for local development and demos.
type EchoProvider struct{}

// NewEchoProvider creates an echo provider.
func NewEchoProvider() *EchoProvider { return &EchoProvider{} }

// ID returns the provider identifier.
func (p *EchoProvider) ID() string { return "echo" }

// Model returns the model ID completions are generated with.
func (p *EchoProvider) Model() string { return "echo" }

// ChatModel returns nil; the echo provider has no backing model.
func (p *EchoProvider) ChatModel() model.ToolCallingChatModel { return nil }

// CreateCompletion streams a canned reply word by word.
func (p *EchoProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	last := ""
	for _, m := range req.Messages {
		if m.Role == schema.User {
			last = m.Content
		}
	}

	reply := fmt.Sprintf("No model is configured, so here is an echo instead.\n\nYou said:\n\n> %s\n", last)

	sr, sw := schema.Pipe[*schema.Message](len(reply))
	go func() {
		defer sw.Close()
		for _, word := range splitWords(reply) {
			if sw.Send(&schema.Message{Role: schema.Assistant, Content: word}, nil) {
				return
			}
		}
	}()

	return NewCompletionStream(sr), nil
}

// splitWords cuts text into word-sized fragments, keeping separators, so the
// echo stream resembles token-by-token output.
func splitWords(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
