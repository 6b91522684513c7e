// Package export writes conversations into a vault inbox as markdown notes
// with YAML frontmatter.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vaultchat/vaultchat/internal/conversation"
	"github.com/vaultchat/vaultchat/internal/logging"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// inboxDir is the folder inside a vault that receives exported notes.
const inboxDir = "00-INBOX"

// Service exports conversations to vault inboxes.
type Service struct {
	vaults        map[string]string
	conversations *conversation.Service
}

// NewService creates an export service over the configured vaults.
func NewService(vaults map[string]string, conversations *conversation.Service) *Service {
	return &Service{vaults: vaults, conversations: conversations}
}

// ToInbox renders a conversation and writes it into the named vault's inbox.
// Returns the path of the created file.
func (s *Service) ToInbox(ctx context.Context, conversationID, vault string) (string, error) {
	root, ok := s.vaults[vault]
	if !ok {
		return "", fmt.Errorf("vault not configured: %s", vault)
	}
	if _, err := os.Stat(root); err != nil {
		return "", fmt.Errorf("vault %s: %w", vault, err)
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return "", err
	}
	msgs, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return "", err
	}

	title := conv.AutoTitle
	if title == "" {
		title = conv.Title
	}
	if title == "" {
		title = "Conversation_" + conv.ID
	}

	filename := fmt.Sprintf("[CHAT] %s_%s.md", time.Now().Format("2006-01-02"), safeTitle(title))
	dir := filepath.Join(root, inboxDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create inbox: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(render(conv, msgs, title)), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}

	logging.Info().Str("conversationID", conversationID).Str("path", path).Msg("conversation exported")
	return path, nil
}

// render builds the markdown note: YAML frontmatter, then one section per
// message.
func render(conv *types.Conversation, msgs []*types.Message, title string) string {
	totalTokens := 0
	for _, m := range msgs {
		totalTokens += m.TokensUsed
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("type: conversation\n")
	fmt.Fprintf(&b, "title: %q\n", title)
	fmt.Fprintf(&b, "date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "mode: %s\n", conv.Mode)
	fmt.Fprintf(&b, "messages: %d\n", len(msgs))
	fmt.Fprintf(&b, "tokens: %d\n", totalTokens)
	if len(conv.Knowledge) > 0 {
		b.WriteString("knowledge:\n")
		for _, k := range conv.Knowledge {
			fmt.Fprintf(&b, "  - %q\n", k)
		}
	}
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", title)

	for _, m := range msgs {
		speaker := "Assistant"
		if m.Role == "user" {
			speaker = "User"
		}
		ts := time.UnixMilli(m.Created).Format("15:04")
		fmt.Fprintf(&b, "## %s (%s)\n\n%s\n\n", speaker, ts, m.Content)
	}

	return b.String()
}

// safeTitle strips filesystem-hostile characters and bounds the length.
func safeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 50 {
		out = out[:50]
	}
	return strings.TrimSpace(out)
}
