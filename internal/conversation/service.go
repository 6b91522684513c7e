// Package conversation manages conversation and message records.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/storage"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// maxAutoTitle bounds the length of a title derived from the first message.
const maxAutoTitle = 60

// Service provides CRUD over conversations and their messages.
type Service struct {
	store *storage.Store
	bus   *event.Bus
}

// NewService creates a conversation service. bus may be nil in tests; events
// are then skipped.
func NewService(store *storage.Store, bus *event.Bus) *Service {
	return &Service{store: store, bus: bus}
}

// Create starts a new conversation in the given mode.
func (s *Service) Create(ctx context.Context, title, mode string) (*types.Conversation, error) {
	now := time.Now().UnixMilli()
	if mode == "" {
		mode = "general"
	}

	conv := &types.Conversation{
		ID:    ulid.Make().String(),
		Title: title,
		Mode:  mode,
		Time:  types.ConversationTime{Created: now, Updated: now},
	}

	if err := s.store.Put(ctx, []string{"conversation", conv.ID}, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	s.publish(event.Event{Type: event.ConversationCreated, Data: event.ConversationData{Conversation: conv}})
	return conv, nil
}

// Get retrieves a conversation by id.
func (s *Service) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var conv types.Conversation
	if err := s.store.Get(ctx, []string{"conversation", id}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns all conversations, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*types.Conversation, error) {
	var convs []*types.Conversation
	err := s.store.Scan(ctx, []string{"conversation"}, func(key string, data json.RawMessage) error {
		var conv types.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			return err
		}
		convs = append(convs, &conv)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Adding a message bumps Updated, so active threads float to the top.
	// ULIDs break ties in creation order.
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].Time.Updated != convs[j].Time.Updated {
			return convs[i].Time.Updated > convs[j].Time.Updated
		}
		return convs[i].ID > convs[j].ID
	})
	return convs, nil
}

// Delete removes a conversation and its messages.
func (s *Service) Delete(ctx context.Context, id string) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, []string{"conversation", id}); err != nil {
		return err
	}

	msgs, _ := s.Messages(ctx, id)
	for _, msg := range msgs {
		_ = s.store.Delete(ctx, []string{"message", id, msg.ID})
	}

	s.publish(event.Event{Type: event.ConversationDeleted, Data: event.ConversationData{Conversation: conv}})
	return nil
}

// AddMessage appends a message to a conversation. The first user message
// also seeds the conversation's auto title.
func (s *Service) AddMessage(ctx context.Context, conversationID, role, content string, tokens int) (*types.Message, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokensUsed:     tokens,
		Created:        time.Now().UnixMilli(),
	}

	if err := s.store.Put(ctx, []string{"message", conversationID, msg.ID}, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	conv.Time.Updated = msg.Created
	if conv.AutoTitle == "" && role == "user" {
		conv.AutoTitle = autoTitle(content)
	}
	if err := s.store.Put(ctx, []string{"conversation", conversationID}, conv); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}

	s.publish(event.Event{Type: event.MessageCreated, Data: event.MessageData{ConversationID: conversationID, Message: msg}})
	return msg, nil
}

// Messages returns a conversation's messages in chronological order.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	var msgs []*types.Message
	err := s.store.Scan(ctx, []string{"message", conversationID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		msgs = append(msgs, &msg)
		return nil
	})
	return msgs, err
}

// AttachKnowledge links vault files to a conversation.
func (s *Service) AttachKnowledge(ctx context.Context, conversationID string, paths []string) (*types.Conversation, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(conv.Knowledge))
	for _, p := range conv.Knowledge {
		seen[p] = true
	}
	for _, p := range paths {
		if !seen[p] {
			conv.Knowledge = append(conv.Knowledge, p)
			seen[p] = true
		}
	}

	conv.Time.Updated = time.Now().UnixMilli()
	if err := s.store.Put(ctx, []string{"conversation", conversationID}, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// autoTitle derives a short title from the first user message.
func autoTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if len(title) > maxAutoTitle {
		title = strings.TrimSpace(title[:maxAutoTitle]) + "..."
	}
	return title
}
