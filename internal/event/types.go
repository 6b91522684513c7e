package event

import (
	"github.com/vaultchat/vaultchat/internal/stream"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// Type identifies the kind of an event.
type Type string

const (
	StreamStatus        Type = "stream.status"
	StreamChunk         Type = "stream.chunk"
	ConversationCreated Type = "conversation.created"
	ConversationDeleted Type = "conversation.deleted"
	MessageCreated      Type = "message.created"
	MessageUpdated      Type = "message.updated"
	KnowledgeIndexed    Type = "knowledge.indexed"
	PermissionUpdated   Type = "permission.updated"
)

// Event is a single published event. Data is one of the typed payloads
// below, matching Type.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// StreamStatusData wraps a stream status payload.
type StreamStatusData struct {
	Status stream.StatusPayload `json:"status"`
}

// StreamChunkData wraps an emitted chunk.
type StreamChunkData struct {
	Chunk stream.ChunkPayload `json:"chunk"`
}

// ConversationData carries a conversation snapshot.
type ConversationData struct {
	Conversation *types.Conversation `json:"conversation"`
}

// MessageData carries a message snapshot.
type MessageData struct {
	ConversationID string         `json:"conversationId"`
	Message        *types.Message `json:"message"`
}

// KnowledgeIndexedData reports a vault reindex.
type KnowledgeIndexedData struct {
	Files int `json:"files"`
}

// PermissionUpdatedData reports a permission change.
type PermissionUpdatedData struct {
	Permissions types.Permissions `json:"permissions"`
}
