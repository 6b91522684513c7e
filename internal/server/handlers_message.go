package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/logging"
	"github.com/vaultchat/vaultchat/internal/permission"
	"github.com/vaultchat/vaultchat/internal/provider"
	"github.com/vaultchat/vaultchat/internal/storage"
	"github.com/vaultchat/vaultchat/internal/stream"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

// SendMessageResponse identifies the stream session answering a message.
type SendMessageResponse struct {
	SessionID string         `json:"sessionID"`
	Message   *types.Message `json:"message"`
}

// sendMessage handles POST /conversation/{conversationID}/message. The user
// message is persisted synchronously; the assistant response streams out as
// stream_status/stream_chunk events on /event and /ws.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content is required")
		return
	}

	sessionID, userMsg, err := s.startStream(r.Context(), conversationID, req.Content, req.Mode, s.busSink())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
		case errors.Is(err, errConversationBusy):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, SendMessageResponse{
		SessionID: sessionID,
		Message:   userMsg,
	})
}

// errConversationBusy is returned when a conversation already has a stream
// in flight.
var errConversationBusy = errors.New("conversation is already streaming a response")

// startStream persists the user message, registers a stream session, and
// kicks off the completion in the background. Shared by the HTTP and
// WebSocket transports.
func (s *Server) startStream(ctx context.Context, conversationID, content, modeName string, sink stream.Sink) (string, *types.Message, error) {
	conv, err := s.services.Conversations.Get(ctx, conversationID)
	if err != nil {
		return "", nil, err
	}

	if _, busy := s.activeSession(conversationID); busy {
		return "", nil, errConversationBusy
	}

	est := s.services.Tokens.EstimateText(content)
	userMsg, err := s.services.Conversations.AddMessage(ctx, conversationID, "user", content, est.Tokens)
	if err != nil {
		return "", nil, err
	}

	if modeName == "" {
		modeName = conv.Mode
	}
	chatMode := s.services.Modes.Get(modeName)

	history, err := s.services.Conversations.Messages(ctx, conversationID)
	if err != nil {
		return "", nil, err
	}

	sessionID := ulid.Make().String()

	// The run outlives the request; keep its values but detach cancellation.
	runCtx := context.WithoutCancel(ctx)

	if _, err := s.services.Controller.StartSession(runCtx, sessionID, sink); err != nil {
		return "", nil, err
	}
	s.setActive(conversationID, sessionID)

	go s.runCompletion(runCtx, sessionID, conv, chatMode, history)

	return sessionID, userMsg, nil
}

// runCompletion drives one assistant response end to end: provider stream in,
// segmented chunks out, assistant message persisted on success.
func (s *Server) runCompletion(ctx context.Context, sessionID string, conv *types.Conversation, chatMode types.Mode, history []*types.Message) {
	defer s.clearActive(conv.ID, sessionID)

	source, err := s.openCompletion(ctx, conv, chatMode, history)
	if err != nil {
		// Route the provider failure through the normal error path so
		// observers get a terminal error status.
		_ = s.services.Controller.Run(ctx, sessionID, failingSource{err: err}, stream.ContentText)
		return
	}
	defer source.Close()

	if err := s.services.Controller.Run(ctx, sessionID, source, stream.ContentText); err != nil {
		return
	}

	sess, err := s.services.Controller.Registry().Get(sessionID)
	if err != nil {
		return
	}
	text := sess.AccumulatedText()
	if text == "" {
		return
	}

	est := s.services.Tokens.EstimateText(text)
	if _, err := s.services.Conversations.AddMessage(ctx, conv.ID, "assistant", text, est.Tokens); err != nil {
		logging.Error().Str("conversationID", conv.ID).Err(err).Msg("assistant message not persisted")
	}
}

// openCompletion builds the provider request for a conversation and starts
// the completion stream.
func (s *Server) openCompletion(ctx context.Context, conv *types.Conversation, chatMode types.Mode, history []*types.Message) (*provider.CompletionStream, error) {
	perms, err := s.services.Permissions.Get(ctx)
	if err != nil {
		return nil, err
	}
	allowed := permission.AllowedTools(effectivePermissions(perms, chatMode.Permissions))

	return s.services.Provider.CreateCompletion(ctx, &provider.CompletionRequest{
		Messages:     provider.ToEinoMessages(history),
		SystemPrompt: s.systemPrompt(ctx, conv, chatMode),
		AllowedTools: allowed,
		Temperature:  chatMode.Temperature,
	})
}

// systemPrompt combines the mode prompt with any notes attached to the
// conversation.
func (s *Server) systemPrompt(ctx context.Context, conv *types.Conversation, chatMode types.Mode) string {
	prompt := chatMode.SystemPrompt
	if len(conv.Knowledge) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n## Reference notes\n")
	for _, path := range conv.Knowledge {
		content, err := s.services.Knowledge.Read(ctx, path)
		if err != nil {
			logging.Warn().Str("path", path).Err(err).Msg("attached note not readable")
			continue
		}
		b.WriteString("\n### ")
		b.WriteString(path)
		b.WriteString("\n\n")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// effectivePermissions intersects global permissions with mode permissions:
// a capability must be granted by both to be active.
func effectivePermissions(global, mode types.Permissions) types.Permissions {
	return types.Permissions{
		WebSearch:   global.WebSearch && mode.WebSearch,
		VaultSearch: global.VaultSearch && mode.VaultSearch,
		ReadFiles:   global.ReadFiles && mode.ReadFiles,
		WriteFiles:  false,
	}
}

// busSink adapts the event bus as a stream sink. Chunk ordering is preserved
// by publishing synchronously.
func (s *Server) busSink() stream.Sink {
	return stream.SinkFunc(func(ctx context.Context, name string, payload any) error {
		switch p := payload.(type) {
		case stream.StatusPayload:
			s.services.Bus.PublishSync(event.Event{
				Type: event.StreamStatus,
				Data: event.StreamStatusData{Status: p},
			})
		case stream.ChunkPayload:
			s.services.Bus.PublishSync(event.Event{
				Type: event.StreamChunk,
				Data: event.StreamChunkData{Chunk: p},
			})
		}
		return nil
	})
}

// failingSource reports its error on the first Recv. Used to surface
// provider startup failures through the stream error path.
type failingSource struct {
	err error
}

func (f failingSource) Recv() (string, error) {
	return "", f.err
}

// abortConversation handles POST /conversation/{conversationID}/abort
func (s *Server) abortConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	sessionID, ok := s.activeSession(conversationID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No active stream for conversation")
		return
	}

	s.services.Controller.Cancel(r.Context(), sessionID)
	writeSuccess(w)
}

// abortStream handles POST /stream/{sessionID}/abort
func (s *Server) abortStream(w http.ResponseWriter, r *http.Request) {
	s.services.Controller.Cancel(r.Context(), chi.URLParam(r, "sessionID"))
	writeSuccess(w)
}

// listStreams handles GET /stream
func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	ids := s.services.Controller.ListActive()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// getStreamStatus handles GET /stream/{sessionID}/status
func (s *Server) getStreamStatus(w http.ResponseWriter, r *http.Request) {
	sum, err := s.services.Controller.Status(chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Stream not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
