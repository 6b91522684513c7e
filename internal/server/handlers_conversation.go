package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vaultchat/vaultchat/internal/storage"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// CreateConversationRequest represents the request body for creating a
// conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// AttachKnowledgeRequest represents the request body for attaching notes to
// a conversation.
type AttachKnowledgeRequest struct {
	Paths []string `json:"paths"`
}

// ExportRequest represents the request body for exporting a conversation.
type ExportRequest struct {
	Vault string `json:"vault"`
}

// listConversations handles GET /conversation
func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.services.Conversations.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Return an empty array instead of null
	if conversations == nil {
		conversations = []*types.Conversation{}
	}

	writeJSON(w, http.StatusOK, conversations)
}

// createConversation handles POST /conversation
func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if req.Mode != "" {
		if _, ok := s.services.Modes.Lookup(req.Mode); !ok {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Unknown mode: "+req.Mode)
			return
		}
	}

	conv, err := s.services.Conversations.Create(r.Context(), req.Title, req.Mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// getConversation handles GET /conversation/{conversationID}
func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := s.services.Conversations.Get(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// deleteConversation handles DELETE /conversation/{conversationID}
func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	// Abort any stream still answering this conversation.
	if sessionID, ok := s.activeSession(conversationID); ok {
		s.services.Controller.Cancel(r.Context(), sessionID)
	}

	if err := s.services.Conversations.Delete(r.Context(), conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// getMessages handles GET /conversation/{conversationID}/message
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := s.services.Conversations.Get(r.Context(), conversationID); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
		return
	}

	messages, err := s.services.Conversations.Messages(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if messages == nil {
		messages = []*types.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// attachKnowledge handles POST /conversation/{conversationID}/knowledge
func (s *Server) attachKnowledge(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req AttachKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "paths is required")
		return
	}

	conv, err := s.services.Conversations.AttachKnowledge(r.Context(), conversationID, req.Paths)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// exportConversation handles POST /conversation/{conversationID}/export
func (s *Server) exportConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Vault == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "vault is required")
		return
	}

	path, err := s.services.Export.ToInbox(r.Context(), conversationID, req.Vault)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
