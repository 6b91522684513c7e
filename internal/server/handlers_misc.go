package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vaultchat/vaultchat/pkg/types"
)

// EstimateRequest represents the request body for token estimation.
type EstimateRequest struct {
	Text string `json:"text"`
}

// searchKnowledge handles GET /knowledge/search?q=...&limit=...
func (s *Server) searchKnowledge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "q is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results, err := s.services.Knowledge.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if results == nil {
		results = []types.KnowledgeResult{}
	}

	writeJSON(w, http.StatusOK, results)
}

// readNote handles GET /knowledge/note?path=...
func (s *Server) readNote(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}

	content, err := s.services.Knowledge.Read(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": path, "content": content})
}

// reindexKnowledge handles POST /knowledge/reindex
func (s *Server) reindexKnowledge(w http.ResponseWriter, r *http.Request) {
	count, err := s.services.Knowledge.Reindex(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"files": count})
}

// getPermissions handles GET /permissions
func (s *Server) getPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.services.Permissions.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, perms)
}

// updatePermissions handles PUT /permissions
func (s *Server) updatePermissions(w http.ResponseWriter, r *http.Request) {
	var perms types.Permissions
	if err := json.NewDecoder(r.Body).Decode(&perms); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := s.services.Permissions.Update(r.Context(), perms); err != nil {
		writeError(w, http.StatusForbidden, ErrCodePermissionDenied, err.Error())
		return
	}

	updated, err := s.services.Permissions.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// estimateTokens handles POST /token/estimate
func (s *Server) estimateTokens(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	writeJSON(w, http.StatusOK, s.services.Tokens.EstimateText(req.Text))
}

// estimateConversation handles GET /token/conversation/{conversationID}
func (s *Server) estimateConversation(w http.ResponseWriter, r *http.Request) {
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

	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Content)
	}

	writeJSON(w, http.StatusOK, s.services.Tokens.EstimateConversation(contents))
}

// listModes handles GET /mode
func (s *Server) listModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.services.Modes.List())
}

// getConfig handles GET /config
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.services.AppConfig

	vaults := make([]string, 0, len(cfg.Vaults))
	for name := range cfg.Vaults {
		vaults = append(vaults, name)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model":  cfg.Model,
		"port":   cfg.Port,
		"vaults": vaults,
	})
}
