package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Conversation routes
	r.Route("/conversation", func(r chi.Router) {
		r.Get("/", s.listConversations)
		r.Post("/", s.createConversation)

		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", s.getConversation)
			r.Delete("/", s.deleteConversation)

			r.Get("/message", s.getMessages)
			r.Post("/message", s.sendMessage) // streamed via SSE/WS events
			r.Post("/abort", s.abortConversation)
			r.Post("/knowledge", s.attachKnowledge)
			r.Post("/export", s.exportConversation)
		})
	})

	// Stream control
	r.Route("/stream", func(r chi.Router) {
		r.Get("/", s.listStreams)
		r.Get("/{sessionID}/status", s.getStreamStatus)
		r.Post("/{sessionID}/abort", s.abortStream)
	})

	// Knowledge base
	r.Route("/knowledge", func(r chi.Router) {
		r.Get("/search", s.searchKnowledge)
		r.Get("/note", s.readNote)
		r.Post("/reindex", s.reindexKnowledge)
	})

	// Permissions
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/", s.getPermissions)
		r.Put("/", s.updatePermissions)
	})

	// Token estimation
	r.Route("/token", func(r chi.Router) {
		r.Post("/estimate", s.estimateTokens)
		r.Get("/conversation/{conversationID}", s.estimateConversation)
	})

	// Modes
	r.Get("/mode", s.listModes)

	// Configuration
	r.Get("/config", s.getConfig)

	// Event streaming (SSE)
	r.Get("/event", s.events)

	// WebSocket transport
	r.Get("/ws", s.handleWebSocket)
}
