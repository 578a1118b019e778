package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	if h.WS != nil {
		r.Get("/ws", h.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workspaces
		r.Get("/workspaces", h.ListWorkspaces)
		r.Post("/workspaces", h.CreateWorkspace)
		r.Get("/workspaces/{id}", h.GetWorkspace)
		r.Post("/workspaces/{id}/review", h.ReviewWorkspace)
		r.Post("/workspaces/{id}/edit", h.EditWorkspace)
		r.Post("/workspaces/{id}/merge", h.MergeWorkspace)
		r.Post("/workspaces/{id}/reset", h.ResetWorkspace)

		// Conversations (nested under workspaces, then direct access)
		r.Post("/workspaces/{id}/conversations", h.OpenConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Get("/conversations/{id}/sessions", h.ListSessions)

		// Edit sessions
		r.Get("/sessions/{id}", h.GetSession)
		r.Post("/sessions/{id}/cancel", h.CancelSession)
		r.Get("/sessions/{id}/chunks", h.ListChunks)
	})
}
