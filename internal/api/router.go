package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/showloop/internal/auth"
	"github.com/nerrad567/showloop/internal/panel"
	"github.com/nerrad567/showloop/internal/playback"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Display page, embedded via go:embed
	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.panelDir)))
	r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))
	r.Handle("/", http.RedirectHandler("/panel/", http.StatusFound))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/playback", s.handleGetPlayback)
		r.Get("/system/metrics", s.handleSystemMetrics)
		r.Get("/control/qr.png", s.handleControlQR)

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Get("/{id}", s.handleGetScene)
		})

		// WebSocket (token optional, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermPlaybackControl))
				for _, kind := range []playback.CommandKind{
					playback.CommandPlay,
					playback.CommandPause,
					playback.CommandToggle,
					playback.CommandSkip,
					playback.CommandReload,
				} {
					r.Post("/playback/"+string(kind), s.handlePlaybackCommand(kind))
				}
				r.Post("/playback/jump", s.handleJump)
			})

			r.With(requirePermission(auth.PermPlaybackComplete)).
				Post("/playback/complete", s.handleComplete)

			r.Route("/history", func(r chi.Router) {
				r.Use(requirePermission(auth.PermHistoryRead))
				r.Get("/", s.handleListHistory)
				r.Get("/stats", s.handleHistoryStats)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"player":  s.playerID,
		"scenes":  s.catalog.Len(),
		"version": s.version,
	})
}
