package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and login (no auth required)
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", s.handleListChannels)
				r.Post("/", s.handleCreateChannel)
				r.Delete("/{name}", s.handleDeleteChannel)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", s.handleSendMessage)
				r.Get("/", s.handleMessageHistory)
			})

			r.Route("/repeaters", func(r chi.Router) {
				r.Get("/", s.handleListRepeaters)
				r.Post("/", s.handleCreateRepeater)
				r.Post("/poll", s.handlePollRepeaters)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRepeater)
					r.Patch("/", s.handleUpdateRepeater)
					r.Delete("/", s.handleDeleteRepeater)
					r.Post("/enable", s.handleEnableRepeater)
					r.Post("/disable", s.handleDisableRepeater)
					r.Get("/status", s.handleRepeaterStatus)
					r.Get("/telemetry", s.handleRepeaterTelemetry)
					r.Get("/telemetry/history", s.handleTelemetryHistory)
				})
			})
		})

		// WebSocket authenticates in-band with its first frame.
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}
