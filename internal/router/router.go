package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"schoolhub-backend/internal/handlers"
	"schoolhub-backend/internal/middleware"
)

type Deps struct {
	JWTAuth       *middleware.JWTAuth
	ChatLimiter   *middleware.RateLimiter
	ChatHandler   *handlers.ChatHandler
	ImportHandler *handlers.ImportHandler

	// WebSocket may be nil when push updates are disabled.
	WebSocket   http.HandlerFunc
	FrontendURL string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(d.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			if d.ChatLimiter != nil {
				r.Use(d.ChatLimiter.Middleware)
			}
			r.Post("/stream", d.ChatHandler.Stream)
		})

		// ──── Import Routes ────
		r.Route("/imports", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Post("/", d.ImportHandler.Create)
			r.Get("/{id}", d.ImportHandler.GetJob)
		})

		// ──── WebSocket ────
		if d.WebSocket != nil {
			r.Get("/ws", d.WebSocket)
		}
	})

	return r
}
