package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const requestTimeout = 15 * time.Second

type RouterParams struct {
	Handler *Handler
	// WebSocket is mounted at /ws outside the request timeout
	WebSocket http.HandlerFunc
	Logger    zerolog.Logger
}

func NewRouter(params RouterParams) *chi.Mux {
	logger := params.Logger.With().Str("component", "http").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(logger), middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "bid-settlement"})
	})

	if params.WebSocket != nil {
		r.Get("/ws", params.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		params.Handler.Register(r)
	})
	return r
}
