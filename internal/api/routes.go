package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Route binds a method and path to a handler. Authenticated routes run behind
// RequireSession.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
	Auth    bool
}

// Routes is the full HTTP surface.
func (h *Handler) Routes() []Route {
	return []Route{
		{http.MethodGet, "/health", h.Health, false},
		{http.MethodGet, "/", h.Portfolio, true},
		{http.MethodPost, "/buy", h.Buy, true},
		{http.MethodGet, "/sell", h.SellableSymbols, true},
		{http.MethodPost, "/sell", h.Sell, true},
		{http.MethodGet, "/quote", h.Quote, true},
		{http.MethodPost, "/quote", h.Quote, true},
		{http.MethodGet, "/history", h.History, true},
		{http.MethodPost, "/register", h.Register, false},
		{http.MethodPost, "/login", h.Login, false},
		{http.MethodGet, "/logout", h.Logout, false},
		{http.MethodPost, "/logout", h.Logout, false},
		{http.MethodGet, "/check", h.Check, false},
		{http.MethodGet, "/ws", h.Feed, true},
	}
}

// NewRouter mounts Routes behind the common middleware chain.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.LogRequests)
	r.Use(h.Recoverer)
	r.Use(NoCache)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Status: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Status: http.StatusMethodNotAllowed})
	})

	authed := r.With(h.RequireSession)
	for _, rt := range h.Routes() {
		if rt.Auth {
			authed.Method(rt.Method, rt.Pattern, rt.Handler)
		} else {
			r.Method(rt.Method, rt.Pattern, rt.Handler)
		}
	}
	return r
}
