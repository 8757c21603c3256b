package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/notify"
	"github.com/xtrntr/papertrade/internal/view"
	"go.uber.org/zap"
)

var errBadBody = errors.New("invalid request body")

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Exchange    *exchange.Exchange
	AuthService *auth.AuthService
	Hub         *notify.Hub
	Logger      *zap.Logger
	SessionTTL  time.Duration
}

// NewHandler creates a new handler
func NewHandler(ex *exchange.Exchange, authService *auth.AuthService, hub *notify.Hub, logger *zap.Logger, sessionTTL time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Exchange: ex, AuthService: authService, Hub: hub, Logger: logger, SessionTTL: sessionTTL}
}

// fields reads a flat set of string fields from a JSON object or a form body,
// falling back to the query string.
func fields(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var raw map[string]interface{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, errBadBody
		}
		for k, v := range raw {
			if v != nil {
				out[k] = fmt.Sprint(v)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, errBadBody
	}
	for k := range r.Form {
		out[k] = r.Form.Get(k)
	}
	return out, nil
}

// Portfolio shows the user's positions valued at current prices
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	p, err := h.Exchange.Portfolio.GetPortfolio(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewPortfolio(p))
}

// Buy handles share purchases
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	f, err := fields(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tx, err := h.Exchange.Buy(r.Context(), userID, f["symbol"], f["shares"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"transaction": view.NewTransaction(*tx)})
}

// SellableSymbols lists what the user can sell
func (h *Handler) SellableSymbols(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	symbols, err := h.Exchange.Portfolio.SellableSymbols(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

// Sell handles share sales
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	f, err := fields(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tx, err := h.Exchange.Sell(r.Context(), userID, f["symbol"], f["shares"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"transaction": view.NewTransaction(*tx)})
}

// Quote looks up the current price of a symbol
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	f, err := fields(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.Exchange.Quote(r.Context(), f["symbol"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewQuote(q))
}

// History lists the user's transactions
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	txs, err := h.Exchange.History(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": view.NewTransactions(txs)})
}

// Register creates an account and logs the new user in
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	f, err := fields(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	userID, err := h.AuthService.Register(r.Context(), f["username"], f["password"], f["confirmation"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, userID, http.StatusCreated)
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	clearSession(w, r)
	f, err := fields(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if f["username"] == "" {
		h.writeError(w, r, auth.ErrMissingUsername)
		return
	}
	if f["password"] == "" {
		h.writeError(w, r, auth.ErrMissingPassword)
		return
	}
	userID, err := h.AuthService.Authenticate(r.Context(), f["username"], f["password"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, userID, http.StatusOK)
}

// Logout forgets the session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSession(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Check reports whether a username is still free
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ok, err := h.AuthService.IsUsernameAvailable(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"result": ok})
}

// Feed streams the user's executed transactions over a websocket
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	h.Hub.Serve(w, r, userID)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID int, status int) {
	token, err := h.AuthService.IssueToken(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to issue token: %w", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.SessionTTL),
	})
	writeJSON(w, status, map[string]interface{}{"user_id": userID, "token": token})
}

func clearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
