package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/quote"
	"go.uber.org/zap"
)

var errUnauthenticated = errors.New("login required")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// badRequest lists the errors a caller can fix by changing the request.
var badRequest = []error{
	exchange.ErrMissingSymbol,
	exchange.ErrMissingShares,
	exchange.ErrMissingInput,
	exchange.ErrInvalidShareCount,
	exchange.ErrUnknownSymbol,
	exchange.ErrInsufficientFunds,
	exchange.ErrInsufficientShares,
	auth.ErrMissingUsername,
	auth.ErrMissingPassword,
	auth.ErrPasswordMismatch,
	auth.ErrUsernameTooLong,
	auth.ErrPasswordTooLong,
	auth.ErrUsernameTaken,
	errBadBody,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusForbidden
	case errors.Is(err, errUnauthenticated), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, db.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, quote.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, e := range badRequest {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and a short reason. Unexpected errors are
// logged and reported generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = http.StatusText(status)
	case http.StatusServiceUnavailable:
		h.Logger.Warn("quote service unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "quote service unavailable, try again later"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Status: status})
}
