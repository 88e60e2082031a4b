package api

import (
	"errors"
	"net/http"

	"github.com/dennisdiepolder/monti/portalwatch/internal/session"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
)

// SessionControl is the part of the orchestrator the presentation layer drives
type SessionControl interface {
	Status() types.SessionStatus
	Submit(creds session.Credentials) error
	Quit()
}

// SessionHandler accepts login credentials and quit requests
type SessionHandler struct {
	session SessionControl
	logger  zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(s SessionControl, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		session: s,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Login handles POST /api/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds session.Credentials
	if !decodeBody(r, &creds) || creds.Username == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	err := h.session.Submit(creds)
	switch {
	case errors.Is(err, session.ErrNotAwaitingCredentials), errors.Is(err, session.ErrLoginInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to submit credentials")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("username", creds.Username).Msg("login attempt submitted")
	writeJSON(w, http.StatusAccepted, h.session.Status())
}

// Quit handles POST /api/quit
func (h *SessionHandler) Quit(w http.ResponseWriter, r *http.Request) {
	h.session.Quit()
	w.WriteHeader(http.StatusAccepted)
}
