package api

import (
	"net/http"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/dennisdiepolder/monti/portalwatch/internal/view"
	"github.com/rs/zerolog"
)

// ViewSource exposes the latest derived view
type ViewSource interface {
	Current() view.View
	Names() []string
}

// SessionState reports what the session orchestrator is doing
type SessionState interface {
	Status() types.SessionStatus
	WebSocketActive() bool
}

// ClientCounter reports connected subscribers
type ClientCounter interface {
	ClientCount() int
}

// DriverState reports whether the browser driver is attached
type DriverState interface {
	Connected() bool
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	types.SessionStatus
	WebSocketActive bool `json:"websocketActive"`
	DriverConnected bool `json:"driverConnected"`
	Agents          int  `json:"agents"`
	ViewClients     int  `json:"viewClients"`
}

// ViewHandler serves the derived view and the session status
type ViewHandler struct {
	views   ViewSource
	session SessionState
	clients ClientCounter
	driver  DriverState
	logger  zerolog.Logger
}

// NewViewHandler creates a new ViewHandler
func NewViewHandler(views ViewSource, session SessionState, clients ClientCounter, driver DriverState, logger zerolog.Logger) *ViewHandler {
	return &ViewHandler{
		views:   views,
		session: session,
		clients: clients,
		driver:  driver,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// GetView handles GET /api/view
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.views.Current())
}

// GetStatus handles GET /api/status
func (h *ViewHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		SessionStatus:   h.session.Status(),
		WebSocketActive: h.session.WebSocketActive(),
		DriverConnected: h.driver.Connected(),
		Agents:          h.views.Current().TotalAgents,
		ViewClients:     h.clients.ClientCount(),
	})
}
