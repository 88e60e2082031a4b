package driver

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The driver is a local process, not a browser page
		return true
	},
}

// Handler handles WebSocket upgrade requests from the browser driver
type Handler struct {
	relay  *Relay
	logger zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(relay *Relay, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:  relay,
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and attaches it to the relay
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade driver connection")
		return
	}

	client := NewClient(h.relay, conn, h.logger)

	select {
	case h.relay.register <- client:
	case <-h.relay.stopped:
		conn.Close()
		return
	}

	client.Start()
}
