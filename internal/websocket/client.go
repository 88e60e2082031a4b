package websocket

import (
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/config"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// viewQueue is how many serialized views may wait for one subscriber
const viewQueue = 16

// Client is one presentation subscriber of the view feed. Views only flow
// from the hub to the peer; anything the peer sends is discarded.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	config *config.Config
	logger zerolog.Logger
}

// NewClient wraps an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.Config, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, viewQueue),
		config: cfg,
		logger: logger.With().
			Str("client_id", id).
			Str("peer", conn.RemoteAddr().String()).
			Logger(),
	}
}

// Start runs the connection pumps in their own goroutines
func (c *Client) Start() {
	c.logger.Debug().Msg("view subscriber connected")
	go c.writeViews()
	go c.watchPeer()
}

// watchPeer keeps the read deadline moving with pongs and unregisters the
// client once the peer goes away
func (c *Client) watchPeer() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.logger.Debug().Msg("view subscriber disconnected")
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("view subscriber read failed")
			}
			return
		}
	}
}

// writeViews sends queued views and keepalive pings until the hub closes the
// queue or a write fails
func (c *Client) writeViews() {
	ping := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case view, ok := <-c.send:
			if ok {
				view, ok = c.newest(view)
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, view); err != nil {
				c.logger.Debug().Err(err).Msg("view write failed")
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// newest skips to the last view already queued behind view. Every view is a
// full snapshot, so older queued ones are stale. ok is false when the hub
// closed the queue.
func (c *Client) newest(view []byte) ([]byte, bool) {
	for n := len(c.send); n > 0; n-- {
		next, ok := <-c.send
		if !ok {
			return nil, false
		}
		view = next
	}
	return view, true
}
