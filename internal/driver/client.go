package driver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a command to the driver
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the driver
	pongWait = 30 * time.Second

	// Send pings to the driver with this period (must be less than pongWait)
	pingPeriod = 20 * time.Second

	// Portal frames carry full agent lists
	maxMessageSize = 4 << 20
)

// Client is the websocket connection of one browser driver process
type Client struct {
	id        string
	relay     *Relay
	conn      *websocket.Conn
	send      chan []byte
	logger    zerolog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new Client
func NewClient(relay *Relay, conn *websocket.Conn, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		relay:  relay,
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: logger.With().Str("driver_id", id).Logger(),
		done:   make(chan struct{}),
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		select {
		case c.relay.unregister <- c:
		case <-c.relay.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("driver websocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msgType struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msgType); err != nil {
		c.logger.Debug().Err(err).Msg("failed to parse message type")
		return
	}

	switch msgType.Type {
	case "hello":
		var hello Hello
		if err := json.Unmarshal(message, &hello); err != nil {
			c.logger.Debug().Err(err).Msg("failed to parse hello message")
			return
		}
		c.logger.Info().
			Str("version", hello.Version).
			Str("browser", hello.Browser).
			Msg("driver introduced itself")

	case "frame":
		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Debug().Err(err).Msg("failed to parse frame message")
			return
		}
		c.relay.deliverFrame(frame.Payload)

	case "ws_open":
		c.relay.markWebSocketOpened()

	case "result":
		var res Result
		if err := json.Unmarshal(message, &res); err != nil {
			c.logger.Debug().Err(err).Msg("failed to parse result message")
			return
		}
		c.relay.resolve(res)

	default:
		c.logger.Debug().Str("type", msgType.Type).Msg("unknown message type")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which makes writePump hang up (idempotent)
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// safeSend queues a message without blocking. It reports false when the
// client is closing or its buffer is full.
func (c *Client) safeSend(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
