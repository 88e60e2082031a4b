package driver

import "encoding/json"

// Commands understood by the browser driver
const (
	CommandOpen             = "open"
	CommandLoginRequired    = "login_required"
	CommandLogin            = "login"
	CommandSaveSession      = "save_session"
	CommandPrepareDashboard = "prepare_dashboard"
	CommandDrainSSE         = "drain_sse"
	CommandClose            = "close"
)

// Command is sent from the relay to the driver
type Command struct {
	Type         string          `json:"type"` // always "command"
	ID           string          `json:"id"`
	Command      string          `json:"command"`
	URL          string          `json:"url,omitempty"`
	StorageState json.RawMessage `json:"storageState,omitempty"`
	Username     string          `json:"username,omitempty"`
	Password     string          `json:"password,omitempty"`
	TimeoutMs    int64           `json:"timeoutMs,omitempty"`
}

// Hello is the first message a driver sends after connecting
type Hello struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Browser string `json:"browser"`
}

// Frame carries one text frame received on the page's websocket
type Frame struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// Result answers the Command with the same ID
type Result struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	OK            bool            `json:"ok"`
	Error         string          `json:"error,omitempty"`
	LoginRequired bool            `json:"loginRequired,omitempty"`
	Messages      []string        `json:"messages,omitempty"`
	StorageState  json.RawMessage `json:"storageState,omitempty"`
}
