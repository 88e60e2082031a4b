package session

import "context"

// Browser is the headless browser collaborator that holds the portal page
type Browser interface {
	// Open navigates to the portal, reusing any stored session
	Open(ctx context.Context) error
	// LoginRequired reports whether the page shows the login form
	LoginRequired(ctx context.Context) (bool, error)
	// SubmitCredentials fills the login form and waits for it to go away
	SubmitCredentials(ctx context.Context, creds Credentials) error
	// SaveSession persists the authenticated browser state
	SaveSession(ctx context.Context) error
	// PrepareDashboard drives the portal to the agent state view
	PrepareDashboard(ctx context.Context) error
	// DrainSSE returns and clears the SSE messages buffered in the page
	DrainSSE(ctx context.Context) ([]string, error)
	// Frames delivers every text frame received on the page's websocket
	Frames() <-chan string
	// WebSocketOpened is signalled when the page opens its websocket
	WebSocketOpened() <-chan struct{}
	Close() error
}

// WindowSpec describes one window of the desktop shell
type WindowSpec struct {
	URL        string
	Title      string
	Width      int
	Height     int
	Resizable  bool
	Frameless  bool
	Fullscreen bool
}

// Window launches window shell processes
type Window interface {
	Launch(ctx context.Context, spec WindowSpec) (Process, error)
}

// Process is a running window shell
type Process interface {
	// Wait blocks until the process exits
	Wait() error
	Terminate() error
}

// Flusher writes in-memory state out on shutdown
type Flusher interface {
	Flush() error
}
