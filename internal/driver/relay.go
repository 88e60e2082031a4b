package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/session"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotConnected is returned when no driver is attached to the relay
	ErrNotConnected = errors.New("browser driver not connected")
	// ErrCommandFailed is returned when the driver reports a failed command
	ErrCommandFailed = errors.New("browser driver command failed")
)

// frameBuffer bounds the frames held while nobody is consuming them
const frameBuffer = 4096

// Config holds relay settings
type Config struct {
	PortalURL        string
	SessionStatePath string
	CommandTimeout   time.Duration
}

type pendingCall struct {
	client *Client
	result chan Result
}

// Relay is the session's headless browser. It forwards commands to an
// external driver process over a websocket and surfaces what the driver
// observes on the portal page. A newer driver connection replaces the older.
type Relay struct {
	cfg Config

	client    *Client
	connected chan struct{} // closed and replaced on every registration
	pending   map[string]pendingCall

	frames   chan string
	wsOpened chan struct{}
	wsOnce   sync.Once

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	mu     sync.RWMutex
	logger zerolog.Logger
}

var _ session.Browser = (*Relay)(nil)

// NewRelay creates a new Relay
func NewRelay(cfg Config, logger zerolog.Logger) *Relay {
	return &Relay{
		cfg:        cfg,
		connected:  make(chan struct{}),
		pending:    make(map[string]pendingCall),
		frames:     make(chan string, frameBuffer),
		wsOpened:   make(chan struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger.With().Str("component", "driver").Logger(),
	}
}

// Run processes driver registrations until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	defer close(r.stopped)
	m := metrics.Get()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.client != nil {
				r.failPendingLocked(r.client)
				r.client.Close()
				r.client = nil
			}
			r.mu.Unlock()
			m.SetDriverConnected(false)
			return

		case c := <-r.register:
			r.mu.Lock()
			if r.client != nil {
				r.failPendingLocked(r.client)
				r.client.Close()
				r.logger.Info().Str("driver_id", r.client.id).Msg("driver connection replaced")
			}
			r.client = c
			close(r.connected)
			r.connected = make(chan struct{})
			r.mu.Unlock()

			m.SetDriverConnected(true)
			r.logger.Info().Str("driver_id", c.id).Msg("driver connected")

		case c := <-r.unregister:
			r.mu.Lock()
			if r.client == c {
				r.failPendingLocked(c)
				r.client = nil
				m.SetDriverConnected(false)
				r.logger.Warn().Str("driver_id", c.id).Msg("driver disconnected")
			}
			r.mu.Unlock()
			c.Close()
		}
	}
}

// Connected reports whether a driver is attached
func (r *Relay) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client != nil
}

// Open waits for a driver, then navigates it to the portal with any stored
// browser session
func (r *Relay) Open(ctx context.Context) error {
	if err := r.waitConnected(ctx); err != nil {
		return err
	}
	_, err := r.call(ctx, Command{
		Command:      CommandOpen,
		URL:          r.cfg.PortalURL,
		StorageState: r.loadSessionState(),
	})
	return err
}

// LoginRequired reports whether the portal page shows its login form
func (r *Relay) LoginRequired(ctx context.Context) (bool, error) {
	res, err := r.call(ctx, Command{Command: CommandLoginRequired})
	if err != nil {
		return false, err
	}
	return res.LoginRequired, nil
}

// SubmitCredentials fills the login form. The driver fails the command when
// the form is still present once the deadline passes.
func (r *Relay) SubmitCredentials(ctx context.Context, creds session.Credentials) error {
	_, err := r.call(ctx, Command{
		Command:  CommandLogin,
		Username: creds.Username,
		Password: creds.Password,
	})
	return err
}

// SaveSession stores the driver's authenticated browser state on disk
func (r *Relay) SaveSession(ctx context.Context) error {
	res, err := r.call(ctx, Command{Command: CommandSaveSession})
	if err != nil {
		return err
	}
	if len(res.StorageState) == 0 || !json.Valid(res.StorageState) {
		return fmt.Errorf("driver returned no usable storage state")
	}
	if err := renameio.WriteFile(r.cfg.SessionStatePath, res.StorageState, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.cfg.SessionStatePath, err)
	}
	r.logger.Info().Str("path", r.cfg.SessionStatePath).Msg("browser session saved")
	return nil
}

// PrepareDashboard walks the portal to the agent state dashboard
func (r *Relay) PrepareDashboard(ctx context.Context) error {
	_, err := r.call(ctx, Command{Command: CommandPrepareDashboard})
	return err
}

// DrainSSE returns the SSE messages buffered in the page since the last drain
func (r *Relay) DrainSSE(ctx context.Context) ([]string, error) {
	res, err := r.call(ctx, Command{Command: CommandDrainSSE})
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// Frames delivers websocket frames observed by the driver
func (r *Relay) Frames() <-chan string {
	return r.frames
}

// WebSocketOpened is closed once the page's websocket has been seen
func (r *Relay) WebSocketOpened() <-chan struct{} {
	return r.wsOpened
}

// Close asks the driver to close the browser and hangs up
func (r *Relay) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.call(ctx, Command{Command: CommandClose})
	if errors.Is(err, ErrNotConnected) {
		err = nil
	}

	r.mu.Lock()
	if r.client != nil {
		r.client.Close()
	}
	r.mu.Unlock()
	return err
}

func (r *Relay) call(ctx context.Context, cmd Command) (Result, error) {
	m := metrics.Get()

	if _, ok := ctx.Deadline(); !ok && r.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CommandTimeout)
		defer cancel()
	}

	r.mu.Lock()
	client := r.client
	if client == nil {
		r.mu.Unlock()
		m.RecordDriverCommand(cmd.Command, "error")
		return Result{}, ErrNotConnected
	}
	cmd.Type = "command"
	cmd.ID = uuid.New().String()
	if deadline, ok := ctx.Deadline(); ok {
		cmd.TimeoutMs = time.Until(deadline).Milliseconds()
	}
	result := make(chan Result, 1)
	r.pending[cmd.ID] = pendingCall{client: client, result: result}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, cmd.ID)
		r.mu.Unlock()
	}()

	data, err := json.Marshal(cmd)
	if err != nil {
		m.RecordDriverCommand(cmd.Command, "error")
		return Result{}, fmt.Errorf("failed to marshal %s command: %w", cmd.Command, err)
	}
	if !client.safeSend(data) {
		m.RecordDriverCommand(cmd.Command, "error")
		return Result{}, ErrNotConnected
	}

	select {
	case res, ok := <-result:
		if !ok {
			m.RecordDriverCommand(cmd.Command, "error")
			return Result{}, ErrNotConnected
		}
		if !res.OK {
			m.RecordDriverCommand(cmd.Command, "failed")
			return res, fmt.Errorf("%w: %s: %s", ErrCommandFailed, cmd.Command, res.Error)
		}
		m.RecordDriverCommand(cmd.Command, "ok")
		return res, nil

	case <-ctx.Done():
		m.RecordDriverCommand(cmd.Command, "error")
		return Result{}, fmt.Errorf("%s command: %w", cmd.Command, ctx.Err())
	}
}

// resolve hands a driver result to the waiting command
func (r *Relay) resolve(res Result) {
	r.mu.Lock()
	call, ok := r.pending[res.ID]
	delete(r.pending, res.ID)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug().Str("command_id", res.ID).Msg("result for unknown command")
		return
	}
	call.result <- res
}

func (r *Relay) failPendingLocked(c *Client) {
	for id, call := range r.pending {
		if call.client == c {
			close(call.result)
			delete(r.pending, id)
		}
	}
}

func (r *Relay) deliverFrame(payload string) {
	select {
	case r.frames <- payload:
	default:
		metrics.Get().RecordFrameDropped()
		r.logger.Warn().Msg("frame buffer full, dropping frame")
	}
}

func (r *Relay) markWebSocketOpened() {
	r.wsOnce.Do(func() {
		close(r.wsOpened)
		r.logger.Info().Msg("portal websocket opened")
	})
}

func (r *Relay) waitConnected(ctx context.Context) error {
	for {
		r.mu.RLock()
		client, wait := r.client, r.connected
		r.mu.RUnlock()

		if client != nil {
			return nil
		}
		r.logger.Info().Msg("waiting for browser driver")
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// loadSessionState returns the stored browser session, or nil when there is
// none or it is unreadable
func (r *Relay) loadSessionState() json.RawMessage {
	if r.cfg.SessionStatePath == "" {
		return nil
	}
	data, err := os.ReadFile(r.cfg.SessionStatePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().Err(err).Msg("failed to read browser session")
		}
		return nil
	}
	if !json.Valid(data) {
		r.logger.Warn().Str("path", r.cfg.SessionStatePath).Msg("ignoring corrupt browser session")
		return nil
	}
	return data
}
