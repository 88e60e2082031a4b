package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/ingestion"
	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// LoginFailedMessage is the status line shown after a failed login attempt
const LoginFailedMessage = "Login failed. Please try again."

var (
	// ErrNotAwaitingCredentials is returned by Submit outside the login phases
	ErrNotAwaitingCredentials = errors.New("session is not waiting for credentials")
	// ErrLoginInProgress is returned by Submit while an attempt is pending
	ErrLoginInProgress = errors.New("a login attempt is already pending")
)

// Credentials are the portal login supplied by the user, once per attempt
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Config holds orchestrator timings and the window shell target
type Config struct {
	WindowURL       string
	LoginTimeout    time.Duration
	SSEPollInterval time.Duration
}

// Orchestrator drives the hidden browser through the session lifecycle and
// bridges its two push transports into the decoder
type Orchestrator struct {
	browser   Browser
	window    Window
	publisher ingestion.Publisher
	prefs     Flusher
	cfg       Config
	logger    zerolog.Logger

	credentials chan Credentials
	quit        chan struct{}
	quitOnce    sync.Once
	wsActive    *atomic.Bool
	wg          sync.WaitGroup

	mu     sync.RWMutex
	status types.SessionStatus
	procs  []Process
}

// NewOrchestrator creates a new Orchestrator. window may be nil when no
// window shell is configured.
func NewOrchestrator(browser Browser, window Window, publisher ingestion.Publisher, prefs Flusher, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		browser:     browser,
		window:      window,
		publisher:   publisher,
		prefs:       prefs,
		cfg:         cfg,
		logger:      logger.With().Str("component", "session").Logger(),
		credentials: make(chan Credentials, 1),
		quit:        make(chan struct{}),
		wsActive:    atomic.NewBool(false),
		status:      types.SessionStatus{Phase: types.PhaseIdle},
	}
}

// Status returns the current phase and status lines
func (o *Orchestrator) Status() types.SessionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// WebSocketActive reports whether transport A has been observed
func (o *Orchestrator) WebSocketActive() bool {
	return o.wsActive.Load()
}

// Submit hands credentials to a session waiting for them
func (o *Orchestrator) Submit(creds Credentials) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.Phase != types.PhaseAwaitingCredentials && o.status.Phase != types.PhaseLoginFailed {
		return ErrNotAwaitingCredentials
	}
	select {
	case o.credentials <- creds:
	default:
		return ErrLoginInProgress
	}
	o.status.Message = ""
	o.status.Progress = "Attempting login..."
	return nil
}

// Quit requests an orderly shutdown from any phase
func (o *Orchestrator) Quit() {
	o.quitOnce.Do(func() {
		o.logger.Info().Msg("quit requested")
		close(o.quit)
	})
}

// Run executes the session until the app window exits, Quit is called, ctx
// is cancelled or the browser fails. Shutdown (flush preferences, terminate
// owned processes, close the browser) always runs before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		o.wg.Wait()
		o.shutdown()
	}()

	go func() {
		select {
		case <-o.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	o.setProgress("Starting invisible browser...")
	loginWindow, err := o.launch(ctx, WindowSpec{
		URL:       o.cfg.WindowURL,
		Title:     "Login",
		Width:     400,
		Height:    400,
		Frameless: true,
	})
	if err != nil {
		return err
	}

	if err := o.browser.Open(ctx); err != nil {
		return o.stopped(ctx, fmt.Errorf("failed to open browser: %w", err))
	}

	if err := o.authenticate(ctx); err != nil {
		return o.stopped(ctx, err)
	}

	o.transition(types.PhaseLiveStreaming, "")
	o.stream(ctx)

	o.setProgress("Setting up Ignite...")
	if err := o.browser.PrepareDashboard(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		o.logger.Warn().Err(err).Msg("dashboard preparation failed, continuing")
	}

	o.setProgress("Launching app...")
	if loginWindow != nil {
		o.terminate(loginWindow)
	}
	appWindow, err := o.launch(ctx, WindowSpec{
		URL:       o.cfg.WindowURL,
		Title:     "Ignite",
		Width:     900,
		Height:    600,
		Resizable: true,
	})
	if err != nil {
		return err
	}
	o.setProgress("")

	if appWindow == nil {
		<-ctx.Done()
		return nil
	}

	exited := make(chan error, 1)
	go func() { exited <- appWindow.Wait() }()

	select {
	case err := <-exited:
		o.logger.Info().AnErr("exit", err).Msg("app window exited")
	case <-ctx.Done():
	}
	return nil
}

// stopped maps a cancellation to a clean return
func (o *Orchestrator) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// authenticate loops until the browser no longer shows a login form
func (o *Orchestrator) authenticate(ctx context.Context) error {
	for {
		required, err := o.browser.LoginRequired(ctx)
		if err != nil {
			return fmt.Errorf("failed to inspect login page: %w", err)
		}
		if !required {
			o.logger.Info().Msg("stored session reused")
			return nil
		}

		o.setProgress("")
		o.transition(types.PhaseAwaitingCredentials, o.Status().Message)

		var creds Credentials
		select {
		case creds = <-o.credentials:
		case <-ctx.Done():
			return ctx.Err()
		}

		o.transition(types.PhaseAuthenticating, "")
		loginCtx, cancel := context.WithTimeout(ctx, o.cfg.LoginTimeout)
		err = o.browser.SubmitCredentials(loginCtx, creds)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn().Err(err).Str("username", creds.Username).Msg("login failed")
			o.setProgress("")
			o.transition(types.PhaseLoginFailed, LoginFailedMessage)
			continue
		}

		if err := o.browser.SaveSession(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("failed to persist browser session")
		}
		o.setProgress("Login successful")
		return nil
	}
}

// stream forwards transport A frames and polls transport B until transport
// A is observed, at which point SSE polling is cancelled for good
func (o *Orchestrator) stream(ctx context.Context) {
	pollCtx, stopPolling := context.WithCancel(ctx)

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		defer stopPolling()
		o.forwardFrames(ctx, stopPolling)
	}()
	go func() {
		defer o.wg.Done()
		o.pollSSE(pollCtx)
	}()
}

func (o *Orchestrator) forwardFrames(ctx context.Context, stopPolling context.CancelFunc) {
	opened := o.browser.WebSocketOpened()
	frames := o.browser.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case <-opened:
			opened = nil
			if o.wsActive.CompareAndSwap(false, true) {
				stopPolling()
				o.logger.Info().Msg("websocket transport active, SSE polling stopped")
			}
		case frame, ok := <-frames:
			if !ok {
				o.logger.Warn().Msg("websocket frame stream closed")
				return
			}
			o.publisher.Publish(ctx, frame, types.SourceWebSocket)
		}
	}
}

func (o *Orchestrator) pollSSE(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SSEPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.wsActive.Load() {
				return
			}
			messages, err := o.browser.DrainSSE(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				o.logger.Debug().Err(err).Msg("failed to drain SSE buffer")
				continue
			}
			for _, msg := range messages {
				o.publisher.Publish(ctx, msg, types.SourceSSE)
			}
		}
	}
}

func (o *Orchestrator) launch(ctx context.Context, spec WindowSpec) (Process, error) {
	if o.window == nil {
		return nil, nil
	}
	proc, err := o.window.Launch(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s window: %w", spec.Title, err)
	}
	o.mu.Lock()
	o.procs = append(o.procs, proc)
	o.mu.Unlock()

	o.logger.Info().Str("title", spec.Title).Msg("window launched")
	return proc, nil
}

// terminate stops one owned process and forgets it
func (o *Orchestrator) terminate(proc Process) {
	if err := proc.Terminate(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to terminate window process")
	}
	o.mu.Lock()
	for i, p := range o.procs {
		if p == proc {
			o.procs = append(o.procs[:i], o.procs[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
}

func (o *Orchestrator) shutdown() {
	o.transition(types.PhaseShuttingDown, o.Status().Message)

	if err := o.prefs.Flush(); err != nil {
		o.logger.Error().Err(err).Msg("failed to flush preferences")
	}

	o.mu.Lock()
	procs := o.procs
	o.procs = nil
	o.mu.Unlock()
	for _, p := range procs {
		if err := p.Terminate(); err != nil {
			o.logger.Warn().Err(err).Msg("failed to terminate window process")
		}
	}

	if err := o.browser.Close(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to close browser")
	}
	o.logger.Info().Int("processes", len(procs)).Msg("session shut down")
}

func (o *Orchestrator) transition(phase types.SessionPhase, message string) {
	o.mu.Lock()
	from := o.status.Phase
	o.status.Phase = phase
	o.status.Message = message
	o.mu.Unlock()

	if from == phase {
		return
	}
	metrics.Get().RecordPhase(string(from), string(phase))
	o.logger.Info().
		Str("from", string(from)).
		Str("to", string(phase)).
		Msg("session phase changed")
}

func (o *Orchestrator) setProgress(progress string) {
	o.mu.Lock()
	o.status.Progress = progress
	o.mu.Unlock()
}
