package window

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/session"
	"github.com/rs/zerolog"
)

// DefaultGrace is how long a window gets to exit after an interrupt
const DefaultGrace = 3 * time.Second

// Launcher starts window shell processes pointed at the local server
type Launcher struct {
	command []string
	grace   time.Duration
	logger  zerolog.Logger
}

var _ session.Window = (*Launcher)(nil)

// NewLauncher creates a Launcher for command, split on whitespace. An empty
// command launches headless placeholders that only wait for cancellation.
func NewLauncher(command string, grace time.Duration, logger zerolog.Logger) *Launcher {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Launcher{
		command: strings.Fields(command),
		grace:   grace,
		logger:  logger.With().Str("component", "window").Logger(),
	}
}

// Args renders a window spec as shell command line flags
func Args(spec session.WindowSpec) []string {
	args := []string{
		"--url", spec.URL,
		"--title", spec.Title,
		"--width", strconv.Itoa(spec.Width),
		"--height", strconv.Itoa(spec.Height),
	}
	if spec.Resizable {
		args = append(args, "--resizable")
	}
	if spec.Frameless {
		args = append(args, "--frameless")
	}
	if spec.Fullscreen {
		args = append(args, "--fullscreen")
	}
	return args
}

// Launch starts one window. The process is not tied to ctx; the caller owns
// it and must Terminate it.
func (l *Launcher) Launch(ctx context.Context, spec session.WindowSpec) (session.Process, error) {
	if len(l.command) == 0 {
		l.logger.Info().Str("title", spec.Title).Str("url", spec.URL).Msg("no window command configured, running headless")
		return newHeadless(ctx), nil
	}

	args := append(append([]string{}, l.command[1:]...), Args(spec)...)
	cmd := exec.Command(l.command[0], args...)
	out := l.logger.With().Str("window", spec.Title).Logger()
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.command[0], err)
	}

	p := &process{cmd: cmd, grace: l.grace, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	l.logger.Debug().Int("pid", cmd.Process.Pid).Str("title", spec.Title).Msg("window process started")
	return p, nil
}

type process struct {
	cmd   *exec.Cmd
	grace time.Duration
	done  chan struct{}
	err   error
}

func (p *process) Wait() error {
	<-p.done
	return p.err
}

// Terminate interrupts the process and kills it if it outlives the grace
// period
func (p *process) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(p.grace):
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill pid %d: %w", p.cmd.Process.Pid, err)
		}
		<-p.done
		return nil
	}
}

// headless stands in for a window when no shell is configured
type headless struct {
	done chan struct{}
	once sync.Once
}

func newHeadless(ctx context.Context) *headless {
	h := &headless{done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			h.Terminate()
		case <-h.done:
		}
	}()
	return h
}

func (h *headless) Wait() error {
	<-h.done
	return nil
}

func (h *headless) Terminate() error {
	h.once.Do(func() { close(h.done) })
	return nil
}
