package window

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		spec session.WindowSpec
		want []string
	}{
		{
			name: "login window",
			spec: session.WindowSpec{URL: "http://localhost:8080", Title: "Login", Width: 400, Height: 400, Frameless: true},
			want: []string{"--url", "http://localhost:8080", "--title", "Login", "--width", "400", "--height", "400", "--frameless"},
		},
		{
			name: "app window",
			spec: session.WindowSpec{URL: "http://localhost:8080", Title: "Ignite", Width: 900, Height: 600, Resizable: true},
			want: []string{"--url", "http://localhost:8080", "--title", "Ignite", "--width", "900", "--height", "600", "--resizable"},
		},
		{
			name: "fullscreen",
			spec: session.WindowSpec{URL: "u", Title: "t", Width: 1, Height: 2, Fullscreen: true},
			want: []string{"--url", "u", "--title", "t", "--width", "1", "--height", "2", "--fullscreen"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Args(tt.spec))
		})
	}
}

func TestHeadlessWindowEndsWithContext(t *testing.T) {
	l := NewLauncher("", 0, zerolog.New(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())

	p, err := l.Launch(ctx, session.WindowSpec{Title: "Ignite"})
	require.NoError(t, err)

	exited := make(chan struct{})
	go func() {
		p.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		t.Fatal("headless window exited early")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("headless window did not exit on cancel")
	}
	assert.NoError(t, p.Terminate())
}

// TestHelperProcess is started as a fake window shell by the tests below
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PORTALWATCH_WINDOW_HELPER") != "1" {
		return
	}
	if out := os.Getenv("PORTALWATCH_WINDOW_ARGS"); out != "" {
		args := os.Args
		for i, a := range args {
			if a == "--" {
				args = args[i+1:]
				break
			}
		}
		os.WriteFile(out, []byte(strings.Join(args, " ")), 0o644)
	}
	if os.Getenv("PORTALWATCH_WINDOW_STUBBORN") == "1" {
		signal.Ignore(os.Interrupt)
	}
	time.Sleep(time.Minute)
	os.Exit(0)
}

func helperLauncher(t *testing.T, grace time.Duration) *Launcher {
	t.Helper()
	t.Setenv("PORTALWATCH_WINDOW_HELPER", "1")
	return NewLauncher(os.Args[0]+" -test.run=TestHelperProcess --", grace, zerolog.New(&bytes.Buffer{}))
}

func TestLaunchPassesSpecAndTerminates(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	t.Setenv("PORTALWATCH_WINDOW_ARGS", out)
	l := helperLauncher(t, time.Second)

	p, err := l.Launch(context.Background(), session.WindowSpec{URL: "http://localhost:1", Title: "Ignite", Width: 900, Height: 600, Resizable: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && len(data) > 0
	}, 5*time.Second, 10*time.Millisecond)
	data, _ := os.ReadFile(out)
	assert.Equal(t, "--url http://localhost:1 --title Ignite --width 900 --height 600 --resizable", string(data))

	start := time.Now()
	require.NoError(t, p.Terminate())
	assert.Less(t, time.Since(start), time.Second, "interrupt is enough for a cooperative window")
	assert.Error(t, p.Wait(), "interrupted process reports a non-zero exit")
}

func TestTerminateKillsStubbornWindow(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	t.Setenv("PORTALWATCH_WINDOW_ARGS", out)
	t.Setenv("PORTALWATCH_WINDOW_STUBBORN", "1")
	l := helperLauncher(t, 100*time.Millisecond)

	p, err := l.Launch(context.Background(), session.WindowSpec{Title: "Login"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Terminate() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stubborn window was not killed")
	}
}

func TestLaunchMissingBinary(t *testing.T) {
	l := NewLauncher("/nonexistent/window-shell", 0, zerolog.New(&bytes.Buffer{}))

	_, err := l.Launch(context.Background(), session.WindowSpec{Title: "Ignite"})

	assert.Error(t, err)
}
