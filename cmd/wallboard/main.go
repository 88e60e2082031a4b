package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dennisdiepolder/monti/portalwatch/internal/wallboard"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	url := pflag.String("url", "ws://localhost:8080/ws", "view feed websocket URL")
	noColor := pflag.Bool("no-color", false, "disable colors")
	logFile := pflag.String("log-file", "", "write debug logs to this file")
	pflag.Parse()

	// The terminal belongs to the UI; logs go to a file or nowhere
	var out io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	logger := zerolog.New(out).With().Timestamp().Str("component", "wallboard").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := wallboard.Subscribe(ctx, *url, logger)
	p := tea.NewProgram(wallboard.NewModel(updates, *noColor), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wallboard: %v\n", err)
		os.Exit(1)
	}
}
