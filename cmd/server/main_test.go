package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()

			healthHandler(rec, httptest.NewRequest(method, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, map[string]string{"status": "ok", "service": "portalwatch"}, body)
		})
	}
}

func TestAddLoopStopsWithGroup(t *testing.T) {
	var g run.Group
	stopped := make(chan struct{})
	addLoop(&g, context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	errExit := errors.New("orchestrator finished")
	g.Add(func() error { return errExit }, func(error) {})

	done := make(chan error, 1)
	go func() { done <- g.Run() }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errExit)
	case <-time.After(time.Second):
		t.Fatal("group did not stop")
	}
	select {
	case <-stopped:
	default:
		t.Error("loop was not cancelled")
	}
}

func TestAddSessionFinishesBeforeLoopsStop(t *testing.T) {
	var g run.Group
	quit := make(chan struct{})
	loopCtx := make(chan context.Context, 1)
	loopAlive := make(chan bool, 1)

	addSession(&g, func() error {
		<-quit
		ctx := <-loopCtx
		loopAlive <- ctx.Err() == nil
		return nil
	}, func() { close(quit) })
	addLoop(&g, context.Background(), func(ctx context.Context) {
		loopCtx <- ctx
		<-ctx.Done()
	})

	errExit := errors.New("shutdown signal")
	g.Add(func() error { return errExit }, func(error) {})

	done := make(chan error, 1)
	go func() { done <- g.Run() }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errExit)
	case <-time.After(time.Second):
		t.Fatal("group did not stop")
	}
	assert.True(t, <-loopAlive, "loop context was cancelled before the session finished")
}
