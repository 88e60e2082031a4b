package wallboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/view"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// initialBackoff is the delay before the first reconnect attempt
	initialBackoff = 1 * time.Second

	// maxBackoff caps the reconnect delay
	maxBackoff = 30 * time.Second
)

// Update is one event from the view feed
type Update struct {
	View      *view.View
	Connected bool
	Err       error
}

// Subscribe connects to the view feed at url and keeps reconnecting with
// exponential backoff until ctx is cancelled. The returned channel is closed
// when ctx ends.
func Subscribe(ctx context.Context, url string, logger zerolog.Logger) <-chan Update {
	updates := make(chan Update, 8)
	go func() {
		defer close(updates)

		backoff := initialBackoff
		for {
			err := stream(ctx, url, updates, func() { backoff = initialBackoff })
			if ctx.Err() != nil {
				return
			}
			logger.Debug().Err(err).Dur("retry_in", backoff).Msg("view feed disconnected")
			if !emit(ctx, updates, Update{Connected: false, Err: err}) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
		}
	}()
	return updates
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// stream reads views from one connection until it fails
func stream(ctx context.Context, url string, updates chan<- Update, connected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	connected()
	if !emit(ctx, updates, Update{Connected: true}) {
		return ctx.Err()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var v view.View
		if err := json.Unmarshal(data, &v); err != nil || v.Type != "view" {
			continue
		}
		if !emit(ctx, updates, Update{View: &v, Connected: true}) {
			return ctx.Err()
		}
	}
}

func emit(ctx context.Context, updates chan<- Update, u Update) bool {
	select {
	case updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
