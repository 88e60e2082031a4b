package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/ingestion"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Frame is one raw push payload posted by an external feeder
type Frame struct {
	Transport types.Source `json:"transport"`
	Payload   string       `json:"payload"`
}

// Counter reports how many agents the store holds
type Counter interface {
	Count() int
}

// Receiver accepts raw portal payloads over HTTP and hands them to the
// decoder as if a transport had delivered them
type Receiver struct {
	publisher ingestion.Publisher
	store     Counter
	logger    zerolog.Logger

	framesReceived *atomic.Int64
	eventsDecoded  *atomic.Int64
	lastReceived   time.Time
	mu             sync.RWMutex
}

// NewReceiver creates a new frame receiver
func NewReceiver(publisher ingestion.Publisher, store Counter, logger zerolog.Logger) *Receiver {
	return &Receiver{
		publisher:      publisher,
		store:          store,
		logger:         logger.With().Str("component", "receiver").Logger(),
		framesReceived: atomic.NewInt64(0),
		eventsDecoded:  atomic.NewInt64(0),
	}
}

// HandleFrames accepts a single frame object or a list of frames
func (r *Receiver) HandleFrames(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames, err := decodeFrames(req)
	if err != nil {
		r.logger.Debug().Err(err).Msg("failed to decode frames")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events := 0
	for _, f := range frames {
		events += r.publisher.Publish(req.Context(), f.Payload, f.Transport)
	}

	total := r.framesReceived.Add(int64(len(frames)))
	r.eventsDecoded.Add(int64(events))
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	// Log periodically
	if total%1000 < int64(len(frames)) {
		r.logger.Info().
			Int64("total_received", total).
			Int("agents", r.store.Count()).
			Msg("frames received")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"accepted": len(frames),
		"events":   events,
	})
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"frames_received": r.framesReceived.Load(),
		"events_decoded":  r.eventsDecoded.Load(),
		"last_received":   lastReceived,
		"agents":          r.store.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func decodeFrames(req *http.Request) ([]Frame, error) {
	var body json.RawMessage
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON")
	}

	var frames []Frame
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			return nil, fmt.Errorf("invalid frame list")
		}
	} else {
		var f Frame
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("invalid frame")
		}
		frames = []Frame{f}
	}

	for i, f := range frames {
		if f.Transport != types.SourceWebSocket && f.Transport != types.SourceSSE {
			return nil, fmt.Errorf("frame %d: unknown transport %q", i, f.Transport)
		}
	}
	return frames, nil
}
