package ingestion

import (
	"context"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
)

// Publisher accepts raw push payloads from either transport. The decoder
// implements it; transport bridges (the browser relay, the HTTP ingest
// endpoint) depend only on this.
type Publisher interface {
	Publish(ctx context.Context, payload string, source types.Source) int
}

// Store is the subset of the agent store the processor writes to
type Store interface {
	Upsert(record types.AgentState) bool
	Count() int
}

// Recorder receives every event applied to the store (the per-tick change log)
type Recorder interface {
	Add(event types.AgentChangedEvent)
}
