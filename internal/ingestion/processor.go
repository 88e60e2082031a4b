package ingestion

import (
	"context"

	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
)

// Processor applies decoded events to the agent store. It is the single
// writer of the store, so events land in exactly the order they were
// published.
type Processor struct {
	store    Store
	recorder Recorder
	logger   zerolog.Logger
}

// NewProcessor creates a new Processor. recorder may be nil.
func NewProcessor(store Store, recorder Recorder, logger zerolog.Logger) *Processor {
	return &Processor{
		store:    store,
		recorder: recorder,
		logger:   logger.With().Str("component", "processor").Logger(),
	}
}

// Run consumes events until ctx is cancelled or the channel is closed
func (p *Processor) Run(ctx context.Context, events <-chan types.AgentChangedEvent) {
	p.logger.Info().Msg("processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("processor stopped")
			return
		case event, ok := <-events:
			if !ok {
				p.logger.Info().Msg("event channel closed, processor stopped")
				return
			}
			p.Apply(event)
		}
	}
}

// Apply upserts one event into the store
func (p *Processor) Apply(event types.AgentChangedEvent) {
	if !p.store.Upsert(event.Agent) {
		p.logger.Debug().Str("transport", string(event.Source)).Msg("event without agent id ignored")
		return
	}
	if p.recorder != nil {
		p.recorder.Add(event)
	}
	metrics.Get().RecordUpsert(p.store.Count())

	p.logger.Debug().
		Str("agent_id", event.Agent.ID).
		Str("transport", string(event.Source)).
		Str("state", event.Agent.CurrentState).
		Msg("agent state applied")
}
