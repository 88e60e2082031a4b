package decoder

import (
	"context"
	"encoding/json"

	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
)

// AgentStateChangedMethod is the hub method name carrying agent records
const AgentStateChangedMethod = "onAgentStateChanged"

// envelopeKey holds the sub-message list in a framed payload, and the method
// name inside each sub-message
const envelopeKey = "M"

// argumentsKey holds the argument list inside a sub-message
const argumentsKey = "A"

// Decode turns one raw payload into zero or more agent changed events.
//
// Decoding is best-effort: malformed JSON, missing keys or a shape mismatch
// produce no events and no error. Within an envelope a bad sub-message is
// skipped without discarding its siblings.
func Decode(payload string, source types.Source) []types.AgentChangedEvent {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &top); err != nil || top == nil {
		return nil
	}

	if list, ok := top[envelopeKey]; ok {
		return decodeEnvelope(list, source)
	}

	// Transport B pushes a bare agent record
	if source != types.SourceSSE {
		return nil
	}
	var agent types.AgentState
	if err := json.Unmarshal([]byte(payload), &agent); err != nil {
		return nil
	}
	return []types.AgentChangedEvent{{Source: source, Agent: agent}}
}

func decodeEnvelope(list json.RawMessage, source types.Source) []types.AgentChangedEvent {
	var messages []json.RawMessage
	if err := json.Unmarshal(list, &messages); err != nil {
		return nil
	}

	var events []types.AgentChangedEvent
	for _, raw := range messages {
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		var method string
		if err := json.Unmarshal(msg[envelopeKey], &method); err != nil || method != AgentStateChangedMethod {
			continue
		}
		var args []json.RawMessage
		if err := json.Unmarshal(msg[argumentsKey], &args); err != nil || len(args) == 0 {
			continue
		}
		var agent types.AgentState
		if err := json.Unmarshal(args[0], &agent); err != nil {
			continue
		}
		events = append(events, types.AgentChangedEvent{Source: source, Agent: agent})
	}
	return events
}

// Decoder decodes raw payloads from both transports and publishes the
// resulting events, in delivery order, on a single channel
type Decoder struct {
	out    chan types.AgentChangedEvent
	logger zerolog.Logger
}

// New creates a Decoder whose event channel holds up to buffer events
func New(buffer int, logger zerolog.Logger) *Decoder {
	return &Decoder{
		out:    make(chan types.AgentChangedEvent, buffer),
		logger: logger.With().Str("component", "decoder").Logger(),
	}
}

// Events returns the channel normalized events are published on
func (d *Decoder) Events() <-chan types.AgentChangedEvent {
	return d.out
}

// Publish decodes payload and enqueues its events. It blocks while the channel
// is full so that no event is lost or reordered, and returns early with the
// number published so far if ctx is cancelled.
func (d *Decoder) Publish(ctx context.Context, payload string, source types.Source) int {
	events := Decode(payload, source)
	metrics.Get().RecordPayload(string(source), len(events), events == nil)

	if events == nil {
		d.logger.Debug().
			Str("transport", string(source)).
			Int("bytes", len(payload)).
			Msg("payload carried no agent events")
		return 0
	}

	for i, event := range events {
		select {
		case d.out <- event:
		case <-ctx.Done():
			return i
		}
	}
	return len(events)
}
