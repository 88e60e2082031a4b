package decoder

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(records ...string) string {
	msgs := make([]string, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, fmt.Sprintf(`{"H":"agentHub","M":"onAgentStateChanged","A":[%s]}`, r))
	}
	return `{"C":"d-1","M":[` + strings.Join(msgs, ",") + `]}`
}

func named(id string) string {
	return fmt.Sprintf(`{"id":%q,"firstName":"Agent","lastName":%q}`, id, id)
}

func TestDecodeEnvelopePreservesOrder(t *testing.T) {
	payload := envelope(
		`{"id":"1","firstName":"Alice","lastName":"Smith","currentState":"Ready"}`,
		`{"id":"2","firstName":"Bob","lastName":"Jones","currentState":"Busy"}`,
		`{"id":"1","firstName":"Alice","lastName":"Smith","currentState":"Break"}`,
	)

	events := Decode(payload, types.SourceWebSocket)

	require.Len(t, events, 3)
	assert.Equal(t, "1", events[0].Agent.ID)
	assert.Equal(t, "Ready", events[0].Agent.CurrentState)
	assert.Equal(t, "2", events[1].Agent.ID)
	assert.Equal(t, "Break", events[2].Agent.CurrentState)
	for _, e := range events {
		assert.Equal(t, types.SourceWebSocket, e.Source)
	}
}

func TestDecodeSkipsBadSubMessages(t *testing.T) {
	payload := `{"M":[
		{"M":"onAgentStateChanged","A":[{"id":"1","firstName":"A","lastName":"B"}]},
		{"M":"onSomethingElse","A":[{"id":"9"}]},
		{"M":"onAgentStateChanged","A":[]},
		{"M":"onAgentStateChanged"},
		{"M":"onAgentStateChanged","A":[{"firstName":"no id"}]},
		"not an object",
		{"M":"onAgentStateChanged","A":[{"id":2,"firstName":"C","lastName":"D"}]}
	]}`

	events := Decode(payload, types.SourceWebSocket)

	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].Agent.ID)
	assert.Equal(t, "2", events[1].Agent.ID)
}

func TestDecodeMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		source  types.Source
	}{
		{"empty", "", types.SourceWebSocket},
		{"not json", "{{{", types.SourceWebSocket},
		{"null", "null", types.SourceSSE},
		{"array", `[1,2,3]`, types.SourceSSE},
		{"keepalive", `{}`, types.SourceWebSocket},
		{"envelope not a list", `{"M":"onAgentStateChanged"}`, types.SourceWebSocket},
		{"bare record on websocket", `{"id":"1","firstName":"A"}`, types.SourceWebSocket},
		{"bare record without id", `{"firstName":"A","lastName":"B"}`, types.SourceSSE},
		{"sse heartbeat with id", `{"id":"hb-1","type":"heartbeat"}`, types.SourceSSE},
		{"sse record without lastName", `{"id":"1","firstName":"A"}`, types.SourceSSE},
		{"envelope argument without names", `{"M":[{"M":"onAgentStateChanged","A":[{"id":"7","currentState":"Ready"}]}]}`, types.SourceWebSocket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Decode(tt.payload, tt.source))
		})
	}
}

func TestDecodeSSEBareRecord(t *testing.T) {
	events := Decode(`{"id":"7","firstName":"Eve","lastName":"Adams","reason":"Lunch"}`, types.SourceSSE)

	require.Len(t, events, 1)
	assert.Equal(t, types.SourceSSE, events[0].Source)
	assert.Equal(t, "7", events[0].Agent.ID)
	assert.Equal(t, "Lunch", events[0].Agent.Reason)
}

func TestDecodeSSEEnvelope(t *testing.T) {
	events := Decode(envelope(`{"id":"3","firstName":"C","lastName":"D"}`), types.SourceSSE)

	require.Len(t, events, 1)
	assert.Equal(t, types.SourceSSE, events[0].Source)
}

func TestPublishDeliversInOrder(t *testing.T) {
	d := New(10, zerolog.New(&bytes.Buffer{}))

	n := d.Publish(context.Background(), envelope(named("1"), named("2")), types.SourceWebSocket)
	require.Equal(t, 2, n)

	assert.Equal(t, "1", (<-d.Events()).Agent.ID)
	assert.Equal(t, "2", (<-d.Events()).Agent.ID)
}

func TestPublishMalformedReturnsZero(t *testing.T) {
	d := New(1, zerolog.New(&bytes.Buffer{}))

	assert.Equal(t, 0, d.Publish(context.Background(), "garbage", types.SourceSSE))
	assert.Len(t, d.Events(), 0)
}

func TestPublishStopsOnCancel(t *testing.T) {
	d := New(1, zerolog.New(&bytes.Buffer{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n := d.Publish(ctx, envelope(named("1"), named("2"), named("3")), types.SourceWebSocket)

	assert.Equal(t, 1, n, "only the buffered event is published")
}
