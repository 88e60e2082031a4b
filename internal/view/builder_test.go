package view

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/cache"
	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/prefs"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPersister struct{}

func (nopPersister) SaveColumns([]prefs.Column) error { return nil }
func (nopPersister) SaveSelectedNames([]string) error { return nil }

type fixedStatus types.SessionStatus

func (s fixedStatus) Status() types.SessionStatus { return types.SessionStatus(s) }

type captureHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *captureHub) Broadcast(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

func (h *captureHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *captureHub) last() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[len(h.messages)-1]
}

func upsert(t *testing.T, store *cache.AgentStore, raw string) {
	t.Helper()
	var a types.AgentState
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	require.True(t, store.Upsert(a))
}

func newTestBuilder(t *testing.T, hub Broadcaster) (*Builder, *cache.AgentStore, *prefs.Engine) {
	t.Helper()
	logger := zerolog.New(&bytes.Buffer{})
	store := cache.NewAgentStore()
	engine := prefs.NewEngine(nil, nil, nopPersister{}, logger)
	status := fixedStatus{Phase: types.PhaseLiveStreaming}
	return NewBuilder(store, cache.NewChangeLog(), engine, status, hub, 10*time.Millisecond, logger), store, engine
}

func TestBuildRowDerivedFields(t *testing.T) {
	var a types.AgentState
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"1","firstName":"Alice","lastName":"Smith","currentState":"Ready",
		"enteredStateOn":"2024-03-01T09:00:00Z",
		"lastLoginTime":"2024-03-01T08:00:00Z",
		"callsToday":4
	}`), &a))
	a.Name = "Alice Smith"
	now := time.Date(2024, 3, 1, 10, 2, 5, 0, time.UTC)

	row := BuildRow(a, now)

	assert.Equal(t, "01:02:05", row[types.FieldTimeInStatus])
	assert.Equal(t, "01/03/2024 09:00:00", row[types.FieldFormattedEnteredStateOn])
	assert.Equal(t, "01/03/2024 08:00:00", row[types.FieldFormattedLastLoginTime])
	assert.Equal(t, TimestampUnknown, row[types.FieldFormattedLastLogoffTime])
	assert.Equal(t, "Alice Smith", row[types.FieldName])
	assert.Equal(t, "Ready", row[types.FieldCurrentState])
	assert.NotNil(t, row["callsToday"])
}

func TestBuildRowMissingEntryTime(t *testing.T) {
	row := BuildRow(types.AgentState{ID: "1"}, time.Now())

	assert.Equal(t, ElapsedUnknown, row[types.FieldTimeInStatus])
}

func TestBuildAppliesFilter(t *testing.T) {
	b, store, engine := newTestBuilder(t, nil)
	upsert(t, store, `{"id":"1","firstName":"Alice","lastName":"Smith"}`)
	upsert(t, store, `{"id":"2","firstName":"Bob","lastName":"Jones"}`)

	v := b.Build(time.Now())
	assert.Len(t, v.Rows, 2)
	assert.Equal(t, 2, v.TotalAgents)

	engine.ToggleName("Alice Smith", true)
	v = b.Build(time.Now())
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "Alice Smith", v.Rows[0][types.FieldName])
	assert.Equal(t, 2, v.TotalAgents)
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, v.Names, "names cover every agent, not just visible rows")
	assert.Equal(t, types.PhaseLiveStreaming, v.Status.Phase)
}

func TestBuildNamesChangedOnlyOnSetChange(t *testing.T) {
	b, store, _ := newTestBuilder(t, nil)
	upsert(t, store, `{"id":"1","firstName":"Alice","lastName":"Smith","currentState":"Ready"}`)

	assert.True(t, b.Build(time.Now()).NamesChanged)
	assert.False(t, b.Build(time.Now()).NamesChanged)

	upsert(t, store, `{"id":"1","firstName":"Alice","lastName":"Smith","currentState":"Busy"}`)
	assert.False(t, b.Build(time.Now()).NamesChanged, "a state change keeps the name set")

	upsert(t, store, `{"id":"2","firstName":"Bob","lastName":"Jones"}`)
	assert.True(t, b.Build(time.Now()).NamesChanged)
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, b.Names())
}

func TestBuildVisibleColumns(t *testing.T) {
	b, _, engine := newTestBuilder(t, nil)
	engine.SetColumnVisible("reason", false)

	v := b.Build(time.Now())

	assert.Len(t, v.VisibleColumns, len(v.Columns)-1)
	assert.Equal(t, v, b.Current())
}

func TestViewJSONMarksHiddenColumns(t *testing.T) {
	b, _, engine := newTestBuilder(t, nil)
	require.True(t, engine.SetColumnVisible("reason", false))

	data, err := json.Marshal(b.Build(time.Now()))
	require.NoError(t, err)

	var decoded struct {
		Columns []struct {
			Name    string `json:"name"`
			Visible *bool  `json:"visible"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotEmpty(t, decoded.Columns)
	for _, c := range decoded.Columns {
		require.NotNil(t, c.Visible, c.Name)
		assert.Equal(t, c.Name != "reason", *c.Visible, c.Name)
	}
}

func tickEvents(t *testing.T, transport types.Source) float64 {
	t.Helper()
	families, err := metrics.Get().Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "portalwatch_view_tick_events_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "transport" && label.GetValue() == string(transport) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPublishRecordsTickChanges(t *testing.T) {
	b, _, _ := newTestBuilder(t, &captureHub{})
	wsBefore := tickEvents(t, types.SourceWebSocket)
	sseBefore := tickEvents(t, types.SourceSSE)

	b.changes.Add(types.AgentChangedEvent{Source: types.SourceWebSocket, Agent: types.AgentState{ID: "1"}})
	b.changes.Add(types.AgentChangedEvent{Source: types.SourceWebSocket, Agent: types.AgentState{ID: "1"}})
	b.changes.Add(types.AgentChangedEvent{Source: types.SourceSSE, Agent: types.AgentState{ID: "2"}})
	b.publish(time.Now())

	assert.Zero(t, b.changes.Pending())
	assert.Equal(t, 2.0, tickEvents(t, types.SourceWebSocket)-wsBefore)
	assert.Equal(t, 1.0, tickEvents(t, types.SourceSSE)-sseBefore)
}

func TestStartBroadcastsOnTickAndPrefChange(t *testing.T) {
	hub := &captureHub{}
	b, store, engine := newTestBuilder(t, hub)
	b.interval = time.Hour
	upsert(t, store, `{"id":"1","firstName":"Alice","lastName":"Smith"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	engine.ToggleName("Alice Smith", true)

	require.Eventually(t, func() bool { return hub.count() >= 1 }, time.Second, 5*time.Millisecond)

	var v View
	require.NoError(t, json.Unmarshal(hub.last(), &v))
	assert.Equal(t, "view", v.Type)
	assert.Equal(t, []string{"Alice Smith"}, v.SelectedNames)
	require.Len(t, v.Rows, 1)
}
