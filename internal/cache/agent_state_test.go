package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, raw string) types.AgentState {
	t.Helper()
	var a types.AgentState
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	return a
}

func TestUpsertComputesName(t *testing.T) {
	s := NewAgentStore()

	require.True(t, s.Upsert(record(t, `{"id":"1","firstName":"Alice","lastName":"Smith"}`)))

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", got.Name)
}

func TestUpsertReplacesWholeRecord(t *testing.T) {
	s := NewAgentStore()

	s.Upsert(record(t, `{"id":"1","firstName":"Alice","lastName":"Smith","reason":"Lunch","callsToday":4}`))
	s.Upsert(record(t, `{"id":"1","firstName":"Alice","lastName":"Smith","currentState":"Ready"}`))

	got, _ := s.Get("1")
	assert.Equal(t, "Ready", got.CurrentState)
	assert.Empty(t, got.Reason, "fields absent from the newer record are dropped")
	_, ok := got.Field("callsToday")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Count())
}

func TestUpsertRejectsMissingID(t *testing.T) {
	s := NewAgentStore()

	assert.False(t, s.Upsert(types.AgentState{FirstName: "Nobody"}))
	assert.Equal(t, 0, s.Count())
}

func TestGetAllFirstSeenOrder(t *testing.T) {
	s := NewAgentStore()
	for _, id := range []string{"c", "a", "b", "a", "c"} {
		s.Upsert(types.AgentState{ID: id})
	}

	var ids []string
	for _, r := range s.GetAll() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestNameWithEmptyParts(t *testing.T) {
	s := NewAgentStore()
	s.Upsert(types.AgentState{ID: "1", FirstName: "Cher"})

	got, _ := s.Get("1")
	assert.Equal(t, "Cher ", got.Name)
}

func TestConcurrentReadsDuringUpserts(t *testing.T) {
	s := NewAgentStore()
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Upsert(types.AgentState{ID: fmt.Sprint(i % 50)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.GetAll()
		}
	}()
	wg.Wait()

	assert.Equal(t, 50, s.Count())
}

func TestChangeLogDrain(t *testing.T) {
	l := NewChangeLog()
	l.Add(types.AgentChangedEvent{Source: types.SourceWebSocket, Agent: types.AgentState{ID: "1"}})
	l.Add(types.AgentChangedEvent{Source: types.SourceWebSocket, Agent: types.AgentState{ID: "2"}})
	l.Add(types.AgentChangedEvent{Source: types.SourceSSE, Agent: types.AgentState{ID: "1"}})

	assert.Equal(t, 3, l.Pending())
	c := l.Drain()
	assert.Equal(t, 3, c.Events)
	assert.Equal(t, 2, c.Agents)
	assert.Equal(t, map[types.Source]int{types.SourceWebSocket: 2, types.SourceSSE: 1}, c.ByTransport)

	assert.Equal(t, 0, l.Pending())
	assert.Equal(t, Changes{ByTransport: map[types.Source]int{}}, l.Drain())
}
