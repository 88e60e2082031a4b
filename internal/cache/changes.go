package cache

import (
	"sync"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
)

// Changes summarises the events applied between two view ticks
type Changes struct {
	Events      int
	Agents      int // distinct agent ids
	ByTransport map[types.Source]int
}

// ChangeLog collects applied events until the view builder drains it
type ChangeLog struct {
	mu          sync.Mutex
	events      int
	agents      map[string]struct{}
	byTransport map[types.Source]int
}

// NewChangeLog creates an empty change log
func NewChangeLog() *ChangeLog {
	return &ChangeLog{
		agents:      make(map[string]struct{}),
		byTransport: make(map[types.Source]int),
	}
}

// Add records one applied event
func (l *ChangeLog) Add(event types.AgentChangedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events++
	l.agents[event.Agent.ID] = struct{}{}
	l.byTransport[event.Source]++
}

// Drain returns the summary since the previous Drain and resets the log
func (l *ChangeLog) Drain() Changes {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := Changes{
		Events:      l.events,
		Agents:      len(l.agents),
		ByTransport: l.byTransport,
	}
	l.events = 0
	l.agents = make(map[string]struct{})
	l.byTransport = make(map[types.Source]int)
	return c
}

// Pending returns how many events were recorded since the last Drain
func (l *ChangeLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}
