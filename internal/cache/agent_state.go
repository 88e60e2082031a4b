package cache

import (
	"sync"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
)

// AgentStore maintains the latest full record of every agent seen.
//
// The unit of mutation is the whole record: an upsert replaces every field of
// the previous record for that id. Entries are never removed while the
// process runs.
type AgentStore struct {
	agents map[string]types.AgentState // agentID -> latest record
	order  []string                    // agentIDs in first-seen order
	mu     sync.RWMutex
}

// NewAgentStore creates an empty agent store
func NewAgentStore() *AgentStore {
	return &AgentStore{
		agents: make(map[string]types.AgentState),
	}
}

// Upsert stores record as the current state of its agent, computing its
// display name. Records without an id are ignored and reported as false.
func (s *AgentStore) Upsert(record types.AgentState) bool {
	if record.ID == "" {
		return false
	}
	record.Name = record.FirstName + " " + record.LastName

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[record.ID]; !exists {
		s.order = append(s.order, record.ID)
	}
	s.agents[record.ID] = record
	return true
}

// Get returns the current record for an agent
func (s *AgentStore) Get(agentID string) (types.AgentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.agents[agentID]
	return record, ok
}

// GetAll returns a snapshot of every record in first-seen order
func (s *AgentStore) GetAll() []types.AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]types.AgentState, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.agents[id])
	}
	return records
}

// Count returns the total number of tracked agents
func (s *AgentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}
