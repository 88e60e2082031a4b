package view

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/cache"
	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/prefs"
	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
)

// timestampFields maps each raw timestamp key to its display field
var timestampFields = [...]struct{ raw, display string }{
	{types.FieldEnteredStateOn, types.FieldFormattedEnteredStateOn},
	{types.FieldLastLoginTime, types.FieldFormattedLastLoginTime},
	{types.FieldLastLogoffTime, types.FieldFormattedLastLogoffTime},
}

// View is the snapshot handed to the presentation layer every tick
type View struct {
	Type           string              `json:"type"` // always "view"
	Timestamp      time.Time           `json:"timestamp"`
	Rows           []types.Row         `json:"rows"`
	Columns        []prefs.Column      `json:"columns"`
	VisibleColumns []prefs.Column      `json:"visibleColumns"`
	Names          []string            `json:"names"`
	NamesChanged   bool                `json:"namesChanged"`
	SelectedNames  []string            `json:"selectedNames"`
	TotalAgents    int                 `json:"totalAgents"`
	Status         types.SessionStatus `json:"status"`
}

// StatusSource reports the current session status
type StatusSource interface {
	Status() types.SessionStatus
}

// Broadcaster fans a serialized view out to presentation clients
type Broadcaster interface {
	Broadcast(message []byte)
}

// Builder recomputes the derived view from the agent store and preferences
type Builder struct {
	store    *cache.AgentStore
	changes  *cache.ChangeLog
	prefs    *prefs.Engine
	status   StatusSource
	hub      Broadcaster
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.RWMutex
	names   map[string]struct{} // last published name set
	current View
}

// NewBuilder creates a new Builder. changes, status and hub may be nil.
func NewBuilder(store *cache.AgentStore, changes *cache.ChangeLog, engine *prefs.Engine, status StatusSource, hub Broadcaster, interval time.Duration, logger zerolog.Logger) *Builder {
	return &Builder{
		store:    store,
		changes:  changes,
		prefs:    engine,
		status:   status,
		hub:      hub,
		interval: interval,
		logger:   logger.With().Str("component", "view").Logger(),
		names:    make(map[string]struct{}),
	}
}

// Start rebuilds and broadcasts the view on every tick and after every
// preference change. Rebuilds never overlap.
func (b *Builder) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info().Dur("interval", b.interval).Msg("view builder started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("view builder stopped")
			return

		case now := <-ticker.C:
			b.publish(now)

		case <-b.prefs.Changes():
			b.publish(time.Now())
		}
	}
}

func (b *Builder) publish(now time.Time) {
	var changes cache.Changes
	if b.changes != nil {
		changes = b.changes.Drain()
	}
	byTransport := make(map[string]int, len(changes.ByTransport))
	for source, n := range changes.ByTransport {
		byTransport[string(source)] = n
	}
	metrics.Get().RecordTickChanges(changes.Agents, byTransport)

	v := b.Build(now)
	if b.hub == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal view")
		return
	}
	b.hub.Broadcast(data)

	b.logger.Debug().
		Int("events_applied", changes.Events).
		Int("agents_changed", changes.Agents).
		Int("websocket_events", changes.ByTransport[types.SourceWebSocket]).
		Int("sse_events", changes.ByTransport[types.SourceSSE]).
		Int("agents", v.TotalAgents).
		Int("rows", len(v.Rows)).
		Bool("names_changed", v.NamesChanged).
		Msg("view broadcasted")
}

// Build recomputes every derived field as of now and stores the result as
// the current view
func (b *Builder) Build(now time.Time) View {
	start := time.Now()
	records := b.store.GetAll()

	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.Name] = struct{}{}
	}

	visible := b.prefs.FilterRows(records)
	rows := make([]types.Row, 0, len(visible))
	for _, r := range visible {
		rows = append(rows, BuildRow(r, now))
	}

	v := View{
		Type:           "view",
		Timestamp:      now,
		Rows:           rows,
		Columns:        b.prefs.Columns(),
		VisibleColumns: b.prefs.VisibleColumns(),
		Names:          sortedNames(set),
		SelectedNames:  b.prefs.SelectedNames(),
		TotalAgents:    len(records),
	}
	if b.status != nil {
		v.Status = b.status.Status()
	}

	b.mu.Lock()
	v.NamesChanged = !sameSet(b.names, set)
	if v.NamesChanged {
		b.names = set
	}
	b.current = v
	b.mu.Unlock()

	metrics.Get().RecordViewBuild(time.Since(start), v.NamesChanged)
	if v.NamesChanged {
		b.logger.Debug().Int("names", len(v.Names)).Msg("agent name set changed")
	}
	return v
}

// Current returns the most recently built view
func (b *Builder) Current() View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Names returns the last published distinct agent names, sorted
func (b *Builder) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedNames(b.names)
}

// BuildRow flattens a record into a presentation row with its derived fields
func BuildRow(r types.AgentState, now time.Time) types.Row {
	row := make(types.Row, len(r.Extra)+15)
	for k, v := range r.Extra {
		row[k] = v
	}
	for _, key := range []string{
		types.FieldID, types.FieldFirstName, types.FieldLastName, types.FieldName,
		types.FieldCurrentState, types.FieldReason, types.FieldReporting,
		types.FieldAvailableState, types.FieldEnteredStateOn,
		types.FieldLastLoginTime, types.FieldLastLogoffTime,
	} {
		row[key], _ = r.Field(key)
	}

	row[types.FieldTimeInStatus] = FormatElapsed(r.EnteredStateOn, now)
	for _, f := range timestampFields {
		raw, _ := r.Field(f.raw)
		row[f.display] = FormatTimestamp(raw.(string))
	}
	return row
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
