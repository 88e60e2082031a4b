package prefs

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
	"github.com/rs/zerolog"
)

// Persister writes preferences somewhere that survives a restart
type Persister interface {
	SaveColumns(columns []Column) error
	SaveSelectedNames(names []string) error
}

// Engine owns the column layout and the agent-name filter. Every mutation is
// persisted before the call returns and signals Changes.
type Engine struct {
	columns  []Column
	selected []string // insertion order, unique
	store    Persister
	changes  chan struct{}
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NameOption is one entry of the filter name list
type NameOption struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// NewEngine creates an Engine from already-loaded preferences
func NewEngine(columns []Column, selected []string, store Persister, logger zerolog.Logger) *Engine {
	if columns == nil {
		columns = DefaultColumns()
	}
	return &Engine{
		columns:  append([]Column(nil), columns...),
		selected: dedupe(selected),
		store:    store,
		changes:  make(chan struct{}, 1),
		logger:   logger.With().Str("component", "prefs").Logger(),
	}
}

// Load reads both preference files from fs and builds an Engine. Load never
// fails: unreadable or invalid files fall back to defaults and are logged.
func Load(fs *FileStore, logger zerolog.Logger) *Engine {
	columns, err := fs.LoadColumns()
	if err != nil {
		logger.Warn().
			Err(err).
			Bool("rejected", errors.Is(err, ErrInvalidColumns)).
			Msg("using default column layout")
	}

	selected, err := fs.LoadSelectedNames()
	if err != nil {
		logger.Warn().Err(err).Msg("using empty name filter")
		selected = nil
	}

	logger.Info().
		Int("columns", len(columns)).
		Int("selected_names", len(selected)).
		Msg("preferences loaded")

	return NewEngine(columns, selected, fs, logger)
}

// Changes is signalled (coalesced) after every preference mutation
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

func (e *Engine) notify() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

// ToggleName adds name to or removes it from the filter set
func (e *Engine) ToggleName(name string, included bool) {
	e.mu.Lock()
	idx := indexOf(e.selected, name)
	switch {
	case included && idx < 0:
		e.selected = append(e.selected, name)
	case !included && idx >= 0:
		e.selected = append(e.selected[:idx:idx], e.selected[idx+1:]...)
	}
	e.saveNamesLocked()
	e.mu.Unlock()

	e.logger.Debug().Str("name", name).Bool("included", included).Msg("name filter toggled")
	e.notify()
}

// ClearFilter empties the filter set, showing every agent
func (e *Engine) ClearFilter() {
	e.mu.Lock()
	e.selected = nil
	e.saveNamesLocked()
	e.mu.Unlock()

	e.logger.Debug().Msg("name filter cleared")
	e.notify()
}

// SelectedNames returns the filter set in selection order
func (e *Engine) SelectedNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string{}, e.selected...)
}

// FilterRows applies the row selection rule: with an empty filter every
// record is visible, otherwise only records whose name is selected. Input
// order is preserved.
func (e *Engine) FilterRows(records []types.AgentState) []types.AgentState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.selected) == 0 {
		return records
	}
	set := make(map[string]bool, len(e.selected))
	for _, n := range e.selected {
		set[n] = true
	}
	out := make([]types.AgentState, 0, len(records))
	for _, r := range records {
		if set[r.Name] {
			out = append(out, r)
		}
	}
	return out
}

// NameOptions returns the names containing query (case-insensitive), sorted,
// each flagged with its filter membership
func (e *Engine) NameOptions(names []string, query string) []NameOption {
	e.mu.RLock()
	defer e.mu.RUnlock()

	q := strings.ToLower(query)
	out := make([]NameOption, 0, len(names))
	for _, n := range names {
		if q != "" && !strings.Contains(strings.ToLower(n), q) {
			continue
		}
		out = append(out, NameOption{Name: n, Selected: indexOf(e.selected, n) >= 0})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MoveColumn swaps the column at index with its neighbour in direction.
// Out-of-range moves are ignored and reported as false.
func (e *Engine) MoveColumn(index, direction int) bool {
	e.mu.Lock()
	target := index + direction
	if index < 0 || index >= len(e.columns) || target < 0 || target >= len(e.columns) || target == index {
		e.mu.Unlock()
		return false
	}
	e.columns[index], e.columns[target] = e.columns[target], e.columns[index]
	e.saveColumnsLocked()
	e.mu.Unlock()

	e.logger.Debug().Int("from", index).Int("to", target).Msg("column moved")
	e.notify()
	return true
}

// SetColumnVisible shows or hides the named column. Unknown names are
// reported as false.
func (e *Engine) SetColumnVisible(name string, visible bool) bool {
	e.mu.Lock()
	found := false
	for i := range e.columns {
		if e.columns[i].Name == name {
			e.columns[i].setVisible(visible)
			found = true
			break
		}
	}
	if found {
		e.saveColumnsLocked()
	}
	e.mu.Unlock()

	if !found {
		return false
	}
	e.logger.Debug().Str("column", name).Bool("visible", visible).Msg("column visibility changed")
	e.notify()
	return true
}

// SetAllColumnsVisible applies visibility to every column and persists once
func (e *Engine) SetAllColumnsVisible(visible bool) {
	e.mu.Lock()
	for i := range e.columns {
		e.columns[i].setVisible(visible)
	}
	e.saveColumnsLocked()
	e.mu.Unlock()

	e.logger.Debug().Bool("visible", visible).Msg("all columns visibility changed")
	e.notify()
}

// Columns returns every column in display order
func (e *Engine) Columns() []Column {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Column(nil), e.columns...)
}

// VisibleColumns returns the shown columns in display order
func (e *Engine) VisibleColumns() []Column {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Column, 0, len(e.columns))
	for _, c := range e.columns {
		if c.Visible() {
			out = append(out, c)
		}
	}
	return out
}

// Flush writes both preference documents
func (e *Engine) Flush() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return errors.Join(
		e.store.SaveColumns(e.columns),
		e.store.SaveSelectedNames(e.selected),
	)
}

func (e *Engine) saveColumnsLocked() {
	if err := e.store.SaveColumns(e.columns); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist column config")
	}
}

func (e *Engine) saveNamesLocked() {
	if err := e.store.SaveSelectedNames(e.selected); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist selected names")
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
