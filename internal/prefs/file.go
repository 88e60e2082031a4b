package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/google/renameio/v2"
)

// ErrInvalidColumns is returned when a persisted column file is rejected
var ErrInvalidColumns = errors.New("invalid column config")

// FileStore persists preferences as two flat JSON documents
type FileStore struct {
	columnsPath string
	namesPath   string
}

// NewFileStore creates a FileStore writing columnsFile and namesFile in dir
func NewFileStore(dir, columnsFile, namesFile string) *FileStore {
	return &FileStore{
		columnsPath: filepath.Join(dir, columnsFile),
		namesPath:   filepath.Join(dir, namesFile),
	}
}

// LoadColumns reads the persisted column layout. A missing file yields the
// defaults with no error; a file that is not a list of objects each carrying
// a unique string "name" is rejected as a whole and also yields the defaults,
// together with an error wrapping ErrInvalidColumns.
func (s *FileStore) LoadColumns() ([]Column, error) {
	data, err := os.ReadFile(s.columnsPath)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultColumns(), nil
	}
	if err != nil {
		return DefaultColumns(), fmt.Errorf("failed to read %s: %w", s.columnsPath, err)
	}

	columns, err := parseColumns(data)
	if err != nil {
		return DefaultColumns(), fmt.Errorf("%w: %s: %v", ErrInvalidColumns, s.columnsPath, err)
	}
	return columns, nil
}

func parseColumns(data []byte) ([]Column, error) {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, errors.New("not a list")
	}

	defaults := make(map[string]Column)
	for _, c := range DefaultColumns() {
		defaults[c.Name] = c
	}

	seen := make(map[string]bool, len(entries))
	columns := make([]Column, 0, len(entries))
	for i, entry := range entries {
		if entry == nil {
			return nil, fmt.Errorf("entry %d is not an object", i)
		}
		rawName, ok := entry["name"]
		if !ok {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		var name string
		if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
			return nil, fmt.Errorf("entry %d has an invalid name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true

		c := Column{Name: name}
		optionalString(entry, "label", &c.Label)
		optionalString(entry, "field", &c.Field)
		optionalString(entry, "classes", &c.Classes)
		optionalString(entry, "headerClasses", &c.HeaderClasses)

		// Fill descriptor gaps from the built-in column of the same name
		if def, ok := defaults[name]; ok {
			if c.Label == "" {
				c.Label = def.Label
			}
			if c.Field == "" {
				c.Field = def.Field
			}
		}
		if c.Field == "" {
			c.Field = name
		}
		if c.Label == "" {
			c.Label = name
		}
		columns = append(columns, c)
	}
	return columns, nil
}

func optionalString(entry map[string]json.RawMessage, key string, dst *string) {
	if raw, ok := entry[key]; ok {
		_ = json.Unmarshal(raw, dst)
	}
}

// SaveColumns atomically writes the column layout
func (s *FileStore) SaveColumns(columns []Column) error {
	stored := make([]storedColumn, len(columns))
	for i, c := range columns {
		stored[i] = storedColumn(c)
	}
	return s.write(s.columnsPath, stored)
}

// LoadSelectedNames reads the persisted name filter. Duplicates are dropped,
// keeping first occurrence order. A missing file is an empty filter.
func (s *FileStore) LoadSelectedNames() ([]string, error) {
	data, err := os.ReadFile(s.namesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.namesPath, err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.namesPath, err)
	}
	return dedupe(names), nil
}

// SaveSelectedNames atomically writes the name filter
func (s *FileStore) SaveSelectedNames(names []string) error {
	if names == nil {
		names = []string{}
	}
	return s.write(s.namesPath, dedupe(names))
}

func (s *FileStore) write(path string, v any) error {
	data, err := json.Marshal(v)
	if err == nil {
		err = renameio.WriteFile(path, data, 0o644)
	}
	metrics.Get().RecordPrefWrite(filepath.Base(path), err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
