package prefs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(dir, "column_config.json", "selected_names.json"), dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadColumnsMissingFileYieldsDefaults(t *testing.T) {
	fs, _ := newTestStore(t)

	columns, err := fs.LoadColumns()

	require.NoError(t, err)
	assert.Equal(t, DefaultColumns(), columns)
}

func TestLoadColumnsRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"entry without name", `[{"name":"name","label":"Name"},{"label":"State"}]`},
		{"empty name", `[{"name":""}]`},
		{"non-string name", `[{"name":5}]`},
		{"not a list", `{"name":"name"}`},
		{"null document", `null`},
		{"non-object entry", `[{"name":"name"}, 3]`},
		{"null entry", `[{"name":"name"}, null]`},
		{"duplicate names", `[{"name":"name"},{"name":"name"}]`},
		{"corrupt json", `[{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, dir := newTestStore(t)
			writeFile(t, dir, "column_config.json", tt.content)

			columns, err := fs.LoadColumns()

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidColumns))
			assert.Equal(t, DefaultColumns(), columns)
		})
	}
}

func TestLoadColumnsAcceptsEmptyList(t *testing.T) {
	fs, dir := newTestStore(t)
	writeFile(t, dir, "column_config.json", `[]`)

	columns, err := fs.LoadColumns()

	require.NoError(t, err)
	assert.Empty(t, columns)
}

func TestLoadColumnsFillsDescriptorGaps(t *testing.T) {
	fs, dir := newTestStore(t)
	writeFile(t, dir, "column_config.json", `[
		{"name":"currentState","classes":"hidden","headerClasses":"hidden"},
		{"name":"custom"}
	]`)

	columns, err := fs.LoadColumns()

	require.NoError(t, err)
	require.Len(t, columns, 2)
	def := defaultByName(t, "currentState")
	assert.Equal(t, def.Label, columns[0].Label)
	assert.Equal(t, "currentState", columns[0].Field)
	assert.False(t, columns[0].Visible())
	assert.Equal(t, Column{Name: "custom", Label: "custom", Field: "custom"}, columns[1])
}

func TestSaveColumnsRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)
	columns := DefaultColumns()
	columns[0], columns[1] = columns[1], columns[0]
	columns[2].setVisible(false)

	require.NoError(t, fs.SaveColumns(columns))
	loaded, err := fs.LoadColumns()

	require.NoError(t, err)
	assert.Equal(t, columns, loaded)
}

func TestSaveColumnsKeepsFileShape(t *testing.T) {
	fs, dir := newTestStore(t)
	columns := []Column{col("reason", "Reason")}
	columns[0].setVisible(false)

	require.NoError(t, fs.SaveColumns(columns))
	data, err := os.ReadFile(filepath.Join(dir, "column_config.json"))

	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"reason","label":"Reason","field":"reason","classes":"hidden","headerClasses":"hidden"}]`, string(data))
}

func TestColumnJSONCarriesVisible(t *testing.T) {
	hidden := col("reason", "Reason")
	hidden.setVisible(false)

	data, err := json.Marshal([]Column{col("name", "Name"), hidden})

	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"name","label":"Name","field":"name","classes":"","headerClasses":"","visible":true},
		{"name":"reason","label":"Reason","field":"reason","classes":"hidden","headerClasses":"hidden","visible":false}
	]`, string(data))
}

func TestSelectedNamesRoundTrip(t *testing.T) {
	fs, dir := newTestStore(t)

	names, err := fs.LoadSelectedNames()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, fs.SaveSelectedNames([]string{"Bob Jones", "Alice Smith", "Bob Jones"}))
	names, err = fs.LoadSelectedNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob Jones", "Alice Smith"}, names)

	require.NoError(t, fs.SaveSelectedNames(nil))
	data, err := os.ReadFile(filepath.Join(dir, "selected_names.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestLoadSelectedNamesCorrupt(t *testing.T) {
	fs, dir := newTestStore(t)
	writeFile(t, dir, "selected_names.json", `{"not":"a list"}`)

	_, err := fs.LoadSelectedNames()

	assert.Error(t, err)
}

func defaultByName(t *testing.T, name string) Column {
	t.Helper()
	for _, c := range DefaultColumns() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no default column %q", name)
	return Column{}
}
