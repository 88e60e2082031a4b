package wallboard

import (
	"encoding/json"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dennisdiepolder/monti/portalwatch/internal/prefs"
	"github.com/dennisdiepolder/monti/portalwatch/internal/view"
)

const (
	minColumnWidth = 6
	maxColumnWidth = 28
)

func tableStyles(noColor bool) table.Styles {
	styles := table.DefaultStyles()
	if noColor {
		return styles
	}
	styles.Header = styles.Header.
		Foreground(lipgloss.Color("252")).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229"))
	return styles
}

// columnsFor sizes each visible column to fit its label and widest cell
func columnsFor(v *view.View) []table.Column {
	out := make([]table.Column, 0, len(v.VisibleColumns))
	for _, c := range v.VisibleColumns {
		width := lipgloss.Width(c.Label)
		for _, row := range v.Rows {
			if w := lipgloss.Width(cellText(row[c.Field])); w > width {
				width = w
			}
		}
		out = append(out, table.Column{Title: c.Label, Width: clamp(width, minColumnWidth, maxColumnWidth)})
	}
	return out
}

// rowsFor renders the view rows in visible column order
func rowsFor(v *view.View) []table.Row {
	rows := make([]table.Row, 0, len(v.Rows))
	for _, r := range v.Rows {
		rows = append(rows, rowCells(v.VisibleColumns, r))
	}
	return rows
}

func rowCells(columns []prefs.Column, row map[string]any) table.Row {
	cells := make(table.Row, 0, len(columns))
	for _, c := range columns {
		cells = append(cells, cellText(row[c.Field]))
	}
	return cells
}

// cellText renders a decoded JSON value for display
func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
