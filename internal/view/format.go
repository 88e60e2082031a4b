package view

import (
	"fmt"
	"time"
)

const (
	// ElapsedUnknown is shown when the state entry time is missing or invalid
	ElapsedUnknown = "--:--:--"
	// TimestampUnknown is shown for a missing or invalid timestamp
	TimestampUnknown = "--"
	// DisplayLayout renders timestamps as DD/MM/YYYY HH:MM:SS
	DisplayLayout = "02/01/2006 15:04:05"
)

// Layouts carrying an explicit offset
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

// Layouts without an offset, read as local time
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601-like timestamp. Fractional seconds are
// accepted wherever seconds are present.
func ParseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatElapsed renders the whole seconds between entered and now as
// HH:MM:SS. Hours are not wrapped at 24. Entry times in the future render as
// zero.
func FormatElapsed(entered string, now time.Time) string {
	start, ok := ParseTimestamp(entered)
	if !ok {
		return ElapsedUnknown
	}
	seconds := int64(now.Sub(start) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

// FormatTimestamp renders raw in DisplayLayout, keeping its own offset
func FormatTimestamp(raw string) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return TimestampUnknown
	}
	return t.Format(DisplayLayout)
}
