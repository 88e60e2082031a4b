package prefs

import (
	"encoding/json"

	"github.com/dennisdiepolder/monti/portalwatch/internal/types"
)

// HiddenClass marks a hidden column in the persisted classes fields
const HiddenClass = "hidden"

// Column describes one table column. Position in the column list is display
// order. Empty Classes and HeaderClasses mean visible.
type Column struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	Field         string `json:"field"`
	Classes       string `json:"classes"`
	HeaderClasses string `json:"headerClasses"`
}

// Visible reports whether the column is shown
func (c Column) Visible() bool {
	return c.Classes == ""
}

// MarshalJSON adds the derived visible flag for clients. The persisted file
// uses storedColumn and never carries it.
func (c Column) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		storedColumn
		Visible bool `json:"visible"`
	}{storedColumn(c), c.Visible()})
}

// storedColumn is the on-disk column shape
type storedColumn struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	Field         string `json:"field"`
	Classes       string `json:"classes"`
	HeaderClasses string `json:"headerClasses"`
}

func (c *Column) setVisible(visible bool) {
	if visible {
		c.Classes = ""
		c.HeaderClasses = ""
		return
	}
	c.Classes = HiddenClass
	c.HeaderClasses = HiddenClass
}

func col(name, label string) Column {
	return Column{Name: name, Label: label, Field: name}
}

// DefaultColumns returns the built-in column layout, all visible
func DefaultColumns() []Column {
	return []Column{
		col(types.FieldName, "Name"),
		col(types.FieldReporting, "Extension"),
		col(types.FieldCurrentState, "Current State"),
		col(types.FieldFormattedEnteredStateOn, "Entered State On"),
		col(types.FieldTimeInStatus, "Time in Status"),
		col(types.FieldReason, "Reason"),
		col("acdConversationsToday", "ACD Conversations Today"),
		col("nonAcdConversationsToday", "Non-ACD Conversations Today"),
		col("occupiedDurationToday", "Occupied Duration"),
		col("acdDurationToday", "ACD Duration"),
		col("doNotDisturbDurationToday", "DND Duration"),
		col("holdAcdDurationToday", "Hold ACD Duration"),
		col("holdNonAcdDurationToday", "Hold Non-ACD Duration"),
		col("holdOutboundDurationToday", "Hold Outbound Duration"),
		col("makeBusyDurationToday", "Make Busy Duration"),
		col("nonAcdDurationToday", "Non-ACD Duration"),
		col("outboundDurationToday", "Outbound Duration"),
		col("workTimerDurationToday", "Work Timer Duration"),
		col("averageAnsweredDurationToday", "Avg Answered Duration"),
		col("loggedInDurationToday", "Logged In Duration"),
		col(types.FieldFormattedLastLoginTime, "Last Login"),
		col(types.FieldFormattedLastLogoffTime, "Last Logoff"),
		col("loggedInNotPresentDurationToday", "Logged In Not Present Duration"),
		col("externalAnswerDurationToday", "External Answer Duration"),
		col("averageTime", "Average Time"),
		col("totalAcdDuration", "Total ACD Duration"),
		col("totalNonAcdDuration", "Total Non-ACD Duration"),
		col("unavailablePercentToday", "Unavailable %"),
		col("outboundConversationsToday", "Outbound Conversations"),
		col("externalOutboundConversationsToday", "External Outbound Conversations"),
		col("externalInboundConversationsToday", "External Inbound Conversations"),
		col(types.FieldAvailableState, "Available State"),
	}
}
