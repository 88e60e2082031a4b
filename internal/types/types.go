package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Source identifies which push transport delivered a payload
type Source string

const (
	// SourceWebSocket is transport A: framed multi-message envelopes
	SourceWebSocket Source = "websocket"
	// SourceSSE is transport B: server-sent event messages
	SourceSSE Source = "sse"
)

// Known source keys of an agent record
const (
	FieldID             = "id"
	FieldFirstName      = "firstName"
	FieldLastName       = "lastName"
	FieldName           = "name"
	FieldCurrentState   = "currentState"
	FieldReason         = "reason"
	FieldReporting      = "reporting"
	FieldAvailableState = "availableState"
	FieldEnteredStateOn = "enteredStateOn"
	FieldLastLoginTime  = "lastLoginTime"
	FieldLastLogoffTime = "lastLogoffTime"
)

// Derived row fields, recomputed on every view tick and never persisted
const (
	FieldTimeInStatus            = "time_in_status"
	FieldFormattedEnteredStateOn = "formatted_enteredStateOn"
	FieldFormattedLastLoginTime  = "formatted_lastLoginTime"
	FieldFormattedLastLogoffTime = "formatted_lastLogoffTime"
)

// AgentState is the latest full record known for one agent.
//
// Only the keys the core reads are typed. Every other source key (the "today"
// counters, durations and percentages) is kept verbatim in Extra so the record
// round-trips without loss.
type AgentState struct {
	ID             string
	FirstName      string
	LastName       string
	Name           string // FirstName + " " + LastName, set by the store
	CurrentState   string
	Reason         string
	Reporting      string
	AvailableState string
	EnteredStateOn string
	LastLoginTime  string
	LastLogoffTime string
	Extra          map[string]json.RawMessage
}

// AgentChangedEvent is one normalized "agent state changed" notification
type AgentChangedEvent struct {
	Source Source
	Agent  AgentState
}

// Row is one presentation row keyed by column field
type Row map[string]any

// UnmarshalJSON decodes a raw agent record. A record without an id, or
// without string firstName and lastName, is rejected.
func (a *AgentState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("agent record is null")
	}

	id, ok := raw[FieldID]
	if !ok {
		return fmt.Errorf("agent record has no %q", FieldID)
	}
	idText, err := scalarText(id)
	if err != nil || idText == "" {
		return fmt.Errorf("agent record has invalid %q", FieldID)
	}

	out := AgentState{ID: idText}
	for _, key := range []string{FieldFirstName, FieldLastName} {
		v := bytes.TrimSpace(raw[key])
		var s string
		if len(v) == 0 || v[0] != '"' || json.Unmarshal(v, &s) != nil {
			return fmt.Errorf("agent record has no string %q", key)
		}
	}
	known := map[string]*string{
		FieldFirstName:      &out.FirstName,
		FieldLastName:       &out.LastName,
		FieldCurrentState:   &out.CurrentState,
		FieldReason:         &out.Reason,
		FieldReporting:      &out.Reporting,
		FieldAvailableState: &out.AvailableState,
		FieldEnteredStateOn: &out.EnteredStateOn,
		FieldLastLoginTime:  &out.LastLoginTime,
		FieldLastLogoffTime: &out.LastLogoffTime,
	}

	for key, value := range raw {
		if key == FieldID || key == FieldName {
			continue
		}
		if dst, ok := known[key]; ok {
			// Non-scalar values for a known key are treated as absent
			text, _ := scalarText(value)
			*dst = text
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[key] = append(json.RawMessage(nil), value...)
	}

	*a = out
	return nil
}

// MarshalJSON encodes the record back to its source shape plus the derived name
func (a AgentState) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+11)
	for k, v := range a.Extra {
		m[k] = v
	}
	m[FieldID] = a.ID
	m[FieldFirstName] = a.FirstName
	m[FieldLastName] = a.LastName
	m[FieldName] = a.Name
	m[FieldCurrentState] = a.CurrentState
	m[FieldReason] = a.Reason
	m[FieldReporting] = a.Reporting
	m[FieldAvailableState] = a.AvailableState
	m[FieldEnteredStateOn] = a.EnteredStateOn
	m[FieldLastLoginTime] = a.LastLoginTime
	m[FieldLastLogoffTime] = a.LastLogoffTime
	return json.Marshal(m)
}

// Field returns the value of a source key as a presentation value
func (a AgentState) Field(key string) (any, bool) {
	switch key {
	case FieldID:
		return a.ID, true
	case FieldFirstName:
		return a.FirstName, true
	case FieldLastName:
		return a.LastName, true
	case FieldName:
		return a.Name, true
	case FieldCurrentState:
		return a.CurrentState, true
	case FieldReason:
		return a.Reason, true
	case FieldReporting:
		return a.Reporting, true
	case FieldAvailableState:
		return a.AvailableState, true
	case FieldEnteredStateOn:
		return a.EnteredStateOn, true
	case FieldLastLoginTime:
		return a.LastLoginTime, true
	case FieldLastLogoffTime:
		return a.LastLogoffTime, true
	}
	v, ok := a.Extra[key]
	return v, ok
}

// scalarText renders a JSON string, number or bool as text. null yields "".
func scalarText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("not a scalar")
	}
	if bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		return string(trimmed), nil
	}
	if _, err := strconv.ParseFloat(string(trimmed), 64); err != nil {
		return "", err
	}
	return string(trimmed), nil
}

// SessionPhase is a state of the session orchestrator
type SessionPhase string

const (
	PhaseIdle                SessionPhase = "idle"
	PhaseAwaitingCredentials SessionPhase = "awaiting_credentials"
	PhaseAuthenticating      SessionPhase = "authenticating"
	PhaseLoginFailed         SessionPhase = "login_failed"
	PhaseLiveStreaming       SessionPhase = "live_streaming"
	PhaseShuttingDown        SessionPhase = "shutting_down"
)

// SessionStatus is what the presentation layer shows about the session.
// Message is the login-status line and is empty when nominal; Progress is
// the loading label.
type SessionStatus struct {
	Phase    SessionPhase `json:"phase"`
	Message  string       `json:"message"`
	Progress string       `json:"progress"`
}
