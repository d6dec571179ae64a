package models

import "time"

// SignalKind classifies a single engineer update.
type SignalKind string

const (
	SignalInfo               SignalKind = "info"
	SignalWarning            SignalKind = "warning"
	SignalRootCauseCandidate SignalKind = "root_cause_candidate"
	SignalBlocker            SignalKind = "blocker"
	SignalResolution         SignalKind = "resolution"
	SignalRequestHelp        SignalKind = "request_help"
)

// ValidSignalKind reports whether k is one of the known signal kinds.
func ValidSignalKind(k SignalKind) bool {
	switch k {
	case SignalInfo, SignalWarning, SignalRootCauseCandidate,
		SignalBlocker, SignalResolution, SignalRequestHelp:
		return true
	}
	return false
}

// Finding is the structured record derived from one engineer update.
// Immutable once created, never deleted.
type Finding struct {
	ID         string            `json:"id"`
	IncidentID string            `json:"incident_id"`
	Thread     string            `json:"thread"`
	Engineer   string            `json:"engineer"`
	RawText    string            `json:"raw_text"`
	Signal     SignalKind        `json:"signal_type"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Priority ranks messages and actions.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// ParsePriority maps free text to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s)
	}
	return PriorityNormal
}

// Message is one entry in a thread's conversation log.
type Message struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Thread     string    `json:"thread"`
	Sender     string    `json:"sender"`
	SenderType string    `json:"sender_type"`
	Content    string    `json:"content"`
	Priority   Priority  `json:"priority"`
	Critical   bool      `json:"is_critical"`
	Mentions   []string  `json:"mentions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sender type tags used across the engine.
const (
	SenderTypeEngineer  = "engineer"
	SenderTypeAgent     = "agent"
	SenderTypeCommander = "commander"
)
