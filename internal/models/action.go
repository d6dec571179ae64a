package models

import "time"

// ActionStatus tracks the lifecycle of an assigned task.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionBlocked    ActionStatus = "blocked"
)

// ParseActionStatus validates free text against the known statuses.
func ParseActionStatus(s string) (ActionStatus, bool) {
	switch ActionStatus(s) {
	case ActionPending, ActionInProgress, ActionCompleted, ActionBlocked:
		return ActionStatus(s), true
	}
	return "", false
}

// Action is a task assigned to a team. CompletedAt is stamped only on the
// transition to completed.
type Action struct {
	ID          string       `json:"id"`
	AssignedTo  string       `json:"assigned_to"`
	Description string       `json:"description"`
	Priority    Priority     `json:"priority"`
	Status      ActionStatus `json:"status"`
	Reasoning   string       `json:"reasoning,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}
