package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/store"
)

// actionDedupPrefixLen is the number of description characters (lowercased)
// that, together with the team, form an action's dedup key.
const actionDedupPrefixLen = 60

// ProposalResult reports the fate of a single action proposal.
type ProposalResult string

const (
	ProposalAccepted  ProposalResult = "accepted"
	ProposalDuplicate ProposalResult = "duplicate"
	ProposalCapped    ProposalResult = "capped"
)

// Ledger creates, deduplicates, and caps the actionable tasks assigned to
// teams. Duplicates and over-cap proposals are expected steady state, not
// faults: they are dropped silently.
type Ledger struct {
	logger *slog.Logger
	store  store.Store
	policy Policy
}

// NewLedger constructs an action ledger.
func NewLedger(logger *slog.Logger, st store.Store, policy Policy) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{logger: logger, store: st, policy: policy}
}

func actionDedupKey(team, description string) string {
	desc := strings.ToLower(description)
	if len(desc) > actionDedupPrefixLen {
		desc = desc[:actionDedupPrefixLen]
	}
	return strings.ToLower(team) + "|" + desc
}

// Propose validates one proposal against the dedup and cap invariants and,
// when accepted, creates the action, attaches it to the team, records a
// timeline event, and posts one message to the team's thread. Proposals are
// processed in caller order, so earlier proposals in a batch win ties against
// the cap. The returned error reports store failures only.
func (l *Ledger) Propose(ctx context.Context, inc *models.Incident, p models.ActionProposal, now time.Time) (*models.Action, ProposalResult, error) {
	if p.Team == "" || p.Description == "" {
		return nil, ProposalDuplicate, nil
	}

	key := actionDedupKey(p.Team, p.Description)
	active := 0
	for _, a := range inc.Actions {
		if a.Status == models.ActionCompleted {
			continue
		}
		active++
		if actionDedupKey(a.AssignedTo, a.Description) == key {
			l.logger.Debug("duplicate action proposal dropped",
				slog.String("incident_id", inc.ID), slog.String("team", p.Team))
			return nil, ProposalDuplicate, nil
		}
	}
	if active >= l.policy.MaxActiveActions {
		l.logger.Debug("action proposal dropped at capacity",
			slog.String("incident_id", inc.ID), slog.String("team", p.Team),
			slog.Int("active", active))
		return nil, ProposalCapped, nil
	}

	action := &models.Action{
		ID:          uuid.NewString(),
		AssignedTo:  p.Team,
		Description: p.Description,
		Priority:    models.ParsePriority(p.Priority),
		Status:      models.ActionPending,
		Reasoning:   p.Reasoning,
		CreatedAt:   now,
	}
	inc.Actions = append(inc.Actions, action)

	if ts := inc.Team(p.Team); ts != nil {
		ts.ActiveTasks = append(ts.ActiveTasks, action.ID)
		if ts.Status == models.TeamStandby {
			ts.Status = models.TeamInvestigating
		}
	}

	severity := "normal"
	if action.Priority != models.PriorityNormal {
		severity = "high"
	}
	inc.AppendEvent(newTimelineEvent("action_assigned",
		fmt.Sprintf("Action assigned to %s: %s", strings.ToUpper(p.Team), p.Description),
		p.Team, severity, nil, now))

	reasoning := p.Reasoning
	if reasoning == "" {
		reasoning = "Investigation needed"
	}
	content := fmt.Sprintf("NEW ACTION [%s]:\n%s\n\nReasoning: %s",
		strings.ToUpper(string(action.Priority)), p.Description, reasoning)
	critical := action.Priority == models.PriorityCritical || action.Priority == models.PriorityHigh
	msg := newMessage(inc.ID, p.Team, CommanderName, models.SenderTypeCommander,
		content, action.Priority, critical, nil, now)
	if err := l.store.AddMessage(ctx, msg); err != nil {
		return action, ProposalAccepted, fmt.Errorf("post action message: %w", err)
	}
	return action, ProposalAccepted, nil
}

// UpdateStatus advances an action's lifecycle. The advance is idempotent:
// re-applying the current status is a no-op. Transitioning to completed
// stamps CompletedAt once and releases the task from the team's active list.
// Non-empty notes are recorded on the action_updated timeline event.
func (l *Ledger) UpdateStatus(inc *models.Incident, actionID string, status models.ActionStatus, notes string, now time.Time) (*models.Action, error) {
	var action *models.Action
	for _, a := range inc.Actions {
		if a.ID == actionID {
			action = a
			break
		}
	}
	if action == nil {
		return nil, store.ErrNotFound
	}
	if action.Status == status {
		return action, nil
	}
	if action.Status == models.ActionCompleted {
		// Completed is terminal.
		return action, nil
	}

	action.Status = status
	if status == models.ActionCompleted {
		stamp := now
		action.CompletedAt = &stamp
		if ts := inc.Team(action.AssignedTo); ts != nil {
			ts.ActiveTasks = removeString(ts.ActiveTasks, action.ID)
		}
	}

	var meta map[string]string
	if notes != "" {
		meta = map[string]string{"notes": notes}
	}
	inc.AppendEvent(newTimelineEvent("action_updated",
		fmt.Sprintf("Action for %s moved to %s: %s", strings.ToUpper(action.AssignedTo), status, action.Description),
		action.AssignedTo, "normal", meta, now))
	return action, nil
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
