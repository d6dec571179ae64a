package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/store"
)

// EscalationGate performs the one-way transition that activates an external
// escalation channel. Only the vendor target mutates thread topology; other
// targets are recorded in the timeline as an extension point.
type EscalationGate struct {
	logger *slog.Logger
	store  store.Store
}

// NewEscalationGate constructs an escalation gate.
func NewEscalationGate(logger *slog.Logger, st store.Store) *EscalationGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscalationGate{logger: logger, store: st}
}

// Escalate applies one escalation recommendation. Re-escalating to an
// already-active target is a no-op. Returns whether state changed; the error
// reports store failures only.
func (g *EscalationGate) Escalate(ctx context.Context, inc *models.Incident, target, reason string, now time.Time) (bool, error) {
	if reason == "" {
		reason = "Unknown"
	}

	if target != models.VendorThread {
		inc.AppendEvent(newTimelineEvent("escalation",
			fmt.Sprintf("Escalation to %s recorded: %s", target, reason),
			"", "high", map[string]string{"target": target}, now))
		return true, nil
	}

	if inc.EscalatedToVendor {
		return false, nil
	}
	inc.EscalatedToVendor = true

	if !inc.HasThread(models.VendorThread) {
		inc.Threads = insertBefore(inc.Threads, models.VendorThread, models.SummaryThread)
		if inc.TeamStates == nil {
			inc.TeamStates = make(map[string]*models.TeamState)
		}
		if inc.Team(models.VendorThread) == nil {
			inc.TeamStates[models.VendorThread] = &models.TeamState{
				Name:       models.VendorThread,
				Status:     models.TeamInvestigating,
				LastUpdate: now,
			}
		}
	}

	inc.AppendEvent(newTimelineEvent("escalation",
		fmt.Sprintf("Escalated to VENDOR: %s", reason),
		"", "critical", nil, now))

	msg := newMessage(inc.ID, models.SummaryThread, CommanderName, models.SenderTypeCommander,
		fmt.Sprintf("ESCALATION TO VENDOR\n\nReason: %s\n\nVendor team activated.", reason),
		models.PriorityCritical, true, nil, now)
	if err := g.store.AddMessage(ctx, msg); err != nil {
		return true, fmt.Errorf("broadcast escalation: %w", err)
	}
	g.logger.Info("incident escalated to vendor", slog.String("incident_id", inc.ID))
	return true, nil
}

// insertBefore inserts value immediately before marker, or appends when the
// marker is absent.
func insertBefore(values []string, value, marker string) []string {
	for i, v := range values {
		if v == marker {
			out := make([]string, 0, len(values)+1)
			out = append(out, values[:i]...)
			out = append(out, value)
			out = append(out, values[i:]...)
			return out
		}
	}
	return append(values, value)
}
