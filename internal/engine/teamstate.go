package engine

import (
	"time"

	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/utils"
)

// blockedReasonLimit bounds the text copied into TeamState.BlockedReason.
const blockedReasonLimit = 160

// ApplyClassification mutates the team state for one classified update.
// Deterministic: counts the finding, records the engineer once, stamps the
// update time, and advances status per the signal kind. RESOLVED is terminal.
func ApplyClassification(ts *models.TeamState, engineer, text string, cl Classification, now time.Time) {
	ts.FindingsCount++
	ts.LastUpdate = now
	if engineer != "" && !containsString(ts.Engineers, engineer) {
		ts.Engineers = append(ts.Engineers, engineer)
	}

	if ts.Status == models.TeamResolved {
		return
	}

	switch {
	case cl.Kind == models.SignalBlocker:
		ts.Status = models.TeamBlocked
		ts.BlockedReason = utils.Truncate(text, blockedReasonLimit)
	case cl.Kind == models.SignalRootCauseCandidate:
		ts.Status = models.TeamFoundIssue
	case ts.Status == models.TeamStandby:
		ts.Status = models.TeamInvestigating
	}
}

// ShouldWake decides whether a classified update warrants a commander cycle.
// Beyond explicit triggers and escalation-grade signals, every reviewEvery-th
// finding wakes the commander so the coordination loop revisits each team
// even absent escalation signals.
func ShouldWake(ts *models.TeamState, cl Classification, reviewEvery int) bool {
	if cl.Trigger {
		return true
	}
	if cl.Kind == models.SignalRootCauseCandidate || cl.Kind == models.SignalBlocker {
		return true
	}
	if reviewEvery < 1 {
		reviewEvery = 1
	}
	return ts.FindingsCount%reviewEvery == 0
}

// ForceResolve marks every team RESOLVED. Called on incident resolution;
// RESOLVED is terminal.
func ForceResolve(inc *models.Incident, now time.Time) {
	for _, ts := range inc.TeamStates {
		ts.Status = models.TeamResolved
		ts.LastUpdate = now
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
