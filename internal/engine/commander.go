package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warstack/warroom-engine/internal/metrics"
	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/oracle"
	"github.com/warstack/warroom-engine/internal/store"
)

// Commander runs the strategic analysis cycle: it reads the whole situation,
// asks the oracle for direction (or runs a collaboration when team findings
// conflict), and applies the result in a fixed order. Oracle failures degrade
// to a deterministic assessment; store failures surface to the caller.
type Commander struct {
	logger     *slog.Logger
	oracle     oracle.Client
	store      store.Store
	policy     Policy
	hypotheses *HypothesisManager
	ledger     *Ledger
	escalation *EscalationGate
	collab     *CollabCoordinator
}

// NewCommander wires the commander around its collaborators.
func NewCommander(logger *slog.Logger, client oracle.Client, st store.Store, policy Policy) *Commander {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = oracle.Disabled{}
	}
	return &Commander{
		logger:     logger,
		oracle:     client,
		store:      st,
		policy:     policy,
		hypotheses: NewHypothesisManager(logger),
		ledger:     NewLedger(logger, st, policy),
		escalation: NewEscalationGate(logger, st),
		collab:     NewCollabCoordinator(logger, client, st, policy),
	}
}

// Ledger exposes the commander's action ledger for direct status updates.
func (c *Commander) Ledger() *Ledger { return c.ledger }

// Escalation exposes the commander's escalation gate for manual escalations.
func (c *Commander) Escalation() *EscalationGate { return c.escalation }

// RunCycle executes one full analysis cycle for the incident and persists the
// mutated incident. The returned assessment is never nil on a nil error.
func (c *Commander) RunCycle(ctx context.Context, incidentID string, now time.Time) (*models.Assessment, error) {
	inc, err := c.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	findings, err := c.store.GetFindings(ctx, inc.ID, "")
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}
	if len(findings) > recentFindingsWindow {
		findings = findings[len(findings)-recentFindingsWindow:]
	}
	byTeam := make(map[string][]models.Finding)
	for _, f := range findings {
		if f.Thread == models.SummaryThread {
			continue
		}
		byTeam[f.Thread] = append(byTeam[f.Thread], f)
	}

	var assessment *models.Assessment
	if teams, reason := c.collab.ShouldTrigger(ctx, inc, byTeam); len(teams) >= 2 {
		consensus, err := c.collab.Conduct(ctx, inc, teams, reason, byTeam, now)
		if err != nil {
			return nil, err
		}
		assessment = c.assessFromConsensus(inc, consensus, teams, now)
	} else {
		assessment = c.assessSituation(ctx, inc, byTeam)
	}

	if err := c.apply(ctx, inc, assessment, now); err != nil {
		return nil, err
	}
	if err := c.broadcast(ctx, inc, assessment, now); err != nil {
		return nil, err
	}
	if err := c.store.UpdateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}
	return assessment, nil
}

// assessSituation asks the oracle for a full strategic assessment, degrading
// to the deterministic fallback on any oracle failure.
func (c *Commander) assessSituation(ctx context.Context, inc *models.Incident, byTeam map[string][]models.Finding) *models.Assessment {
	prompt := buildAssessmentPrompt(inc, byTeam, inc.Threads)
	reply, err := c.oracle.Complete(ctx, prompt, 0.3, 1500)
	if err != nil {
		metrics.ObserveOracleCall("assessment", metrics.OutcomeError)
		c.logger.Warn("strategic assessment degraded",
			slog.String("incident_id", inc.ID), slog.Any("error", err))
		return degradedAssessment(inc, byTeam)
	}
	var assessment models.Assessment
	if err := oracle.Decode(reply, &assessment); err != nil {
		metrics.ObserveOracleCall("assessment", metrics.OutcomeError)
		c.logger.Warn("strategic assessment reply rejected",
			slog.String("incident_id", inc.ID), slog.Any("error", err))
		return degradedAssessment(inc, byTeam)
	}
	metrics.ObserveOracleCall("assessment", metrics.OutcomeSuccess)
	return &assessment
}

// assessFromConsensus wraps a collaboration outcome as the cycle's assessment.
// The consensus hypothesis is carried through so apply writes it back past the
// confidence gate.
func (c *Commander) assessFromConsensus(inc *models.Incident, consensus *models.Consensus, teams []string, now time.Time) *models.Assessment {
	if consensus == nil {
		return &models.Assessment{
			Collaborated: true,
			Summary: fmt.Sprintf("Collaboration between %s ended without consensus; teams continue on their own tracks.",
				strings.Join(teams, ", ")),
		}
	}
	c.hypotheses.ApplyConsensus(inc, consensus, now)
	return &models.Assessment{
		Collaborated: true,
		Summary: fmt.Sprintf("Teams %s reached %s consensus: %s",
			strings.Join(teams, ", "), consensus.Type, consensus.Hypothesis),
	}
}

// degradedAssessment is the deterministic fallback built from incident state
// alone. It never proposes hypothesis, action, or escalation changes.
func degradedAssessment(inc *models.Incident, byTeam map[string][]models.Finding) *models.Assessment {
	blockers := make([]string, 0, maxBlockersInFallback)
	for _, thread := range inc.Threads {
		ts := inc.Team(thread)
		if ts == nil || ts.Status != models.TeamBlocked {
			continue
		}
		reason := ts.BlockedReason
		if reason == "" {
			reason = "no reason recorded"
		}
		blockers = append(blockers, fmt.Sprintf("%s: %s", thread, reason))
		if len(blockers) == maxBlockersInFallback {
			break
		}
	}

	candidates := 0
	total := 0
	for _, findings := range byTeam {
		total += len(findings)
		for _, f := range findings {
			if f.Signal == models.SignalRootCauseCandidate {
				candidates++
			}
		}
	}

	return &models.Assessment{
		Blockers: blockers,
		Summary: fmt.Sprintf("Automated analysis unavailable; continuing current investigations. %d recent findings across %d teams, %d root cause candidates, %d blocked teams.",
			total, len(byTeam), candidates, len(blockers)),
		Degraded: true,
	}
}

// apply writes the assessment into incident state in a fixed order: hypothesis
// first, then actions, then coordination, then escalation. Degraded
// assessments carry no proposals so the loop bodies never run for them.
func (c *Commander) apply(ctx context.Context, inc *models.Incident, a *models.Assessment, now time.Time) error {
	if a.Hypothesis != nil {
		c.hypotheses.Propose(inc, *a.Hypothesis, CommanderName, now)
	}

	for _, proposal := range a.NewActions {
		if _, _, err := c.ledger.Propose(ctx, inc, proposal, now); err != nil {
			return err
		}
	}

	for _, req := range a.Coordination {
		if err := c.coordinate(ctx, inc, req, now); err != nil {
			return err
		}
	}

	if a.Escalation.Escalate {
		if _, err := c.escalation.Escalate(ctx, inc, a.Escalation.EscalateTo, a.Escalation.Reason, now); err != nil {
			return err
		}
	}
	return nil
}

// coordinate links one team to another: records the dependency on the source
// team's state, notifies both threads, and logs a timeline event.
func (c *Commander) coordinate(ctx context.Context, inc *models.Incident, req models.CoordinationRequest, now time.Time) error {
	if req.SourceTeam == "" || req.TargetTeam == "" || req.SourceTeam == req.TargetTeam {
		return nil
	}
	if ts := inc.Team(req.SourceTeam); ts != nil {
		if !containsString(ts.NeedsHelpFrom, req.TargetTeam) {
			ts.NeedsHelpFrom = append(ts.NeedsHelpFrom, req.TargetTeam)
		}
	}

	toTarget := newMessage(inc.ID, req.TargetTeam, CommanderName, models.SenderTypeCommander,
		fmt.Sprintf("COORDINATION REQUEST\n\nThe %s team needs your help: %s",
			strings.ToUpper(req.SourceTeam), req.Request),
		models.PriorityHigh, true, []string{req.SourceTeam}, now)
	if err := c.store.AddMessage(ctx, toTarget); err != nil {
		return fmt.Errorf("post coordination request: %w", err)
	}
	toSource := newMessage(inc.ID, req.SourceTeam, CommanderName, models.SenderTypeCommander,
		fmt.Sprintf("The %s team has been asked to help you: %s",
			strings.ToUpper(req.TargetTeam), req.Request),
		models.PriorityNormal, false, []string{req.TargetTeam}, now)
	if err := c.store.AddMessage(ctx, toSource); err != nil {
		return fmt.Errorf("post coordination notice: %w", err)
	}

	inc.AppendEvent(newTimelineEvent("team_coordination",
		fmt.Sprintf("Coordination: %s needs help from %s", strings.ToUpper(req.SourceTeam), strings.ToUpper(req.TargetTeam)),
		req.SourceTeam, "normal", map[string]string{"target_team": req.TargetTeam}, now))
	return nil
}

// broadcast records the cycle in the timeline and posts the composite summary
// to the war room thread.
func (c *Commander) broadcast(ctx context.Context, inc *models.Incident, a *models.Assessment, now time.Time) error {
	severity := "normal"
	if a.Degraded {
		severity = "low"
	}
	inc.AppendEvent(newTimelineEvent("strategic_analysis", a.Summary, "", severity, nil, now))

	var b strings.Builder
	b.WriteString("STRATEGIC ANALYSIS\n\n")
	b.WriteString(a.Summary)
	if inc.Hypothesis != nil {
		fmt.Fprintf(&b, "\n\nCurrent hypothesis (v%d, %.0f%% confidence): %s",
			inc.Hypothesis.Version, inc.Hypothesis.Confidence*100, inc.Hypothesis.RootCause)
	}
	if len(a.Blockers) > 0 {
		b.WriteString("\n\nCritical blockers:")
		for _, blocker := range a.Blockers {
			fmt.Fprintf(&b, "\n  - %s", blocker)
		}
	}
	if len(a.NewActions) > 0 {
		fmt.Fprintf(&b, "\n\n%d new actions assigned.", len(a.NewActions))
	}

	priority := models.PriorityHigh
	if a.Degraded {
		priority = models.PriorityNormal
	}
	msg := newMessage(inc.ID, models.SummaryThread, CommanderName, models.SenderTypeCommander,
		b.String(), priority, !a.Degraded, nil, now)
	if err := c.store.AddMessage(ctx, msg); err != nil {
		return fmt.Errorf("broadcast analysis: %w", err)
	}
	return nil
}
