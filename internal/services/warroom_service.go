// Package services exposes the coordination engine as a transport-agnostic
// facade. Handlers translate wire requests into these calls; all invariants
// stay in the engine.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/warstack/warroom-engine/internal/engine"
	"github.com/warstack/warroom-engine/internal/metrics"
	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/store"
	"github.com/warstack/warroom-engine/internal/utils"
)

// ErrInvalidArgument marks caller mistakes so transports can map them to 4xx.
var ErrInvalidArgument = errors.New("invalid argument")

// WarRoomService orchestrates incidents end to end: war-room creation,
// engineer input processing, commander cycles, and the read surfaces.
type WarRoomService struct {
	logger     *slog.Logger
	store      store.Store
	classifier *engine.Classifier
	commander  *engine.Commander
	summaries  *engine.SummaryGenerator
	policy     engine.Policy
	latencies  *utils.LatencyTracker
	clock      func() time.Time
}

// NewWarRoomService constructs the service facade.
func NewWarRoomService(logger *slog.Logger, st store.Store, classifier *engine.Classifier, commander *engine.Commander, summaries *engine.SummaryGenerator, policy engine.Policy) *WarRoomService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarRoomService{
		logger:     logger,
		store:      st,
		classifier: classifier,
		commander:  commander,
		summaries:  summaries,
		policy:     policy,
		latencies:  utils.NewLatencyTracker(1024),
		clock:      time.Now,
	}
}

// CreateIncidentRequest declares a new incident.
type CreateIncidentRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	AffectedSystem string   `json:"affected_system"`
	Threads        []string `json:"threads,omitempty"`
}

// CreateIncident declares an incident, initialises its war room threads and
// team states, and posts the kickoff broadcast.
func (s *WarRoomService) CreateIncident(ctx context.Context, req CreateIncidentRequest) (*models.Incident, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	severity := models.Severity(strings.ToUpper(req.Severity))
	switch severity {
	case models.SeverityP0, models.SeverityP1, models.SeverityP2, models.SeverityP3, models.SeverityP4:
	case "":
		severity = models.SeverityP2
	default:
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidArgument, req.Severity)
	}

	threads := req.Threads
	if len(threads) == 0 {
		threads = models.DefaultThreads()
	} else if !containsThread(threads, models.SummaryThread) {
		threads = append(append([]string(nil), threads...), models.SummaryThread)
	}

	now := s.clock()
	inc := &models.Incident{
		ID:             "inc-" + uuid.NewString(),
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Severity:       severity,
		AffectedSystem: req.AffectedSystem,
		Status:         models.IncidentDeclared,
		Threads:        threads,
		TeamStates:     make(map[string]*models.TeamState, len(threads)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, thread := range threads {
		if thread == models.SummaryThread {
			continue
		}
		inc.TeamStates[thread] = &models.TeamState{
			Name:       thread,
			Status:     models.TeamStandby,
			LastUpdate: now,
		}
	}
	inc.AppendEvent(models.TimelineEvent{
		ID:          ulid.Make().String(),
		Type:        "incident_declared",
		Description: fmt.Sprintf("%s incident declared: %s", severity, inc.Title),
		Severity:    "critical",
		CreatedAt:   now,
	})

	if err := s.store.CreateIncident(ctx, inc); err != nil {
		return nil, utils.NewAppError("CreateIncident", "persist incident", err)
	}

	kickoff := &models.Message{
		ID:         ulid.Make().String(),
		IncidentID: inc.ID,
		Thread:     models.SummaryThread,
		Sender:     engine.CommanderName,
		SenderType: models.SenderTypeCommander,
		Content: fmt.Sprintf("WAR ROOM OPENED\n\n%s (%s)\nSystem: %s\n\n%s\n\nTeams on standby: %s",
			inc.Title, severity, inc.AffectedSystem, inc.Description,
			strings.Join(teamThreads(threads), ", ")),
		Priority:  models.PriorityCritical,
		Critical:  true,
		CreatedAt: now,
	}
	if err := s.store.AddMessage(ctx, kickoff); err != nil {
		return nil, utils.NewAppError("CreateIncident", "post kickoff", err)
	}
	s.logger.Info("incident declared",
		slog.String("incident_id", inc.ID), slog.String("severity", string(severity)))

	// Best effort: the war room is already durable, so a failed first cycle is
	// logged rather than surfaced.
	if _, err := s.RunAnalysisCycle(ctx, inc.ID); err != nil {
		s.logger.Error("initial analysis cycle failed",
			slog.String("incident_id", inc.ID), slog.Any("error", err))
	}
	if fresh, err := s.store.GetIncident(ctx, inc.ID); err == nil {
		inc = fresh
	}
	return inc, nil
}

// EngineerInputResult reports how one engineer update was handled.
type EngineerInputResult struct {
	Finding        *models.Finding `json:"finding"`
	Acknowledgment string          `json:"acknowledgment"`
	CommanderWoken bool            `json:"commander_woken"`
}

// ProcessEngineerInput ingests one engineer update: classifies it, records the
// finding and team state change, acknowledges in-thread, and wakes the
// commander when the signal warrants it. A degraded oracle never blocks the
// update; only store failures surface.
func (s *WarRoomService) ProcessEngineerInput(ctx context.Context, incidentID, thread, engineerName, text string) (*EngineerInputResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: update text is required", ErrInvalidArgument)
	}
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !inc.HasThread(thread) || thread == models.SummaryThread {
		return nil, fmt.Errorf("%w: no team thread %q", ErrInvalidArgument, thread)
	}
	ts := inc.Team(thread)
	if ts == nil {
		return nil, fmt.Errorf("%w: no team state for %q", ErrInvalidArgument, thread)
	}
	if inc.Status == models.IncidentDeclared {
		inc.Status = models.IncidentInvestigating
	}

	now := s.clock()
	if err := s.store.AddMessage(ctx, &models.Message{
		ID:         ulid.Make().String(),
		IncidentID: inc.ID,
		Thread:     thread,
		Sender:     engineerName,
		SenderType: models.SenderTypeEngineer,
		Content:    text,
		Priority:   models.PriorityNormal,
		CreatedAt:  now,
	}); err != nil {
		return nil, utils.NewAppError("ProcessEngineerInput", "record update", err)
	}

	cl := s.classifier.Classify(ctx, inc, thread, text)
	metrics.ObserveSignal(string(cl.Kind))

	finding := &models.Finding{
		ID:         ulid.Make().String(),
		IncidentID: inc.ID,
		Thread:     thread,
		Engineer:   engineerName,
		RawText:    text,
		Signal:     cl.Kind,
		Confidence: cl.Confidence,
		Entities:   cl.Entities,
		CreatedAt:  now,
	}
	if err := s.store.AddFinding(ctx, finding); err != nil {
		return nil, utils.NewAppError("ProcessEngineerInput", "record finding", err)
	}

	engine.ApplyClassification(ts, engineerName, text, cl, now)
	wake := engine.ShouldWake(ts, cl, s.policy.ReviewEvery)

	ack := s.acknowledgment(thread, cl, wake)
	if err := s.store.AddMessage(ctx, &models.Message{
		ID:         ulid.Make().String(),
		IncidentID: inc.ID,
		Thread:     thread,
		Sender:     engine.AgentName(thread),
		SenderType: models.SenderTypeAgent,
		Content:    ack,
		Priority:   models.PriorityNormal,
		CreatedAt:  now,
	}); err != nil {
		return nil, utils.NewAppError("ProcessEngineerInput", "post acknowledgment", err)
	}

	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, utils.NewAppError("ProcessEngineerInput", "persist incident", err)
	}

	if wake {
		// Best effort: the engineer's update is already durable, so a failed
		// cycle is logged rather than surfaced.
		if _, err := s.RunAnalysisCycle(ctx, inc.ID); err != nil {
			s.logger.Error("commander cycle after wake failed",
				slog.String("incident_id", inc.ID), slog.Any("error", err))
		}
	}

	return &EngineerInputResult{Finding: finding, Acknowledgment: ack, CommanderWoken: wake}, nil
}

func (s *WarRoomService) acknowledgment(thread string, cl engine.Classification, wake bool) string {
	summary := cl.Summary
	if summary == "" {
		summary = "update recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Logged as %s (%.0f%% confidence): %s", cl.Kind, cl.Confidence*100, summary)
	switch cl.Kind {
	case models.SignalBlocker:
		b.WriteString("\nBlocker flagged for the commander.")
	case models.SignalRootCauseCandidate:
		b.WriteString("\nPotential root cause flagged for the commander.")
	}
	if wake {
		b.WriteString("\nStrategic analysis triggered.")
	}
	return b.String()
}

// RunAnalysisCycle runs one commander cycle and records its latency and
// outcome.
func (s *WarRoomService) RunAnalysisCycle(ctx context.Context, incidentID string) (*models.Assessment, error) {
	start := s.clock()
	assessment, err := s.commander.RunCycle(ctx, incidentID, start)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveCycle(duration, metrics.OutcomeError)
		return nil, err
	}
	s.latencies.Observe(duration)
	outcome := metrics.OutcomeSuccess
	if assessment.Degraded {
		outcome = metrics.OutcomeDegraded
	}
	metrics.ObserveCycle(duration, outcome)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis cycle latency",
			slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return assessment, nil
}

// UpdateActionStatus advances one action's lifecycle and persists the result.
// Optional notes travel into the action_updated timeline event.
func (s *WarRoomService) UpdateActionStatus(ctx context.Context, incidentID, actionID, rawStatus, notes string) (*models.Action, error) {
	status, ok := models.ParseActionStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown action status %q", ErrInvalidArgument, rawStatus)
	}
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	action, err := s.commander.Ledger().UpdateStatus(inc, actionID, status, notes, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, utils.NewAppError("UpdateActionStatus", "persist incident", err)
	}
	return action, nil
}

// EscalateIncident applies a manual escalation and persists the result.
func (s *WarRoomService) EscalateIncident(ctx context.Context, incidentID, target, reason string) (*models.Incident, error) {
	if target == "" {
		target = models.VendorThread
	}
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.commander.Escalation().Escalate(ctx, inc, target, reason, s.clock()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, utils.NewAppError("EscalateIncident", "persist incident", err)
	}
	return inc, nil
}

// ResolveIncident closes the incident: every team goes to resolved and the
// resolution is broadcast.
func (s *WarRoomService) ResolveIncident(ctx context.Context, incidentID, resolvedBy, note string) (*models.Incident, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if inc.Status == models.IncidentResolved {
		return inc, nil
	}

	now := s.clock()
	inc.Status = models.IncidentResolved
	inc.UpdatedAt = now
	engine.ForceResolve(inc, now)

	desc := "Incident resolved"
	if note != "" {
		desc = "Incident resolved: " + note
	}
	inc.AppendEvent(models.TimelineEvent{
		ID:          ulid.Make().String(),
		Type:        "incident_resolved",
		Description: desc,
		Severity:    "high",
		CreatedAt:   now,
	})

	if resolvedBy == "" {
		resolvedBy = engine.CommanderName
	}
	if err := s.store.AddMessage(ctx, &models.Message{
		ID:         ulid.Make().String(),
		IncidentID: inc.ID,
		Thread:     models.SummaryThread,
		Sender:     resolvedBy,
		SenderType: models.SenderTypeCommander,
		Content:    fmt.Sprintf("INCIDENT RESOLVED\n\n%s\n\nAll teams stood down. Postmortem to follow.", desc),
		Priority:   models.PriorityCritical,
		Critical:   true,
		CreatedAt:  now,
	}); err != nil {
		return nil, utils.NewAppError("ResolveIncident", "broadcast resolution", err)
	}
	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, utils.NewAppError("ResolveIncident", "persist incident", err)
	}
	s.logger.Info("incident resolved", slog.String("incident_id", inc.ID))
	return inc, nil
}

// ExecutiveSummary returns the stakeholder summary, generating and caching it
// when the hypothesis has moved.
func (s *WarRoomService) ExecutiveSummary(ctx context.Context, incidentID string) (string, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return "", err
	}
	before := inc.ExecSummaryVer
	cached := inc.ExecSummary
	summary := s.summaries.Generate(ctx, inc)
	if summary != cached || inc.ExecSummaryVer != before {
		if err := s.store.UpdateIncident(ctx, inc); err != nil {
			return "", utils.NewAppError("ExecutiveSummary", "persist summary cache", err)
		}
	}
	return summary, nil
}

// IncidentStats is the at-a-glance projection of one war room.
type IncidentStats struct {
	IncidentID        string                       `json:"incident_id"`
	Status            models.IncidentStatus        `json:"status"`
	Severity          models.Severity              `json:"severity"`
	TotalFindings     int                          `json:"total_findings"`
	TotalMessages     int                          `json:"total_messages"`
	ActiveActions     int                          `json:"active_actions"`
	CompletedActions  int                          `json:"completed_actions"`
	TeamStatuses      map[string]models.TeamStatus `json:"team_statuses"`
	HypothesisVersion int                          `json:"hypothesis_version"`
	EscalatedToVendor bool                         `json:"escalated_to_vendor"`
	ConsensusReached  bool                         `json:"consensus_reached"`
	Duration          string                       `json:"duration"`
}

// Stats computes the live statistics for one incident.
func (s *WarRoomService) Stats(ctx context.Context, incidentID string) (*IncidentStats, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	findings, err := s.store.GetFindings(ctx, inc.ID, "")
	if err != nil {
		return nil, utils.NewAppError("Stats", "load findings", err)
	}
	msgs, err := s.store.GetMessages(ctx, inc.ID, "", 0)
	if err != nil {
		return nil, utils.NewAppError("Stats", "load messages", err)
	}

	stats := &IncidentStats{
		IncidentID:        inc.ID,
		Status:            inc.Status,
		Severity:          inc.Severity,
		TotalFindings:     len(findings),
		TotalMessages:     len(msgs),
		ActiveActions:     inc.ActiveActionCount(),
		CompletedActions:  len(inc.Actions) - inc.ActiveActionCount(),
		TeamStatuses:      make(map[string]models.TeamStatus, len(inc.TeamStates)),
		EscalatedToVendor: inc.EscalatedToVendor,
		Duration:          s.clock().Sub(inc.CreatedAt).Round(time.Second).String(),
	}
	for name, ts := range inc.TeamStates {
		stats.TeamStatuses[name] = ts.Status
	}
	if inc.Hypothesis != nil {
		stats.HypothesisVersion = inc.Hypothesis.Version
	}
	if inc.Collaboration != nil {
		stats.ConsensusReached = inc.Collaboration.ConsensusReached
	}
	return stats, nil
}

// GetIncident returns one incident.
func (s *WarRoomService) GetIncident(ctx context.Context, incidentID string) (*models.Incident, error) {
	return s.store.GetIncident(ctx, incidentID)
}

// ListIncidents returns incident summaries, optionally filtered by status.
func (s *WarRoomService) ListIncidents(ctx context.Context, status string) ([]models.IncidentSummary, error) {
	return s.store.ListIncidents(ctx, status)
}

// GetMessages returns thread messages; thread == "" spans all threads.
func (s *WarRoomService) GetMessages(ctx context.Context, incidentID, thread string, limit int) ([]models.Message, error) {
	if _, err := s.store.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.store.GetMessages(ctx, incidentID, thread, limit)
}

// GetFindings returns findings; thread == "" spans all threads.
func (s *WarRoomService) GetFindings(ctx context.Context, incidentID, thread string) ([]models.Finding, error) {
	if _, err := s.store.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.store.GetFindings(ctx, incidentID, thread)
}

// Timeline returns the incident's event history.
func (s *WarRoomService) Timeline(ctx context.Context, incidentID string) ([]models.TimelineEvent, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return inc.Timeline, nil
}

// LatencyP95 returns the current p95 analysis cycle latency.
func (s *WarRoomService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func containsThread(threads []string, target string) bool {
	for _, t := range threads {
		if t == target {
			return true
		}
	}
	return false
}

func teamThreads(threads []string) []string {
	out := make([]string, 0, len(threads))
	for _, t := range threads {
		if t != models.SummaryThread {
			out = append(out, t)
		}
	}
	return out
}
