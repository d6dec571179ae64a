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

// maxCollabTeams bounds a collaboration to keep the debate focused.
const maxCollabTeams = 3

// CollabCoordinator runs the selective collaboration protocol: a bounded
// four-round debate (positions, critiques, revisions, consensus) between the
// 2-3 teams whose findings overlap or conflict. A team whose oracle call fails
// in any round drops out of that round silently; the protocol aborts only when
// fewer than two positions survive.
type CollabCoordinator struct {
	logger *slog.Logger
	oracle oracle.Client
	store  store.Store
	policy Policy
}

// NewCollabCoordinator constructs a collaboration coordinator.
func NewCollabCoordinator(logger *slog.Logger, client oracle.Client, st store.Store, policy Policy) *CollabCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = oracle.Disabled{}
	}
	return &CollabCoordinator{logger: logger, oracle: client, store: st, policy: policy}
}

type collabTriggerReply struct {
	CollaborationNeeded bool     `json:"collaboration_needed"`
	ParticipatingTeams  []string `json:"participating_teams"`
	Reason              string   `json:"reason"`
	ConflictArea        string   `json:"conflict_area"`
}

type teamPosition struct {
	Team       string   `json:"-"`
	Hypothesis string   `json:"hypothesis"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Reasoning  string   `json:"reasoning"`
}

type teamCritique struct {
	Team          string   `json:"-"`
	CritiqueText  string   `json:"critique_text"`
	Agreements    []string `json:"agreements"`
	Disagreements []string `json:"disagreements"`
	Questions     []string `json:"questions"`
}

type teamRevision struct {
	Team              string  `json:"-"`
	ResponseText      string  `json:"response_text"`
	RevisedHypothesis string  `json:"revised_hypothesis"`
	RevisedConfidence float64 `json:"revised_confidence"`
	Changed           bool    `json:"changed"`
	ReasonForChange   string  `json:"reason_for_change"`
}

// ShouldTrigger decides whether a collaboration is warranted and which teams
// participate. Eligibility is deterministic (at least two non-summary teams
// with enough findings); team selection is delegated to the oracle. Any oracle
// failure means no collaboration this cycle.
func (c *CollabCoordinator) ShouldTrigger(ctx context.Context, inc *models.Incident, byTeam map[string][]models.Finding) ([]string, string) {
	eligible := make([]string, 0, len(inc.Threads))
	for _, thread := range inc.Threads {
		if thread == models.SummaryThread {
			continue
		}
		if len(byTeam[thread]) >= c.policy.CollabMinFindings {
			eligible = append(eligible, thread)
		}
	}
	if len(eligible) < 2 {
		return nil, ""
	}

	reply, err := c.oracle.Complete(ctx, buildCollabTriggerPrompt(inc, byTeam, eligible), 0.3, 400)
	if err != nil {
		metrics.ObserveOracleCall("collab_trigger", metrics.OutcomeError)
		c.logger.Debug("collaboration trigger check degraded", slog.Any("error", err))
		return nil, ""
	}
	var decoded collabTriggerReply
	if err := oracle.Decode(reply, &decoded); err != nil {
		metrics.ObserveOracleCall("collab_trigger", metrics.OutcomeError)
		c.logger.Debug("collaboration trigger reply rejected", slog.Any("error", err))
		return nil, ""
	}
	metrics.ObserveOracleCall("collab_trigger", metrics.OutcomeSuccess)

	if !decoded.CollaborationNeeded {
		return nil, ""
	}
	teams := make([]string, 0, maxCollabTeams)
	for _, t := range decoded.ParticipatingTeams {
		if containsString(eligible, t) && !containsString(teams, t) {
			teams = append(teams, t)
		}
		if len(teams) == maxCollabTeams {
			break
		}
	}
	if len(teams) < 2 {
		return nil, ""
	}
	return teams, decoded.Reason
}

// Conduct runs the four rounds between the selected teams and attaches the
// session to the incident. Each round posts one message per team to that
// team's own thread; the start announcement and the consensus are broadcast
// once to the summary thread. The returned consensus is nil when the protocol
// could not complete; the error reports store failures only.
func (c *CollabCoordinator) Conduct(ctx context.Context, inc *models.Incident, teams []string, reason string, byTeam map[string][]models.Finding, now time.Time) (*models.Consensus, error) {
	session := &models.CollaborationSession{
		IncidentID: inc.ID,
		Teams:      teams,
		StartedAt:  now,
	}
	inc.Collaboration = session

	inc.AppendEvent(newTimelineEvent("collaboration_started",
		fmt.Sprintf("Collaboration started between %s: %s", strings.ToUpper(strings.Join(teams, ", ")), reason),
		"", "high", nil, now))
	announce := newMessage(inc.ID, models.SummaryThread, CommanderName, models.SenderTypeCommander,
		fmt.Sprintf("TEAM COLLABORATION INITIATED\n\nTeams: %s\nReason: %s\n\nTeams will debate their findings and converge on a shared hypothesis.",
			strings.ToUpper(strings.Join(teams, ", ")), reason),
		models.PriorityHigh, true, nil, now)
	if err := c.store.AddMessage(ctx, announce); err != nil {
		return nil, fmt.Errorf("announce collaboration: %w", err)
	}

	positions, err := c.positionsRound(ctx, inc, session, teams, byTeam, now)
	if err != nil {
		return nil, err
	}
	if len(positions) < 2 {
		c.logger.Warn("collaboration aborted, not enough positions",
			slog.String("incident_id", inc.ID), slog.Int("positions", len(positions)))
		metrics.ObserveCollaboration(metrics.OutcomeDegraded)
		return nil, nil
	}

	critiques, err := c.critiquesRound(ctx, inc, session, positions, now)
	if err != nil {
		return nil, err
	}
	revisions, err := c.revisionsRound(ctx, inc, session, positions, critiques, now)
	if err != nil {
		return nil, err
	}
	return c.consensusRound(ctx, inc, session, positions, revisions, now)
}

func (c *CollabCoordinator) positionsRound(ctx context.Context, inc *models.Incident, session *models.CollaborationSession, teams []string, byTeam map[string][]models.Finding, now time.Time) ([]teamPosition, error) {
	positions := make([]teamPosition, 0, len(teams))
	for _, team := range teams {
		reply, err := c.oracle.Complete(ctx, buildPositionPrompt(inc, team, byTeam[team]), 0.4, 500)
		if err != nil {
			metrics.ObserveOracleCall("collab_position", metrics.OutcomeError)
			c.logger.Debug("position round dropped team", slog.String("team", team), slog.Any("error", err))
			continue
		}
		var p teamPosition
		if err := oracle.Decode(reply, &p); err != nil {
			metrics.ObserveOracleCall("collab_position", metrics.OutcomeError)
			c.logger.Debug("position reply rejected", slog.String("team", team), slog.Any("error", err))
			continue
		}
		metrics.ObserveOracleCall("collab_position", metrics.OutcomeSuccess)
		p.Team = team
		positions = append(positions, p)

		session.Dialogue = append(session.Dialogue, models.DialogueEntry{
			Team:       team,
			Kind:       models.DialoguePosition,
			Content:    p.Hypothesis,
			Confidence: p.Confidence,
			CreatedAt:  now,
		})
		content := fmt.Sprintf("POSITION [%s]:\n%s\n\nConfidence: %.0f%%\nReasoning: %s",
			strings.ToUpper(team), p.Hypothesis, p.Confidence*100, p.Reasoning)
		msg := newMessage(inc.ID, team, AgentName(team), models.SenderTypeAgent,
			content, models.PriorityHigh, false, nil, now)
		if err := c.store.AddMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("post position: %w", err)
		}
	}
	return positions, nil
}

func (c *CollabCoordinator) critiquesRound(ctx context.Context, inc *models.Incident, session *models.CollaborationSession, positions []teamPosition, now time.Time) ([]teamCritique, error) {
	critiques := make([]teamCritique, 0, len(positions))
	for i, own := range positions {
		others := make([]teamPosition, 0, len(positions)-1)
		for j, p := range positions {
			if j != i {
				others = append(others, p)
			}
		}

		reply, err := c.oracle.Complete(ctx, buildCritiquePrompt(own, others), 0.3, 400)
		if err != nil {
			metrics.ObserveOracleCall("collab_critique", metrics.OutcomeError)
			c.logger.Debug("critique round dropped team", slog.String("team", own.Team), slog.Any("error", err))
			continue
		}
		var cr teamCritique
		if err := oracle.Decode(reply, &cr); err != nil {
			metrics.ObserveOracleCall("collab_critique", metrics.OutcomeError)
			c.logger.Debug("critique reply rejected", slog.String("team", own.Team), slog.Any("error", err))
			continue
		}
		metrics.ObserveOracleCall("collab_critique", metrics.OutcomeSuccess)
		cr.Team = own.Team
		critiques = append(critiques, cr)

		session.Dialogue = append(session.Dialogue, models.DialogueEntry{
			Team:      own.Team,
			Kind:      models.DialogueCritique,
			Content:   cr.CritiqueText,
			CreatedAt: now,
		})
		msg := newMessage(inc.ID, own.Team, AgentName(own.Team), models.SenderTypeAgent,
			fmt.Sprintf("CRITIQUE [%s]:\n%s", strings.ToUpper(own.Team), cr.CritiqueText),
			models.PriorityNormal, false, nil, now)
		if err := c.store.AddMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("post critique: %w", err)
		}
	}
	return critiques, nil
}

func (c *CollabCoordinator) revisionsRound(ctx context.Context, inc *models.Incident, session *models.CollaborationSession, positions []teamPosition, critiques []teamCritique, now time.Time) ([]teamRevision, error) {
	revisions := make([]teamRevision, 0, len(positions))
	for _, position := range positions {
		received := make([]teamCritique, 0, len(critiques))
		for _, cr := range critiques {
			if cr.Team != position.Team {
				received = append(received, cr)
			}
		}
		if len(received) == 0 {
			continue
		}

		reply, err := c.oracle.Complete(ctx, buildRevisionPrompt(position, received), 0.3, 500)
		if err != nil {
			metrics.ObserveOracleCall("collab_revision", metrics.OutcomeError)
			c.logger.Debug("revision round dropped team", slog.String("team", position.Team), slog.Any("error", err))
			continue
		}
		var rev teamRevision
		if err := oracle.Decode(reply, &rev); err != nil {
			metrics.ObserveOracleCall("collab_revision", metrics.OutcomeError)
			c.logger.Debug("revision reply rejected", slog.String("team", position.Team), slog.Any("error", err))
			continue
		}
		metrics.ObserveOracleCall("collab_revision", metrics.OutcomeSuccess)
		rev.Team = position.Team
		revisions = append(revisions, rev)

		session.Dialogue = append(session.Dialogue, models.DialogueEntry{
			Team:       position.Team,
			Kind:       models.DialogueResponse,
			Content:    rev.ResponseText,
			Confidence: rev.RevisedConfidence,
			CreatedAt:  now,
		})
		revised := "Position maintained"
		if rev.Changed {
			revised = "Position revised: " + rev.RevisedHypothesis
		}
		msg := newMessage(inc.ID, position.Team, AgentName(position.Team), models.SenderTypeAgent,
			fmt.Sprintf("RESPONSE [%s]:\n%s\n\n%s", strings.ToUpper(position.Team), rev.ResponseText, revised),
			models.PriorityNormal, false, nil, now)
		if err := c.store.AddMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("post revision: %w", err)
		}
	}
	return revisions, nil
}

func (c *CollabCoordinator) consensusRound(ctx context.Context, inc *models.Incident, session *models.CollaborationSession, positions []teamPosition, revisions []teamRevision, now time.Time) (*models.Consensus, error) {
	reply, err := c.oracle.Complete(ctx, buildConsensusPrompt(positions, revisions), 0.2, 600)
	if err != nil {
		metrics.ObserveOracleCall("collab_consensus", metrics.OutcomeError)
		metrics.ObserveCollaboration(metrics.OutcomeDegraded)
		c.logger.Warn("consensus round failed", slog.String("incident_id", inc.ID), slog.Any("error", err))
		return nil, nil
	}
	var consensus models.Consensus
	if err := oracle.Decode(reply, &consensus); err != nil {
		metrics.ObserveOracleCall("collab_consensus", metrics.OutcomeError)
		metrics.ObserveCollaboration(metrics.OutcomeDegraded)
		c.logger.Warn("consensus reply rejected", slog.String("incident_id", inc.ID), slog.Any("error", err))
		return nil, nil
	}
	metrics.ObserveOracleCall("collab_consensus", metrics.OutcomeSuccess)
	if consensus.Hypothesis == "" {
		metrics.ObserveCollaboration(metrics.OutcomeDegraded)
		return nil, nil
	}

	consensus.ParticipatingTeams = session.Teams
	session.Consensus = &consensus
	session.ConsensusReached = true

	session.Dialogue = append(session.Dialogue, models.DialogueEntry{
		Team:       CommanderName,
		Kind:       models.DialogueConsensus,
		Content:    consensus.Hypothesis,
		Confidence: consensus.Confidence,
		CreatedAt:  now,
	})
	inc.AppendEvent(newTimelineEvent("consensus_reached",
		fmt.Sprintf("Teams reached %s consensus: %s", consensus.Type, consensus.Hypothesis),
		"", "high", map[string]string{"consensus_type": string(consensus.Type)}, now))

	msg := newMessage(inc.ID, models.SummaryThread, CommanderName, models.SenderTypeCommander,
		fmt.Sprintf("CONSENSUS REACHED (%s)\n\nHypothesis: %s\nConfidence: %.0f%%\nSupporting teams: %s\n\n%s",
			strings.ToUpper(string(consensus.Type)), consensus.Hypothesis, consensus.Confidence*100,
			strings.Join(consensus.SupportingTeams, ", "), consensus.Reasoning),
		models.PriorityCritical, true, nil, now)
	if err := c.store.AddMessage(ctx, msg); err != nil {
		return &consensus, fmt.Errorf("announce consensus: %w", err)
	}

	metrics.ObserveCollaboration(metrics.OutcomeSuccess)
	c.logger.Info("collaboration reached consensus",
		slog.String("incident_id", inc.ID),
		slog.String("consensus_type", string(consensus.Type)))
	return &consensus, nil
}
