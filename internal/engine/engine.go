// Package engine implements the incident coordination core: signal
// classification, per-team state, the action ledger, hypothesis management,
// escalation, the strategic commander cycle, and the selective collaboration
// protocol. The package holds every coordination invariant; storage and
// transport stay outside.
package engine

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/warstack/warroom-engine/internal/config"
	"github.com/warstack/warroom-engine/internal/models"
)

// Policy carries the tunable coordination knobs. Values encode backpressure
// policy, not fixed domain law.
type Policy struct {
	ReviewEvery       int
	MaxActiveActions  int
	CollabMinFindings int
}

// DefaultPolicy returns the stock knob values.
func DefaultPolicy() Policy {
	return Policy{
		ReviewEvery:       3,
		MaxActiveActions:  10,
		CollabMinFindings: 3,
	}
}

// PolicyFromConfig maps configured knobs into a Policy, falling back to
// defaults for non-positive values.
func PolicyFromConfig(cfg config.PolicyConfig) Policy {
	p := DefaultPolicy()
	if cfg.ReviewEvery > 0 {
		p.ReviewEvery = cfg.ReviewEvery
	}
	if cfg.MaxActiveActions > 0 {
		p.MaxActiveActions = cfg.MaxActiveActions
	}
	if cfg.CollabMinFindings > 0 {
		p.CollabMinFindings = cfg.CollabMinFindings
	}
	return p
}

// CommanderName identifies the coordination engine in messages and
// hypothesis attribution.
const CommanderName = "Strategic Commander"

// ConsensusName attributes hypotheses produced by the collaboration protocol.
const ConsensusName = "Team Consensus"

func newTimelineEvent(eventType, description, team, severity string, metadata map[string]string, now time.Time) models.TimelineEvent {
	return models.TimelineEvent{
		ID:          ulid.Make().String(),
		Type:        eventType,
		Description: description,
		Team:        team,
		Severity:    severity,
		Metadata:    metadata,
		CreatedAt:   now,
	}
}

func newMessage(incidentID, thread, sender, senderType, content string, priority models.Priority, critical bool, mentions []string, now time.Time) *models.Message {
	return &models.Message{
		ID:         ulid.Make().String(),
		IncidentID: incidentID,
		Thread:     thread,
		Sender:     sender,
		SenderType: senderType,
		Content:    content,
		Priority:   priority,
		Critical:   critical,
		Mentions:   mentions,
		CreatedAt:  now,
	}
}

// AgentName is the display name of the per-thread agent persona.
func AgentName(thread string) string {
	if thread == "" {
		return "Agent"
	}
	return strings.ToUpper(thread[:1]) + thread[1:] + " Agent"
}
