package models

import "time"

// DialogueKind tags one entry in a collaboration dialogue log.
type DialogueKind string

const (
	DialoguePosition  DialogueKind = "position"
	DialogueCritique  DialogueKind = "critique"
	DialogueResponse  DialogueKind = "response"
	DialogueConsensus DialogueKind = "consensus"
)

// DialogueEntry is one message in the team debate, recorded for observability.
type DialogueEntry struct {
	Team       string       `json:"team"`
	Kind       DialogueKind `json:"type"`
	Content    string       `json:"content"`
	Confidence float64      `json:"confidence,omitempty"`
	CreatedAt  time.Time    `json:"timestamp"`
}

// ConsensusType records how agreement was reached.
type ConsensusType string

const (
	ConsensusUnanimous ConsensusType = "unanimous"
	ConsensusMajority  ConsensusType = "majority"
	ConsensusCommander ConsensusType = "commander_decision"
)

// Consensus is the single hypothesis produced at the end of a collaboration.
// It is the only collaboration output written back to the incident.
type Consensus struct {
	Hypothesis         string        `json:"consensus_hypothesis"`
	Confidence         float64       `json:"confidence"`
	SupportingTeams    []string      `json:"supporting_teams"`
	KeyEvidence        []string      `json:"key_evidence"`
	Type               ConsensusType `json:"consensus_type"`
	Reasoning          string        `json:"reasoning"`
	ParticipatingTeams []string      `json:"participating_teams,omitempty"`
}

// CollaborationSession records one run of the selective collaboration
// protocol between 2-3 teams.
type CollaborationSession struct {
	IncidentID       string          `json:"incident_id"`
	Teams            []string        `json:"participating_teams"`
	Dialogue         []DialogueEntry `json:"dialogue"`
	ConsensusReached bool            `json:"consensus_reached"`
	Consensus        *Consensus      `json:"final_consensus,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
}

// Clone returns a deep copy of the session.
func (s *CollaborationSession) Clone() *CollaborationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Teams = append([]string(nil), s.Teams...)
	out.Dialogue = append([]DialogueEntry(nil), s.Dialogue...)
	if s.Consensus != nil {
		c := *s.Consensus
		c.SupportingTeams = append([]string(nil), s.Consensus.SupportingTeams...)
		c.KeyEvidence = append([]string(nil), s.Consensus.KeyEvidence...)
		c.ParticipatingTeams = append([]string(nil), s.Consensus.ParticipatingTeams...)
		out.Consensus = &c
	}
	return &out
}
