package models

// HypothesisCandidate is an oracle-proposed hypothesis update. A nil or empty
// RootCause means "no change".
type HypothesisCandidate struct {
	RootCause          string   `json:"root_cause"`
	Confidence         float64  `json:"confidence"`
	SupportingEvidence []string `json:"supporting_evidence"`
}

// ActionProposal is one oracle-proposed task for a team.
type ActionProposal struct {
	Team        string `json:"team"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Reasoning   string `json:"reasoning"`
}

// CoordinationRequest asks one team to help another.
type CoordinationRequest struct {
	SourceTeam string `json:"source_team"`
	TargetTeam string `json:"target_team"`
	Request    string `json:"request"`
}

// EscalationRecommendation is the oracle's view on whether to escalate.
type EscalationRecommendation struct {
	Escalate   bool   `json:"escalate"`
	Reason     string `json:"reason"`
	EscalateTo string `json:"escalate_to"`
}

// Assessment is the structured output of one analysis cycle. The JSON shape
// matches the commander's oracle schema so responses deserialize directly.
type Assessment struct {
	Hypothesis   *HypothesisCandidate     `json:"updated_hypothesis"`
	NewActions   []ActionProposal         `json:"new_actions"`
	Coordination []CoordinationRequest    `json:"team_coordination"`
	Escalation   EscalationRecommendation `json:"escalation_needed"`
	Blockers     []string                 `json:"critical_blockers"`
	Summary      string                   `json:"next_steps_summary"`

	// Degraded marks the deterministic fallback produced when the oracle
	// fails; it never carries hypothesis, action, or escalation changes.
	Degraded bool `json:"degraded,omitempty"`
	// Collaborated marks a cycle that ran the collaboration protocol
	// instead of a full-situation analysis.
	Collaborated bool `json:"collaborated,omitempty"`
}
