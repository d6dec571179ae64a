package models

import "time"

// Severity ranks incident impact, P0 being the most severe.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
)

var severityRank = map[Severity]int{
	SeverityP0: 0,
	SeverityP1: 1,
	SeverityP2: 2,
	SeverityP3: 3,
	SeverityP4: 4,
}

// MoreSevereThan reports whether s outranks other (P0 outranks P1, and so on).
func (s Severity) MoreSevereThan(other Severity) bool {
	sr, ok := severityRank[s]
	if !ok {
		return false
	}
	or, ok := severityRank[other]
	if !ok {
		return true
	}
	return sr < or
}

// IncidentStatus tracks the incident lifecycle. Transitions are forward-only
// except an explicit reopen.
type IncidentStatus string

const (
	IncidentDeclared      IncidentStatus = "declared"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMitigating    IncidentStatus = "mitigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentPostmortem    IncidentStatus = "postmortem"
)

// TeamStatus tracks a single team's investigation state.
type TeamStatus string

const (
	TeamStandby       TeamStatus = "standby"
	TeamInvestigating TeamStatus = "investigating"
	TeamBlocked       TeamStatus = "blocked"
	TeamFoundIssue    TeamStatus = "found_issue"
	TeamResolved      TeamStatus = "resolved"
)

// SummaryThread is the reserved broadcast thread present on every incident.
const SummaryThread = "summary"

// VendorThread is added by the escalation gate when a vendor is engaged.
const VendorThread = "vendor"

// DefaultThreads returns the standard set of team threads plus the reserved
// summary thread, in display order.
func DefaultThreads() []string {
	return []string{
		"unix", "windows", "network",
		"database", "application",
		"middleware", "cloud",
		"security", "storage",
		SummaryThread,
	}
}

// TeamState captures one team's live investigation state within an incident.
type TeamState struct {
	Name          string     `json:"name"`
	Status        TeamStatus `json:"status"`
	Engineers     []string   `json:"engineers,omitempty"`
	ActiveTasks   []string   `json:"active_tasks,omitempty"`
	FindingsCount int        `json:"findings_count"`
	LastUpdate    time.Time  `json:"last_update"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	NeedsHelpFrom []string   `json:"needs_help_from,omitempty"`
}

// Hypothesis is the incident's versioned best explanation of root cause.
type Hypothesis struct {
	RootCause          string    `json:"root_cause"`
	Confidence         float64   `json:"confidence"`
	SupportingEvidence []string  `json:"supporting_evidence,omitempty"`
	Version            int       `json:"version"`
	ProposedBy         string    `json:"proposed_by"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TimelineEvent is one append-only entry in the incident history.
type TimelineEvent struct {
	ID          string            `json:"id"`
	Type        string            `json:"event_type"`
	Description string            `json:"description"`
	Team        string            `json:"team,omitempty"`
	Severity    string            `json:"severity,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Incident is the aggregate the orchestrator owns for the duration of one
// analysis cycle. The Entity Store persists it between cycles.
type Incident struct {
	ID                string                `json:"id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Severity          Severity              `json:"severity"`
	AffectedSystem    string                `json:"affected_system"`
	Status            IncidentStatus        `json:"status"`
	Threads           []string              `json:"threads"`
	TeamStates        map[string]*TeamState `json:"team_states"`
	Hypothesis        *Hypothesis           `json:"hypothesis,omitempty"`
	Actions           []*Action             `json:"actions"`
	Timeline          []TimelineEvent       `json:"timeline"`
	EscalatedToVendor bool                  `json:"escalated_to_vendor"`
	Collaboration     *CollaborationSession `json:"collaboration,omitempty"`
	ExecSummary       string                `json:"executive_summary,omitempty"`
	ExecSummaryVer    int                   `json:"executive_summary_version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// HasThread reports whether the incident carries the named thread.
func (i *Incident) HasThread(thread string) bool {
	for _, t := range i.Threads {
		if t == thread {
			return true
		}
	}
	return false
}

// Team returns the state for the named team, or nil when unknown.
func (i *Incident) Team(name string) *TeamState {
	if i.TeamStates == nil {
		return nil
	}
	return i.TeamStates[name]
}

// ActiveActionCount counts actions not yet completed.
func (i *Incident) ActiveActionCount() int {
	n := 0
	for _, a := range i.Actions {
		if a.Status != ActionCompleted {
			n++
		}
	}
	return n
}

// AppendEvent records a timeline event. The timeline is append-only; events
// are never mutated or removed.
func (i *Incident) AppendEvent(ev TimelineEvent) {
	i.Timeline = append(i.Timeline, ev)
}

// Clone returns a deep copy so stored state cannot alias caller state.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	out := *i
	out.Threads = append([]string(nil), i.Threads...)
	if i.TeamStates != nil {
		out.TeamStates = make(map[string]*TeamState, len(i.TeamStates))
		for name, ts := range i.TeamStates {
			c := *ts
			c.Engineers = append([]string(nil), ts.Engineers...)
			c.ActiveTasks = append([]string(nil), ts.ActiveTasks...)
			c.NeedsHelpFrom = append([]string(nil), ts.NeedsHelpFrom...)
			out.TeamStates[name] = &c
		}
	}
	if i.Hypothesis != nil {
		h := *i.Hypothesis
		h.SupportingEvidence = append([]string(nil), i.Hypothesis.SupportingEvidence...)
		out.Hypothesis = &h
	}
	out.Actions = make([]*Action, 0, len(i.Actions))
	for _, a := range i.Actions {
		c := *a
		out.Actions = append(out.Actions, &c)
	}
	out.Timeline = make([]TimelineEvent, 0, len(i.Timeline))
	for _, ev := range i.Timeline {
		c := ev
		if ev.Metadata != nil {
			c.Metadata = make(map[string]string, len(ev.Metadata))
			for k, v := range ev.Metadata {
				c.Metadata[k] = v
			}
		}
		out.Timeline = append(out.Timeline, c)
	}
	out.Collaboration = i.Collaboration.Clone()
	return &out
}

// IncidentSummary is the listing projection of an incident.
type IncidentSummary struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Severity  Severity       `json:"severity"`
	Status    IncidentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
