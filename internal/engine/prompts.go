package engine

import (
	"fmt"
	"strings"

	"github.com/warstack/warroom-engine/internal/models"
)

// Prompt builders for every oracle call site. Each call site has a strict
// JSON schema; replies that do not deserialize into the matching struct are
// treated as oracle failures.

const (
	recentFindingsWindow  = 30
	findingsPerTeamInCtx  = 5
	maxBlockersInFallback = 3
)

func buildClassifyPrompt(inc *models.Incident, thread, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are triaging one engineer update posted to the %s thread of an incident.\n\n", strings.ToUpper(thread))
	fmt.Fprintf(&b, "INCIDENT: %s\nSYSTEM: %s\nSTATUS: %s\n\n", inc.Title, inc.AffectedSystem, inc.Status)
	fmt.Fprintf(&b, "UPDATE:\n%s\n\n", text)
	b.WriteString(`Classify the update. Return STRICT JSON:

{
  "signal_type": "info|warning|root_cause_candidate|blocker|resolution|request_help",
  "confidence": 0.0-1.0,
  "entities": {"component": "...", "metric": "..."},
  "needs_commander": true/false,
  "summary": "One line summary of the update"
}

Set needs_commander only when the update changes the strategic picture.
`)
	return b.String()
}

func buildAssessmentPrompt(inc *models.Incident, byTeam map[string][]models.Finding, teamOrder []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an elite Incident Commander managing a %s incident.\n\n", inc.Severity)
	fmt.Fprintf(&b, "INCIDENT: %s\nSYSTEM: %s\nDESCRIPTION: %s\nSTATUS: %s\n\n", inc.Title, inc.AffectedSystem, inc.Description, inc.Status)

	b.WriteString("CURRENT HYPOTHESIS:\n")
	if inc.Hypothesis != nil {
		fmt.Fprintf(&b, "Root Cause: %s\nConfidence: %.2f\nEvidence: %s\n",
			inc.Hypothesis.RootCause, inc.Hypothesis.Confidence,
			strings.Join(inc.Hypothesis.SupportingEvidence, ", "))
	} else {
		b.WriteString("No hypothesis yet\n")
	}

	b.WriteString("\nTEAM STATUS:\n")
	for _, thread := range inc.Threads {
		ts := inc.Team(thread)
		if ts == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s", ts.Name, ts.Status)
		if ts.BlockedReason != "" {
			fmt.Fprintf(&b, " (BLOCKED: %s)", ts.BlockedReason)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nACTIVE ACTIONS:\n")
	hasActive := false
	for _, a := range inc.Actions {
		if a.Status == models.ActionCompleted {
			continue
		}
		hasActive = true
		fmt.Fprintf(&b, "  - [%s] %s (%s)\n", a.AssignedTo, a.Description, a.Status)
	}
	if !hasActive {
		b.WriteString("  No active actions\n")
	}

	b.WriteString("\nRECENT FINDINGS:\n")
	for _, team := range teamOrder {
		findings := byTeam[team]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s TEAM:\n", strings.ToUpper(team))
		for _, f := range lastN(findings, findingsPerTeamInCtx) {
			fmt.Fprintf(&b, "  - [%s] %s\n", f.Engineer, f.RawText)
		}
	}

	b.WriteString(`
Analyze the situation and provide strategic direction. Return STRICT JSON:

{
  "updated_hypothesis": {
    "root_cause": "Clear, technical root cause or null if not ready to update",
    "confidence": 0.0-1.0,
    "supporting_evidence": ["evidence1", "evidence2"]
  },
  "new_actions": [
    {"team": "team_name", "description": "Specific, actionable task", "priority": "critical|high|normal|low", "reasoning": "Why this action is needed"}
  ],
  "team_coordination": [
    {"source_team": "team_name", "target_team": "team_name", "request": "What help is needed"}
  ],
  "escalation_needed": {"escalate": true/false, "reason": "Why escalation is needed", "escalate_to": "vendor|management|security"},
  "critical_blockers": ["blocker1", "blocker2"],
  "next_steps_summary": "Brief summary of strategic direction"
}

RULES:
- Only update the hypothesis on strong evidence (confidence > 0.6)
- Assign specific, actionable tasks, not vague instructions
- Coordinate teams when one needs help from another
- Escalate only when teams are stuck or external help is needed
`)
	return b.String()
}

func buildCollabTriggerPrompt(inc *models.Incident, byTeam map[string][]models.Finding, teams []string) string {
	var b strings.Builder
	b.WriteString("You are analyzing an incident to determine if team collaboration is needed.\n\n")
	fmt.Fprintf(&b, "INCIDENT: %s\nSYSTEM: %s\n\n", inc.Title, inc.AffectedSystem)
	b.WriteString("ACTIVE TEAMS AND THEIR FINDINGS:\n")
	for _, team := range teams {
		findings := byTeam[team]
		latest := ""
		if len(findings) > 0 {
			latest = truncateForDigest(findings[len(findings)-1].RawText, 80)
		}
		fmt.Fprintf(&b, "%s: %d findings, Latest: %s\n", strings.ToUpper(team), len(findings), latest)
	}
	b.WriteString(`
Determine if 2-3 specific teams should collaborate because their findings
overlap or conflict, they investigate the same component, or one team's
findings affect another's area.

Return STRICT JSON:
{
  "collaboration_needed": true/false,
  "participating_teams": ["team1", "team2", "team3"] or [],
  "reason": "Why these teams should collaborate",
  "conflict_area": "What they are conflicting about"
}

Only recommend collaboration when there is genuine overlap or conflict.
Maximum 3 teams to keep discussion focused.
`)
	return b.String()
}

func buildPositionPrompt(inc *models.Incident, team string, findings []models.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s team agent in a collaborative dialogue.\n\n", strings.ToUpper(team))
	fmt.Fprintf(&b, "INCIDENT: %s\n\nYOUR FINDINGS:\n", inc.Title)
	for _, f := range lastN(findings, findingsPerTeamInCtx) {
		fmt.Fprintf(&b, "  [%s] %s\n", f.Engineer, f.RawText)
	}
	b.WriteString(`
State your position on the root cause. Return STRICT JSON:

{
  "hypothesis": "Your specific hypothesis",
  "confidence": 0.0-1.0,
  "evidence": ["key evidence 1", "key evidence 2"],
  "reasoning": "Why you believe this"
}

Be specific and evidence-based.
`)
	return b.String()
}

func buildCritiquePrompt(own teamPosition, others []teamPosition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s team.\n\nYOUR HYPOTHESIS: %s\n\nOTHER TEAMS' HYPOTHESES:\n", strings.ToUpper(own.Team), own.Hypothesis)
	for _, p := range others {
		fmt.Fprintf(&b, "\n%s:\n%s\nConfidence: %.2f\n", strings.ToUpper(p.Team), p.Hypothesis, p.Confidence)
	}
	b.WriteString(`
Critique the other positions. Return STRICT JSON:

{
  "critique_text": "Your technical critique",
  "agreements": ["points where you agree"],
  "disagreements": ["specific conflicts with your findings"],
  "questions": ["questions for other teams"]
}

Be constructive and specific.
`)
	return b.String()
}

func buildRevisionPrompt(position teamPosition, critiques []teamCritique) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s team.\n\nYOUR ORIGINAL HYPOTHESIS: %s\nYOUR CONFIDENCE: %.2f\n\nCRITIQUES FROM OTHER TEAMS:\n",
		strings.ToUpper(position.Team), position.Hypothesis, position.Confidence)
	for _, c := range critiques {
		fmt.Fprintf(&b, "\nCRITIQUE:\n%s\n", c.CritiqueText)
	}
	b.WriteString(`
Respond and revise if needed. Return STRICT JSON:

{
  "response_text": "Your response to critiques",
  "revised_hypothesis": "Updated hypothesis (or same if unchanged)",
  "revised_confidence": 0.0-1.0,
  "changed": true/false,
  "reason_for_change": "Why you revised or why you maintained position"
}

Be honest - revise if critiques are valid, defend if not.
`)
	return b.String()
}

func buildConsensusPrompt(positions []teamPosition, revisions []teamRevision) string {
	var b strings.Builder
	b.WriteString("You are the Strategic Commander evaluating team collaboration.\n\nINITIAL POSITIONS:\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "\n%s (Initial):\n%s\nConfidence: %.2f\n", strings.ToUpper(p.Team), p.Hypothesis, p.Confidence)
	}
	b.WriteString("\nREVISED POSITIONS:\n")
	if len(revisions) == 0 {
		b.WriteString("No revisions made\n")
	}
	for _, r := range revisions {
		fmt.Fprintf(&b, "\n%s (Revised):\n%s\nConfidence: %.2f\nChanged: %t\n",
			strings.ToUpper(r.Team), r.RevisedHypothesis, r.RevisedConfidence, r.Changed)
	}
	b.WriteString(`
Reach a consensus. Return STRICT JSON:

{
  "consensus_hypothesis": "Final agreed-upon root cause",
  "confidence": 0.0-1.0,
  "supporting_teams": ["team1", "team2"],
  "key_evidence": ["evidence supporting consensus"],
  "consensus_type": "unanimous|majority|commander_decision",
  "reasoning": "How you reached this consensus"
}

Favor unanimous agreement. If teams converged, use their shared hypothesis.
If still divergent, make the best judgment based on evidence.
`)
	return b.String()
}

func buildExecSummaryPrompt(inc *models.Incident) string {
	rootCause := "Investigating"
	confidence := 0.0
	if inc.Hypothesis != nil {
		rootCause = inc.Hypothesis.RootCause
		confidence = inc.Hypothesis.Confidence
	}
	return fmt.Sprintf(`Generate an executive update under 120 words.

Incident: %s
Severity: %s
System: %s
Root Cause: %s
Confidence: %.2f
Status: %s
`, inc.Title, inc.Severity, inc.AffectedSystem, rootCause, confidence, inc.Status)
}

func lastN(findings []models.Finding, n int) []models.Finding {
	if len(findings) <= n {
		return findings
	}
	return findings[len(findings)-n:]
}

func truncateForDigest(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
