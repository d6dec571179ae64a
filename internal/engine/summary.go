package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warstack/warroom-engine/internal/metrics"
	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/oracle"
)

// execSummaryWordLimit bounds the stakeholder update length.
const execSummaryWordLimit = 120

// SummaryGenerator produces the non-technical executive update. Summaries are
// cached on the incident keyed by hypothesis version, so repeated requests
// cost nothing until the hypothesis moves.
type SummaryGenerator struct {
	logger *slog.Logger
	oracle oracle.Client
}

// NewSummaryGenerator constructs a summary generator.
func NewSummaryGenerator(logger *slog.Logger, client oracle.Client) *SummaryGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = oracle.Disabled{}
	}
	return &SummaryGenerator{logger: logger, oracle: client}
}

// Generate returns the executive summary for the incident, reusing the cached
// text when the hypothesis has not changed since it was written. The caller
// persists the incident to keep the cache. Never fails: oracle errors fall
// back to a deterministic summary.
func (g *SummaryGenerator) Generate(ctx context.Context, inc *models.Incident) string {
	version := 0
	if inc.Hypothesis != nil {
		version = inc.Hypothesis.Version
	}
	if inc.ExecSummary != "" && inc.ExecSummaryVer == version {
		return inc.ExecSummary
	}

	summary := g.compose(ctx, inc)
	inc.ExecSummary = summary
	inc.ExecSummaryVer = version
	return summary
}

func (g *SummaryGenerator) compose(ctx context.Context, inc *models.Incident) string {
	reply, err := g.oracle.Complete(ctx, buildExecSummaryPrompt(inc), 0.3, 250)
	if err != nil {
		metrics.ObserveOracleCall("exec_summary", metrics.OutcomeError)
		g.logger.Debug("executive summary degraded", slog.String("incident_id", inc.ID), slog.Any("error", err))
		return fallbackSummary(inc)
	}
	metrics.ObserveOracleCall("exec_summary", metrics.OutcomeSuccess)

	summary := strings.TrimSpace(reply)
	if summary == "" {
		return fallbackSummary(inc)
	}
	return capWords(summary, execSummaryWordLimit)
}

func fallbackSummary(inc *models.Incident) string {
	rootCause := "under investigation"
	if inc.Hypothesis != nil {
		rootCause = fmt.Sprintf("%s (%.0f%% confidence)", inc.Hypothesis.RootCause, inc.Hypothesis.Confidence*100)
	}
	investigating := 0
	for _, ts := range inc.TeamStates {
		if ts.Status == models.TeamInvestigating || ts.Status == models.TeamFoundIssue {
			investigating++
		}
	}
	return fmt.Sprintf("%s incident affecting %s is %s. Root cause: %s. %d teams actively investigating.",
		inc.Severity, inc.AffectedSystem, inc.Status, rootCause, investigating)
}

func capWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ")
}
