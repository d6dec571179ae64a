package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/warstack/warroom-engine/internal/models"
)

// hypothesisConfidenceGate is the minimum confidence a candidate needs to
// replace the incident hypothesis through the normal path.
const hypothesisConfidenceGate = 0.5

// HypothesisManager owns the incident's versioned root-cause hypothesis.
// Version never decreases and increments exactly once per accepted update.
type HypothesisManager struct {
	logger *slog.Logger
}

// NewHypothesisManager constructs a hypothesis manager.
func NewHypothesisManager(logger *slog.Logger) *HypothesisManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &HypothesisManager{logger: logger}
}

// Propose applies a candidate under the confidence gate. An absent root cause
// or sub-threshold confidence is a silent no-op. Returns whether the
// hypothesis changed.
func (m *HypothesisManager) Propose(inc *models.Incident, cand models.HypothesisCandidate, proposedBy string, now time.Time) bool {
	if cand.RootCause == "" {
		return false
	}
	if cand.Confidence < hypothesisConfidenceGate {
		m.logger.Debug("hypothesis candidate below confidence gate",
			slog.String("incident_id", inc.ID),
			slog.Float64("confidence", cand.Confidence))
		return false
	}
	m.apply(inc, cand, proposedBy, now)
	return true
}

// ApplyConsensus writes the collaboration protocol's final consensus back,
// bypassing the confidence gate: the consensus already represents cross-team
// agreement.
func (m *HypothesisManager) ApplyConsensus(inc *models.Incident, consensus *models.Consensus, now time.Time) {
	if consensus == nil || consensus.Hypothesis == "" {
		return
	}
	m.apply(inc, models.HypothesisCandidate{
		RootCause:          consensus.Hypothesis,
		Confidence:         consensus.Confidence,
		SupportingEvidence: consensus.KeyEvidence,
	}, ConsensusName, now)
}

func (m *HypothesisManager) apply(inc *models.Incident, cand models.HypothesisCandidate, proposedBy string, now time.Time) {
	if inc.Hypothesis == nil {
		inc.Hypothesis = &models.Hypothesis{
			RootCause:          cand.RootCause,
			Confidence:         cand.Confidence,
			SupportingEvidence: cand.SupportingEvidence,
			Version:            1,
			ProposedBy:         proposedBy,
			UpdatedAt:          now,
		}
		inc.AppendEvent(newTimelineEvent("hypothesis_formed",
			fmt.Sprintf("Initial hypothesis formed: %s", cand.RootCause),
			"", "high", nil, now))
		return
	}

	previous := inc.Hypothesis.RootCause
	inc.Hypothesis.Version++
	inc.Hypothesis.RootCause = cand.RootCause
	inc.Hypothesis.Confidence = cand.Confidence
	inc.Hypothesis.SupportingEvidence = cand.SupportingEvidence
	inc.Hypothesis.ProposedBy = proposedBy
	inc.Hypothesis.UpdatedAt = now

	inc.AppendEvent(newTimelineEvent("hypothesis_updated",
		fmt.Sprintf("Hypothesis evolved (v%d): %s", inc.Hypothesis.Version, cand.RootCause),
		"", "high", map[string]string{"previous": previous}, now))
}
