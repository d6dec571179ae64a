package engine

import (
	"testing"
	"time"

	"github.com/warstack/warroom-engine/internal/models"
)

func TestProposeCreatesInitialHypothesis(t *testing.T) {
	m := NewHypothesisManager(nil)
	inc := testIncident()
	now := time.Now()

	changed := m.Propose(inc, models.HypothesisCandidate{
		RootCause:          "Connection pool sized for old traffic profile",
		Confidence:         0.7,
		SupportingEvidence: []string{"pool exhausted", "latency correlates with connection waits"},
	}, CommanderName, now)

	if !changed {
		t.Fatal("proposal above the gate must apply")
	}
	h := inc.Hypothesis
	if h == nil || h.Version != 1 || h.ProposedBy != CommanderName {
		t.Fatalf("unexpected hypothesis: %+v", h)
	}
	if countEvents(inc, "hypothesis_formed") != 1 {
		t.Fatal("missing hypothesis_formed event")
	}
}

func TestProposeIncrementsVersion(t *testing.T) {
	m := NewHypothesisManager(nil)
	inc := testIncident()
	now := time.Now()

	m.Propose(inc, models.HypothesisCandidate{RootCause: "first theory", Confidence: 0.6}, CommanderName, now)
	m.Propose(inc, models.HypothesisCandidate{RootCause: "refined theory", Confidence: 0.8}, CommanderName, now)

	if inc.Hypothesis.Version != 2 {
		t.Fatalf("version = %d, want 2", inc.Hypothesis.Version)
	}
	if inc.Hypothesis.RootCause != "refined theory" {
		t.Fatalf("root cause = %q", inc.Hypothesis.RootCause)
	}
	if countEvents(inc, "hypothesis_updated") != 1 {
		t.Fatal("missing hypothesis_updated event")
	}
}

func TestProposeBelowGateIsNoOp(t *testing.T) {
	m := NewHypothesisManager(nil)
	inc := testIncident()
	now := time.Now()

	m.Propose(inc, models.HypothesisCandidate{RootCause: "settled theory", Confidence: 0.9}, CommanderName, now)

	if m.Propose(inc, models.HypothesisCandidate{RootCause: "weak theory", Confidence: 0.4}, CommanderName, now) {
		t.Fatal("sub-gate proposal must not apply")
	}
	if inc.Hypothesis.RootCause != "settled theory" || inc.Hypothesis.Version != 1 {
		t.Fatalf("hypothesis mutated: %+v", inc.Hypothesis)
	}
}

func TestProposeEmptyRootCauseIsNoOp(t *testing.T) {
	m := NewHypothesisManager(nil)
	inc := testIncident()
	if m.Propose(inc, models.HypothesisCandidate{RootCause: "", Confidence: 0.9}, CommanderName, time.Now()) {
		t.Fatal("empty root cause must not apply")
	}
	if inc.Hypothesis != nil {
		t.Fatal("hypothesis should stay nil")
	}
}

func TestApplyConsensusBypassesGate(t *testing.T) {
	m := NewHypothesisManager(nil)
	inc := testIncident()
	now := time.Now()

	m.ApplyConsensus(inc, &models.Consensus{
		Hypothesis:  "Shared storage backend degraded",
		Confidence:  0.45,
		KeyEvidence: []string{"both teams see iowait spikes"},
		Type:        models.ConsensusMajority,
	}, now)

	h := inc.Hypothesis
	if h == nil {
		t.Fatal("consensus must apply even below the confidence gate")
	}
	if h.ProposedBy != ConsensusName || h.Confidence != 0.45 {
		t.Fatalf("unexpected hypothesis: %+v", h)
	}
}

func TestApplyConsensusNilOrEmptyIsNoOp(t *testing.T) {
	m := NewHypothesisManager(nil)
	inc := testIncident()
	m.ApplyConsensus(inc, nil, time.Now())
	m.ApplyConsensus(inc, &models.Consensus{Hypothesis: ""}, time.Now())
	if inc.Hypothesis != nil {
		t.Fatal("hypothesis should stay nil")
	}
}
