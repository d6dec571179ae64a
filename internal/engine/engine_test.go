package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warstack/warroom-engine/internal/models"
)

// fakeOracle returns scripted replies in order, failing once the script runs
// out or when fail is set.
type fakeOracle struct {
	replies []string
	fail    bool
	prompts []string
}

func (f *fakeOracle) Complete(_ context.Context, prompt string, _ float64, _ int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.fail {
		return "", errors.New("oracle down")
	}
	if len(f.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

// routeOracle dispatches each call through a handler so tests can fail
// specific call sites.
type routeOracle struct {
	handler func(prompt string) (string, error)
}

func (r *routeOracle) Complete(_ context.Context, prompt string, _ float64, _ int) (string, error) {
	return r.handler(prompt)
}

func testIncident() *models.Incident {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	threads := models.DefaultThreads()
	states := make(map[string]*models.TeamState, len(threads))
	for _, thread := range threads {
		states[thread] = &models.TeamState{Name: thread, Status: models.TeamStandby, LastUpdate: now}
	}
	return &models.Incident{
		ID:             "inc-test-1",
		Title:          "Checkout latency spike",
		Description:    "p99 latency above 5s on checkout",
		Severity:       models.SeverityP1,
		AffectedSystem: "checkout",
		Status:         models.IncidentInvestigating,
		Threads:        threads,
		TeamStates:     states,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func countEvents(inc *models.Incident, eventType string) int {
	n := 0
	for _, ev := range inc.Timeline {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func TestPolicyFromConfigDefaults(t *testing.T) {
	p := DefaultPolicy()
	if p.ReviewEvery != 3 || p.MaxActiveActions != 10 || p.CollabMinFindings != 3 {
		t.Fatalf("unexpected default policy: %+v", p)
	}
}

func TestThreadAgentName(t *testing.T) {
	if got := AgentName("database"); got != "Database Agent" {
		t.Fatalf("AgentName(database) = %q", got)
	}
	if got := AgentName(""); got != "Agent" {
		t.Fatalf("AgentName(empty) = %q", got)
	}
}
