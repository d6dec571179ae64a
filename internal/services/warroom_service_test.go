package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/warstack/warroom-engine/internal/engine"
	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/store"
)

type fakeOracle struct {
	replies []string
	fail    bool
}

func (f *fakeOracle) Complete(_ context.Context, _ string, _ float64, _ int) (string, error) {
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

// idleAssessment satisfies the analysis cycle run at declaration without
// proposing any changes.
const idleAssessment = `{"updated_hypothesis": null, "new_actions": [], "team_coordination": [], "escalation_needed": {"escalate": false}, "critical_blockers": [], "next_steps_summary": ""}`

func newTestService(client *fakeOracle) (*WarRoomService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	policy := engine.DefaultPolicy()
	svc := NewWarRoomService(nil, st,
		engine.NewClassifier(nil, client),
		engine.NewCommander(nil, client, st, policy),
		engine.NewSummaryGenerator(nil, client),
		policy)
	return svc, st
}

func declare(t *testing.T, svc *WarRoomService) *models.Incident {
	t.Helper()
	inc, err := svc.CreateIncident(context.Background(), CreateIncidentRequest{
		Title:          "Payment API errors",
		Description:    "5xx rate above 10%",
		Severity:       "P1",
		AffectedSystem: "payments",
	})
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	return inc
}

func TestCreateIncidentInitialisesWarRoom(t *testing.T) {
	svc, st := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)

	if inc.Status != models.IncidentDeclared || inc.Severity != models.SeverityP1 {
		t.Fatalf("unexpected incident: %+v", inc)
	}
	if !inc.HasThread(models.SummaryThread) || len(inc.Threads) != len(models.DefaultThreads()) {
		t.Fatalf("threads = %v", inc.Threads)
	}
	if inc.Team(models.SummaryThread) != nil {
		t.Fatal("summary thread must not carry a team state")
	}
	for _, thread := range inc.Threads {
		if thread == models.SummaryThread {
			continue
		}
		ts := inc.Team(thread)
		if ts == nil || ts.Status != models.TeamStandby {
			t.Fatalf("team %s state = %+v", thread, ts)
		}
	}

	msgs, _ := st.GetMessages(context.Background(), inc.ID, models.SummaryThread, 0)
	if len(msgs) == 0 || !strings.Contains(msgs[0].Content, "WAR ROOM OPENED") {
		t.Fatalf("kickoff missing: %+v", msgs)
	}

	// The declaration triggers a first commander cycle; with the oracle down
	// it completes degraded instead of failing the declaration.
	cycles := 0
	for _, ev := range inc.Timeline {
		if ev.Type == "strategic_analysis" {
			cycles++
		}
	}
	if cycles != 1 {
		t.Fatalf("strategic_analysis events = %d, want initial cycle", cycles)
	}
}

func TestCreateIncidentValidation(t *testing.T) {
	svc, _ := newTestService(&fakeOracle{fail: true})
	if _, err := svc.CreateIncident(context.Background(), CreateIncidentRequest{Title: " "}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank title err = %v", err)
	}
	if _, err := svc.CreateIncident(context.Background(), CreateIncidentRequest{Title: "x", Severity: "SEV-9000"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad severity err = %v", err)
	}
}

func TestProcessEngineerInputDegradedOracle(t *testing.T) {
	svc, st := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)

	res, err := svc.ProcessEngineerInput(context.Background(), inc.ID, "database", "rivera", "checking slow queries")
	if err != nil {
		t.Fatalf("degraded oracle must not block input: %v", err)
	}
	if res.Finding.Signal != models.SignalInfo {
		t.Fatalf("finding signal = %s, want info fallback", res.Finding.Signal)
	}
	if res.CommanderWoken {
		t.Fatal("first info finding must not wake the commander")
	}

	stored, _ := st.GetIncident(context.Background(), inc.ID)
	if stored.Status != models.IncidentInvestigating {
		t.Fatalf("first input must move the incident to investigating, got %s", stored.Status)
	}
	ts := stored.Team("database")
	if ts.FindingsCount != 1 || ts.Status != models.TeamInvestigating {
		t.Fatalf("team state = %+v", ts)
	}

	msgs, _ := st.GetMessages(context.Background(), inc.ID, "database", 0)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want engineer update plus acknowledgment", len(msgs))
	}
	if msgs[1].SenderType != models.SenderTypeAgent {
		t.Fatalf("second message sender type = %s", msgs[1].SenderType)
	}
}

func TestProcessEngineerInputWakesCommanderOnBlocker(t *testing.T) {
	client := &fakeOracle{replies: []string{
		idleAssessment,
		`{"signal_type": "blocker", "confidence": 0.8, "needs_commander": true, "summary": "pool exhausted"}`,
		// Commander assessment for the woken cycle.
		`{"updated_hypothesis": null, "new_actions": [], "team_coordination": [], "escalation_needed": {"escalate": false}, "critical_blockers": ["database blocked"], "next_steps_summary": "unblock database"}`,
	}}
	svc, st := newTestService(client)
	inc := declare(t, svc)

	res, err := svc.ProcessEngineerInput(context.Background(), inc.ID, "database", "rivera", "connection pool exhausted")
	if err != nil {
		t.Fatalf("ProcessEngineerInput: %v", err)
	}
	if !res.CommanderWoken {
		t.Fatal("blocker must wake the commander")
	}

	stored, _ := st.GetIncident(context.Background(), inc.ID)
	if stored.Team("database").Status != models.TeamBlocked {
		t.Fatalf("team status = %s", stored.Team("database").Status)
	}
	found := false
	for _, ev := range stored.Timeline {
		if ev.Type == "strategic_analysis" {
			found = true
		}
	}
	if !found {
		t.Fatal("woken cycle left no strategic_analysis event")
	}
}

func TestProcessEngineerInputValidation(t *testing.T) {
	svc, _ := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)

	if _, err := svc.ProcessEngineerInput(context.Background(), inc.ID, "database", "kim", "  "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank text err = %v", err)
	}
	if _, err := svc.ProcessEngineerInput(context.Background(), inc.ID, "mainframe", "kim", "update"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown thread err = %v", err)
	}
	if _, err := svc.ProcessEngineerInput(context.Background(), inc.ID, models.SummaryThread, "kim", "update"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("summary thread err = %v", err)
	}
	if _, err := svc.ProcessEngineerInput(context.Background(), "missing", "database", "kim", "update"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing incident err = %v", err)
	}
}

func TestUpdateActionStatus(t *testing.T) {
	client := &fakeOracle{replies: []string{idleAssessment, `{
		"updated_hypothesis": null,
		"new_actions": [{"team": "database", "description": "Check replica lag", "priority": "normal", "reasoning": ""}],
		"team_coordination": [],
		"escalation_needed": {"escalate": false},
		"critical_blockers": [],
		"next_steps_summary": "watch replicas"
	}`}}
	svc, st := newTestService(client)
	inc := declare(t, svc)

	if _, err := svc.RunAnalysisCycle(context.Background(), inc.ID); err != nil {
		t.Fatalf("RunAnalysisCycle: %v", err)
	}
	stored, _ := st.GetIncident(context.Background(), inc.ID)
	if len(stored.Actions) != 1 {
		t.Fatalf("actions = %d", len(stored.Actions))
	}

	action, err := svc.UpdateActionStatus(context.Background(), inc.ID, stored.Actions[0].ID, "completed", "lag back under 1s")
	if err != nil {
		t.Fatalf("UpdateActionStatus: %v", err)
	}
	if action.Status != models.ActionCompleted || action.CompletedAt == nil {
		t.Fatalf("action = %+v", action)
	}

	stored, _ = st.GetIncident(context.Background(), inc.ID)
	noted := false
	for _, ev := range stored.Timeline {
		if ev.Type == "action_updated" && ev.Metadata["notes"] == "lag back under 1s" {
			noted = true
		}
	}
	if !noted {
		t.Fatal("update notes not persisted on action_updated event")
	}

	if _, err := svc.UpdateActionStatus(context.Background(), inc.ID, "nope", "completed", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown action err = %v", err)
	}
	if _, err := svc.UpdateActionStatus(context.Background(), inc.ID, action.ID, "finished", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad status err = %v", err)
	}
}

func TestResolveIncident(t *testing.T) {
	svc, st := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)

	resolved, err := svc.ResolveIncident(context.Background(), inc.ID, "morgan", "failover completed")
	if err != nil {
		t.Fatalf("ResolveIncident: %v", err)
	}
	if resolved.Status != models.IncidentResolved {
		t.Fatalf("status = %s", resolved.Status)
	}
	for name, ts := range resolved.TeamStates {
		if ts.Status != models.TeamResolved {
			t.Fatalf("team %s = %s", name, ts.Status)
		}
	}

	// Resolving again is a no-op.
	again, err := svc.ResolveIncident(context.Background(), inc.ID, "morgan", "")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.Status != models.IncidentResolved {
		t.Fatalf("status = %s", again.Status)
	}
	msgs, _ := st.GetMessages(context.Background(), inc.ID, models.SummaryThread, 0)
	resolutionMsgs := 0
	for _, m := range msgs {
		if strings.Contains(m.Content, "INCIDENT RESOLVED") {
			resolutionMsgs++
		}
	}
	if resolutionMsgs != 1 {
		t.Fatalf("resolution broadcasts = %d, want 1", resolutionMsgs)
	}
}

func TestEscalateIncident(t *testing.T) {
	svc, st := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)

	escalated, err := svc.EscalateIncident(context.Background(), inc.ID, "", "vendor bug suspected")
	if err != nil {
		t.Fatalf("EscalateIncident: %v", err)
	}
	if !escalated.EscalatedToVendor || !escalated.HasThread(models.VendorThread) {
		t.Fatalf("escalation not applied: %+v", escalated.Threads)
	}
	stored, _ := st.GetIncident(context.Background(), inc.ID)
	if !stored.EscalatedToVendor {
		t.Fatal("escalation not persisted")
	}
}

func TestExecutiveSummaryCaching(t *testing.T) {
	client := &fakeOracle{replies: []string{idleAssessment, "Payments are degraded; teams are investigating."}}
	svc, st := newTestService(client)
	inc := declare(t, svc)

	first, err := svc.ExecutiveSummary(context.Background(), inc.ID)
	if err != nil {
		t.Fatalf("ExecutiveSummary: %v", err)
	}
	// Second request is served from the persisted cache; the script is empty
	// so an oracle call would fail and change the text.
	second, err := svc.ExecutiveSummary(context.Background(), inc.ID)
	if err != nil {
		t.Fatalf("second ExecutiveSummary: %v", err)
	}
	if first != second {
		t.Fatalf("summary not cached: %q vs %q", first, second)
	}
	stored, _ := st.GetIncident(context.Background(), inc.ID)
	if stored.ExecSummary != first {
		t.Fatal("summary cache not persisted")
	}
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)

	if _, err := svc.ProcessEngineerInput(context.Background(), inc.ID, "network", "osei", "packet loss on edge"); err != nil {
		t.Fatalf("ProcessEngineerInput: %v", err)
	}

	stats, err := svc.Stats(context.Background(), inc.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalFindings != 1 {
		t.Fatalf("findings = %d", stats.TotalFindings)
	}
	if stats.TotalMessages < 3 {
		t.Fatalf("messages = %d, want kickoff plus update plus ack", stats.TotalMessages)
	}
	if stats.TeamStatuses["network"] != models.TeamInvestigating {
		t.Fatalf("network status = %s", stats.TeamStatuses["network"])
	}
}

func TestListIncidents(t *testing.T) {
	svc, _ := newTestService(&fakeOracle{fail: true})
	inc := declare(t, svc)
	if _, err := svc.ResolveIncident(context.Background(), inc.ID, "", ""); err != nil {
		t.Fatalf("ResolveIncident: %v", err)
	}

	all, err := svc.ListIncidents(context.Background(), "")
	if err != nil || len(all) != 1 {
		t.Fatalf("all = %v err = %v", all, err)
	}
	open, err := svc.ListIncidents(context.Background(), string(models.IncidentInvestigating))
	if err != nil || len(open) != 0 {
		t.Fatalf("open = %v err = %v", open, err)
	}
}
