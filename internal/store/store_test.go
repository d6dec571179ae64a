package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/warstack/warroom-engine/internal/models"
)

// Both backends must satisfy the same contract; every test runs against each.
func withStores(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		st, err := OpenSQLite(filepath.Join(t.TempDir(), "warroom.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		fn(t, st)
	})
}

func sampleIncident(id string) *models.Incident {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &models.Incident{
		ID:             id,
		Title:          "Search latency spike",
		Description:    "p99 above 2s",
		Severity:       models.SeverityP2,
		AffectedSystem: "search",
		Status:         models.IncidentInvestigating,
		Threads:        models.DefaultThreads(),
		TeamStates: map[string]*models.TeamState{
			"database": {Name: "database", Status: models.TeamInvestigating, Engineers: []string{"rivera"}, FindingsCount: 2, LastUpdate: now},
		},
		Hypothesis: &models.Hypothesis{
			RootCause: "cold cache after deploy", Confidence: 0.6, Version: 1,
			ProposedBy: "Strategic Commander", UpdatedAt: now,
		},
		Actions: []*models.Action{
			{ID: "act-1", AssignedTo: "database", Description: "warm the cache", Priority: models.PriorityHigh, Status: models.ActionPending, CreatedAt: now},
		},
		Timeline: []models.TimelineEvent{
			{ID: "ev-1", Type: "incident_declared", Description: "declared", Severity: "critical", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestIncidentRoundTrip(t *testing.T) {
	withStores(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		inc := sampleIncident("inc-1")
		if err := st.CreateIncident(ctx, inc); err != nil {
			t.Fatalf("CreateIncident: %v", err)
		}

		got, err := st.GetIncident(ctx, "inc-1")
		if err != nil {
			t.Fatalf("GetIncident: %v", err)
		}
		if got.Title != inc.Title || got.Severity != inc.Severity || got.Status != inc.Status {
			t.Fatalf("header mismatch: %+v", got)
		}
		if len(got.Threads) != len(inc.Threads) {
			t.Fatalf("threads = %v", got.Threads)
		}
		ts := got.Team("database")
		if ts == nil || ts.FindingsCount != 2 || len(ts.Engineers) != 1 {
			t.Fatalf("team state mismatch: %+v", ts)
		}
		if got.Hypothesis == nil || got.Hypothesis.Version != 1 || got.Hypothesis.RootCause != inc.Hypothesis.RootCause {
			t.Fatalf("hypothesis mismatch: %+v", got.Hypothesis)
		}
		if len(got.Actions) != 1 || got.Actions[0].Priority != models.PriorityHigh {
			t.Fatalf("actions mismatch: %+v", got.Actions)
		}
		if len(got.Timeline) != 1 || got.Timeline[0].Type != "incident_declared" {
			t.Fatalf("timeline mismatch: %+v", got.Timeline)
		}
	})
}

func TestGetIncidentNotFound(t *testing.T) {
	withStores(t, func(t *testing.T, st Store) {
		if _, err := st.GetIncident(context.Background(), "nope"); err != ErrNotFound {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if err := st.UpdateIncident(context.Background(), sampleIncident("nope")); err != ErrNotFound {
			t.Fatalf("update err = %v, want ErrNotFound", err)
		}
	})
}

func TestUpdateIncidentPersistsMutations(t *testing.T) {
	withStores(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		inc := sampleIncident("inc-1")
		if err := st.CreateIncident(ctx, inc); err != nil {
			t.Fatalf("CreateIncident: %v", err)
		}

		inc.Status = models.IncidentResolved
		inc.EscalatedToVendor = true
		inc.Hypothesis.Version = 2
		inc.Hypothesis.RootCause = "revised cause"
		inc.Collaboration = &models.CollaborationSession{
			IncidentID:       inc.ID,
			Teams:            []string{"database", "storage"},
			ConsensusReached: true,
			Consensus:        &models.Consensus{Hypothesis: "revised cause", Confidence: 0.8, Type: models.ConsensusUnanimous},
			StartedAt:        inc.CreatedAt,
		}
		if err := st.UpdateIncident(ctx, inc); err != nil {
			t.Fatalf("UpdateIncident: %v", err)
		}

		got, err := st.GetIncident(ctx, inc.ID)
		if err != nil {
			t.Fatalf("GetIncident: %v", err)
		}
		if got.Status != models.IncidentResolved || !got.EscalatedToVendor {
			t.Fatalf("status not persisted: %+v", got)
		}
		if got.Hypothesis.Version != 2 {
			t.Fatalf("hypothesis version = %d", got.Hypothesis.Version)
		}
		if got.Collaboration == nil || !got.Collaboration.ConsensusReached || got.Collaboration.Consensus.Type != models.ConsensusUnanimous {
			t.Fatalf("collaboration not persisted: %+v", got.Collaboration)
		}
	})
}

func TestListIncidentsFiltersByStatus(t *testing.T) {
	withStores(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		open := sampleIncident("inc-open")
		closed := sampleIncident("inc-closed")
		closed.Status = models.IncidentResolved
		closed.CreatedAt = closed.CreatedAt.Add(time.Minute)
		if err := st.CreateIncident(ctx, open); err != nil {
			t.Fatalf("create open: %v", err)
		}
		if err := st.CreateIncident(ctx, closed); err != nil {
			t.Fatalf("create closed: %v", err)
		}

		all, err := st.ListIncidents(ctx, "")
		if err != nil || len(all) != 2 {
			t.Fatalf("all = %v err = %v", all, err)
		}
		resolved, err := st.ListIncidents(ctx, string(models.IncidentResolved))
		if err != nil || len(resolved) != 1 || resolved[0].ID != "inc-closed" {
			t.Fatalf("resolved = %v err = %v", resolved, err)
		}
	})
}

func TestFindingsOrderAndFilter(t *testing.T) {
	withStores(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		for i, thread := range []string{"database", "network", "database"} {
			err := st.AddFinding(ctx, &models.Finding{
				ID:         "f-" + string(rune('a'+i)),
				IncidentID: "inc-1",
				Thread:     thread,
				Engineer:   "kim",
				RawText:    "finding",
				Signal:     models.SignalInfo,
				CreatedAt:  base.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Fatalf("AddFinding: %v", err)
			}
		}

		all, err := st.GetFindings(ctx, "inc-1", "")
		if err != nil || len(all) != 3 {
			t.Fatalf("all = %d err = %v", len(all), err)
		}
		if all[0].ID != "f-a" || all[2].ID != "f-c" {
			t.Fatalf("order wrong: %v, %v", all[0].ID, all[2].ID)
		}
		db, err := st.GetFindings(ctx, "inc-1", "database")
		if err != nil || len(db) != 2 {
			t.Fatalf("db = %d err = %v", len(db), err)
		}
	})
}

func TestMessagesLimitReturnsMostRecent(t *testing.T) {
	withStores(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			err := st.AddMessage(ctx, &models.Message{
				ID:         "m-" + string(rune('a'+i)),
				IncidentID: "inc-1",
				Thread:     "database",
				Sender:     "kim",
				SenderType: models.SenderTypeEngineer,
				Content:    "update",
				Priority:   models.PriorityNormal,
				CreatedAt:  base.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Fatalf("AddMessage: %v", err)
			}
		}

		last, err := st.GetMessages(ctx, "inc-1", "database", 2)
		if err != nil || len(last) != 2 {
			t.Fatalf("last = %d err = %v", len(last), err)
		}
		if last[0].ID != "m-d" || last[1].ID != "m-e" {
			t.Fatalf("limit must keep the most recent in order: %v, %v", last[0].ID, last[1].ID)
		}
	})
}

func TestMemoryStoreReadsDoNotAlias(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	inc := sampleIncident("inc-1")
	if err := st.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}

	got, _ := st.GetIncident(ctx, "inc-1")
	got.Team("database").FindingsCount = 99
	got.Hypothesis.RootCause = "tampered"

	fresh, _ := st.GetIncident(ctx, "inc-1")
	if fresh.Team("database").FindingsCount != 2 || fresh.Hypothesis.RootCause != "cold cache after deploy" {
		t.Fatal("stored state aliased a returned copy")
	}
}
