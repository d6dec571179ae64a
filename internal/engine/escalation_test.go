package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/store"
)

func TestEscalateToVendor(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewEscalationGate(nil, st)
	inc := testIncident()
	now := time.Now()

	changed, err := g.Escalate(context.Background(), inc, models.VendorThread, "Database vendor bug suspected", now)
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !changed || !inc.EscalatedToVendor {
		t.Fatal("escalation must mark the incident")
	}

	// Vendor thread sits immediately before summary.
	idx := -1
	for i, thread := range inc.Threads {
		if thread == models.VendorThread {
			idx = i
		}
	}
	if idx == -1 || inc.Threads[idx+1] != models.SummaryThread {
		t.Fatalf("vendor thread misplaced: %v", inc.Threads)
	}

	vendor := inc.Team(models.VendorThread)
	if vendor == nil || vendor.Status != models.TeamInvestigating {
		t.Fatalf("vendor team state = %+v", vendor)
	}
	if countEvents(inc, "escalation") != 1 {
		t.Fatal("missing escalation timeline event")
	}

	msgs, _ := st.GetMessages(context.Background(), inc.ID, models.SummaryThread, 0)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "ESCALATION TO VENDOR") {
		t.Fatalf("missing broadcast: %+v", msgs)
	}
}

func TestEscalateToVendorIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewEscalationGate(nil, st)
	inc := testIncident()
	now := time.Now()

	if _, err := g.Escalate(context.Background(), inc, models.VendorThread, "first", now); err != nil {
		t.Fatalf("first escalation: %v", err)
	}
	changed, err := g.Escalate(context.Background(), inc, models.VendorThread, "second", now)
	if err != nil {
		t.Fatalf("second escalation: %v", err)
	}
	if changed {
		t.Fatal("repeat escalation must be a no-op")
	}

	vendorThreads := 0
	for _, thread := range inc.Threads {
		if thread == models.VendorThread {
			vendorThreads++
		}
	}
	if vendorThreads != 1 {
		t.Fatalf("vendor thread count = %d, want 1", vendorThreads)
	}
	if countEvents(inc, "escalation") != 1 {
		t.Fatal("repeat escalation must not add timeline events")
	}
	msgs, _ := st.GetMessages(context.Background(), inc.ID, models.SummaryThread, 0)
	if len(msgs) != 1 {
		t.Fatalf("repeat escalation must not broadcast again, got %d messages", len(msgs))
	}
}

func TestEscalateToOtherTargetRecordsOnly(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewEscalationGate(nil, st)
	inc := testIncident()

	changed, err := g.Escalate(context.Background(), inc, "management", "Customer impact above threshold", time.Now())
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !changed {
		t.Fatal("expected a recorded escalation")
	}
	if inc.EscalatedToVendor || inc.HasThread(models.VendorThread) {
		t.Fatal("non-vendor escalation must not touch vendor state")
	}
	if countEvents(inc, "escalation") != 1 {
		t.Fatal("missing escalation timeline event")
	}
}

func TestInsertBefore(t *testing.T) {
	got := insertBefore([]string{"a", "b", "c"}, "x", "b")
	want := []string{"a", "x", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("insertBefore = %v, want %v", got, want)
		}
	}
	appended := insertBefore([]string{"a"}, "x", "missing")
	if len(appended) != 2 || appended[1] != "x" {
		t.Fatalf("missing marker should append: %v", appended)
	}
}
