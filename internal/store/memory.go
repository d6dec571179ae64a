package store

import (
	"context"
	"sync"

	"github.com/warstack/warroom-engine/internal/models"
)

// MemoryStore keeps all entities in process memory. Used for tests and local
// development; reads return deep copies so callers never alias stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
	findings  map[string][]models.Finding
	messages  map[string][]models.Message
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*models.Incident),
		findings:  make(map[string][]models.Finding),
		messages:  make(map[string][]models.Message),
	}
}

// CreateIncident stores a new incident.
func (s *MemoryStore) CreateIncident(_ context.Context, inc *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = inc.Clone()
	return nil
}

// GetIncident returns a deep copy of the incident or ErrNotFound.
func (s *MemoryStore) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inc.Clone(), nil
}

// UpdateIncident overwrites the stored incident.
func (s *MemoryStore) UpdateIncident(_ context.Context, inc *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[inc.ID]; !ok {
		return ErrNotFound
	}
	s.incidents[inc.ID] = inc.Clone()
	return nil
}

// ListIncidents returns incident summaries, optionally filtered by status.
func (s *MemoryStore) ListIncidents(_ context.Context, status string) ([]models.IncidentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IncidentSummary, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if status != "" && string(inc.Status) != status {
			continue
		}
		out = append(out, models.IncidentSummary{
			ID:        inc.ID,
			Title:     inc.Title,
			Severity:  inc.Severity,
			Status:    inc.Status,
			CreatedAt: inc.CreatedAt,
		})
	}
	return out, nil
}

// AddFinding appends an immutable finding record.
func (s *MemoryStore) AddFinding(_ context.Context, f *models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings[f.IncidentID] = append(s.findings[f.IncidentID], *f)
	return nil
}

// GetFindings returns findings in creation order.
func (s *MemoryStore) GetFindings(_ context.Context, incidentID, thread string) ([]models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.findings[incidentID]
	out := make([]models.Finding, 0, len(all))
	for _, f := range all {
		if thread != "" && f.Thread != thread {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// AddMessage appends a message to its incident log.
func (s *MemoryStore) AddMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.IncidentID] = append(s.messages[m.IncidentID], *m)
	return nil
}

// GetMessages returns the most recent matching messages in creation order.
func (s *MemoryStore) GetMessages(_ context.Context, incidentID, thread string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[incidentID]
	out := make([]models.Message, 0, len(all))
	for _, m := range all {
		if thread != "" && m.Thread != thread {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
