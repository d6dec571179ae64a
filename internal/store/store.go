// Package store defines the entity store the coordination engine persists
// through. The store is CRUD only: all invariants live in the engine, and
// callers are responsible for serialising concurrent cycles per incident.
package store

import (
	"context"
	"errors"

	"github.com/warstack/warroom-engine/internal/models"
)

// ErrNotFound signals an unknown incident, finding, or message scope.
var ErrNotFound = errors.New("not found")

// Store is the durable state collaborator consumed by the engine. All calls
// are assumed atomic; the engine implements no durability of its own.
type Store interface {
	CreateIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	UpdateIncident(ctx context.Context, inc *models.Incident) error
	ListIncidents(ctx context.Context, status string) ([]models.IncidentSummary, error)

	AddFinding(ctx context.Context, f *models.Finding) error
	// GetFindings returns findings in creation order; thread == "" returns
	// all threads.
	GetFindings(ctx context.Context, incidentID, thread string) ([]models.Finding, error)

	AddMessage(ctx context.Context, m *models.Message) error
	// GetMessages returns the most recent messages for a thread in
	// creation order; limit <= 0 means no limit, thread == "" means all.
	GetMessages(ctx context.Context, incidentID, thread string, limit int) ([]models.Message, error)

	Close() error
}
