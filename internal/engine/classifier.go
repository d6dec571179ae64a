package engine

import (
	"context"
	"log/slog"

	"github.com/warstack/warroom-engine/internal/metrics"
	"github.com/warstack/warroom-engine/internal/models"
	"github.com/warstack/warroom-engine/internal/oracle"
)

// Classification is the typed signal derived from one engineer update.
type Classification struct {
	Kind       models.SignalKind
	Confidence float64
	Entities   map[string]string
	Trigger    bool
	Summary    string
}

// DefaultClassification is what every oracle failure degrades to: a plain
// informational signal that never wakes the commander on its own.
func DefaultClassification() Classification {
	return Classification{
		Kind:       models.SignalInfo,
		Confidence: 0.5,
		Entities:   map[string]string{},
	}
}

// Classifier turns free-text engineer updates into typed signals. It never
// returns an error: any oracle failure yields the default classification so a
// degraded oracle cannot block an engineer from posting.
type Classifier struct {
	logger *slog.Logger
	oracle oracle.Client
}

// NewClassifier constructs a classifier around the given oracle.
func NewClassifier(logger *slog.Logger, client oracle.Client) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = oracle.Disabled{}
	}
	return &Classifier{logger: logger, oracle: client}
}

type classifyReply struct {
	SignalType     string            `json:"signal_type"`
	Confidence     float64           `json:"confidence"`
	Entities       map[string]string `json:"entities"`
	NeedsCommander bool              `json:"needs_commander"`
	Summary        string            `json:"summary"`
}

// Classify maps one update to a Classification. Pure over its inputs plus the
// oracle call; no side effects.
func (c *Classifier) Classify(ctx context.Context, inc *models.Incident, thread, text string) Classification {
	reply, err := c.oracle.Complete(ctx, buildClassifyPrompt(inc, thread, text), 0.2, 300)
	if err != nil {
		metrics.ObserveOracleCall("classify", metrics.OutcomeError)
		c.logger.Debug("classification degraded", slog.String("thread", thread), slog.Any("error", err))
		return DefaultClassification()
	}

	var decoded classifyReply
	if err := oracle.Decode(reply, &decoded); err != nil {
		metrics.ObserveOracleCall("classify", metrics.OutcomeError)
		c.logger.Debug("classification reply rejected", slog.String("thread", thread), slog.Any("error", err))
		return DefaultClassification()
	}
	metrics.ObserveOracleCall("classify", metrics.OutcomeSuccess)

	kind := models.SignalKind(decoded.SignalType)
	if !models.ValidSignalKind(kind) {
		return DefaultClassification()
	}

	confidence := decoded.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	entities := decoded.Entities
	if entities == nil {
		entities = map[string]string{}
	}

	return Classification{
		Kind:       kind,
		Confidence: confidence,
		Entities:   entities,
		Trigger:    decoded.NeedsCommander,
		Summary:    decoded.Summary,
	}
}
