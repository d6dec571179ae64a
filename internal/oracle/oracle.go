// Package oracle wraps the external text-generation service the engine
// consults for classification, analysis, and negotiation. The oracle is an
// untrusted, fallible black box: callers must treat every error, empty
// payload, or malformed reply as a signal to fall back to deterministic
// behaviour. The engine never retries an oracle call.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable signals that no oracle is configured.
var ErrUnavailable = errors.New("oracle unavailable")

// Client maps a prompt to generated text.
type Client interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Disabled implements Client but never answers. It is the nullable
// implementation used when no credentials are configured and in
// degraded-mode tests.
type Disabled struct{}

// Complete always fails with ErrUnavailable.
func (Disabled) Complete(context.Context, string, float64, int) (string, error) {
	return "", ErrUnavailable
}

// Decode parses an oracle reply into v. Replies wrapped in markdown code
// fences are unwrapped first. Empty or non-JSON payloads are errors; the
// caller degrades on any failure.
func Decode(raw string, v any) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return errors.New("empty oracle reply")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("malformed oracle reply: %w", err)
	}
	return nil
}
