// Package reply produces the conversational response for turns that triage
// did not override.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// MaxContextMessages is how many prior messages a provider is given.
const MaxContextMessages = 10

// Request is the sanitized input for one reply. User content in Message and
// History has already been anonymized.
type Request struct {
	SessionID    string
	Message      string
	History      []domain.Message
	FirstContact bool
}

// Generator produces a reply. Failures wrap domain.ErrProvider.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// New returns the generator for provider ("mock" or "openai"), wrapped in the
// safety validator.
func New(provider string, cfg OpenAIConfig, logger *slog.Logger) (Generator, error) {
	var g Generator
	switch strings.ToLower(provider) {
	case "", "mock":
		g = NewMock()
	case "openai":
		p, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		g = p
	default:
		return nil, fmt.Errorf("%w: provider %q is not supported", domain.ErrProvider, provider)
	}
	return NewValidated(g, logger), nil
}
