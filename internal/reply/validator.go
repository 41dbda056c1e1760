package reply

import (
	"context"
	"log/slog"
	"strings"
)

// SafeFallback replaces any generated reply that fails validation, and is
// also used when a provider fails.
const SafeFallback = "I want to make sure I support you well. " +
	"Could you tell me a bit more about how you're feeling? I'm here to listen."

// blockedPatterns are matched as lowercase substrings.
var blockedPatterns = []struct {
	category string
	patterns []string
}{
	{"diagnosis", []string{
		"you have", "you are diagnosed", "you suffer from", "your condition is", "you might have",
	}},
	{"medication", []string{
		"you should take", "try taking", "medication", "prescription", "dosage", " mg ", "pills",
	}},
	{"minimizing", []string{
		"just calm down", "it's not that bad", "you're overreacting", "just relax",
		"get over it", "cheer up", "think positive",
	}},
}

// Validate returns the blocked category for text, or "" when text is safe.
func Validate(text string) string {
	lower := strings.ToLower(text)
	for _, b := range blockedPatterns {
		for _, p := range b.patterns {
			if strings.Contains(lower, p) {
				return b.category
			}
		}
	}
	return ""
}

// Validated wraps a Generator and replaces unsafe output with SafeFallback.
type Validated struct {
	next   Generator
	logger *slog.Logger
}

// NewValidated wraps next.
func NewValidated(next Generator, logger *slog.Logger) *Validated {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validated{next: next, logger: logger}
}

func (v *Validated) Generate(ctx context.Context, req Request) (string, error) {
	text, err := v.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if category := Validate(text); category != "" {
		v.logger.Warn("reply blocked", "session_id", req.SessionID, "category", category)
		return SafeFallback, nil
	}
	return text, nil
}
