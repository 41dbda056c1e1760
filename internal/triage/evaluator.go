// Package triage decides, for each scored message, whether the conversation
// is escalated to a human professional.
package triage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/lexicon"
)

// HumanRequestPhrases are matched case-insensitively as substrings.
var HumanRequestPhrases = []string{
	"talk to a person",
	"real person",
	"talk to someone",
	"speak to a human",
	"want a therapist",
	"need a professional",
	"talk to a doctor",
	"need help now",
	"speak to someone real",
	"hablar con alguien",
	"necesito hablar con alguien",
}

// Pre-authored replies that replace generated content.
const (
	ReplyUserRequested = "Of course. I'm connecting you with a professional right now. " +
		"They will have the context of our conversation so you don't have to repeat anything. " +
		"Please stay with me while I connect you."

	ReplyCritical = "I hear you, and what you're feeling matters. " +
		"I want to make sure you get the right support right now. " +
		"I'm connecting you with a professional immediately.\n\n" +
		"If you need to talk to someone right now, these lines are available 24/7:\n" +
		"• Linea de la Vida: 800-911-2000 (free, national)\n" +
		"• SAPTEL: 55 5259-8121\n" +
		"• Emergency: 911\n\n" +
		"A professional is being notified right now. Please stay here."

	ReplyHighRisk = "Thank you for sharing that with me. " +
		"I think it would be really helpful for you to talk with one of our professionals. " +
		"I'm going to connect you now. They'll be able to see our conversation " +
		"so you can continue from where we are."

	ReplyLongSession = "We've been talking for a while, and I want to check in with you. " +
		"How are you feeling right now? " +
		"If you'd like to talk to a professional at any point, just let me know."
)

// DefaultCheckinAfter is the message count that triggers a check-in.
const DefaultCheckinAfter = 15

// Config holds the score thresholds and the check-in message count.
type Config struct {
	High         int
	Critical     int
	CheckinAfter int
}

// Evaluator applies the escalation rules in a fixed order; the first rule
// that matches decides the result.
type Evaluator struct {
	cfg       Config
	resources []domain.CrisisResource
	logger    *slog.Logger
}

// NewEvaluator returns an error when no crisis resources are configured.
func NewEvaluator(resources []domain.CrisisResource, cfg Config, logger *slog.Logger) (*Evaluator, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("%w: no crisis resources configured", domain.ErrTriage)
	}
	if cfg.High <= 0 || cfg.Critical <= cfg.High {
		return nil, fmt.Errorf("%w: invalid thresholds high=%d critical=%d", domain.ErrTriage, cfg.High, cfg.Critical)
	}
	if cfg.CheckinAfter <= 0 {
		cfg.CheckinAfter = DefaultCheckinAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		cfg:       cfg,
		resources: append([]domain.CrisisResource(nil), resources...),
		logger:    logger,
	}, nil
}

// Resources returns a copy of the configured crisis resources.
func (e *Evaluator) Resources() []domain.CrisisResource {
	return append([]domain.CrisisResource(nil), e.resources...)
}

// Evaluate inspects the raw message and the session as it is after the
// message was appended. It never mutates the session.
//
// Rules, first match wins:
//  1. the user asks for a human
//  2. score at or above the critical threshold
//  3. score at or above the high threshold
//  4. a long session that has never been escalated gets a check-in
func (e *Evaluator) Evaluate(message string, score int, level domain.RiskLevel, session *domain.Session) (domain.TriageResult, error) {
	if session == nil {
		return domain.TriageResult{}, domain.WrapSession("triage.evaluate", "", fmt.Errorf("%w: nil session", domain.ErrTriage))
	}
	if score < 0 || score > 100 {
		return domain.TriageResult{}, domain.WrapSession("triage.evaluate", session.ID,
			fmt.Errorf("%w: score %d out of range", domain.ErrTriage, score))
	}

	var res domain.TriageResult
	switch {
	case RequestsHuman(message):
		res = domain.TriageResult{
			Activated: true,
			Handoff:   true,
			Override:  ReplyUserRequested,
			Reason:    domain.ReasonUserRequested,
		}
	case score >= e.cfg.Critical:
		res = domain.TriageResult{
			Activated: true,
			Handoff:   true,
			Resources: e.Resources(),
			Override:  ReplyCritical,
			Reason:    domain.ReasonCriticalRisk,
		}
	case score >= e.cfg.High:
		res = domain.TriageResult{
			Activated: true,
			Handoff:   true,
			Override:  ReplyHighRisk,
			Reason:    domain.ReasonHighRisk,
		}
	case session.MessageCount() >= e.cfg.CheckinAfter && !session.TriageActivated:
		res = domain.TriageResult{Override: ReplyLongSession}
	default:
		return res, nil
	}

	e.logger.Info("triage rule matched",
		"session_id", session.ID,
		"score", score,
		"level", level,
		"reason", res.Reason,
		"handoff", res.Handoff,
	)
	return res, nil
}

// RequestsHuman reports whether message asks to speak with a person.
func RequestsHuman(message string) bool {
	lower := lexicon.Normalize(message)
	for _, p := range HumanRequestPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
