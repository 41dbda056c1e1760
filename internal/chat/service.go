// Package chat runs one conversational turn through the safety pipeline:
// score, escalate, persist, and reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/darktomcat119/Health-AI-MVP/internal/anonymize"
	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/metrics"
	"github.com/darktomcat119/Health-AI-MVP/internal/reply"
	"github.com/darktomcat119/Health-AI-MVP/internal/risk"
	"github.com/darktomcat119/Health-AI-MVP/internal/store"
	"github.com/darktomcat119/Health-AI-MVP/internal/triage"
	"github.com/google/uuid"
)

const (
	DefaultMaxMessageLength = 2000
	DefaultReplyTimeout     = 20 * time.Second

	// recentForProfessional is how many messages a handoff summary carries.
	recentForProfessional = 5
)

// Options tune a Service. Zero values select the defaults.
type Options struct {
	MaxMessageLength int
	ReplyTimeout     time.Duration
	Clock            func() time.Time
	NewID            func() string
	Anonymizer       *anonymize.Anonymizer
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Service orchestrates turns. Work on one session is serialized; different
// sessions proceed in parallel.
type Service struct {
	store     store.Store
	scorer    *risk.Scorer
	evaluator *triage.Evaluator
	generator reply.Generator
	anon      *anonymize.Anonymizer
	metrics   *metrics.Metrics
	logger    *slog.Logger

	maxLen       int
	replyTimeout time.Duration
	now          func() time.Time
	newID        func() string
	locks        *keyedMutex
}

// NewService wires the pipeline components.
func NewService(st store.Store, scorer *risk.Scorer, evaluator *triage.Evaluator, gen reply.Generator, opts Options) *Service {
	s := &Service{
		store:        st,
		scorer:       scorer,
		evaluator:    evaluator,
		generator:    gen,
		anon:         opts.Anonymizer,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		maxLen:       opts.MaxMessageLength,
		replyTimeout: opts.ReplyTimeout,
		now:          opts.Clock,
		newID:        opts.NewID,
		locks:        newKeyedMutex(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.anon == nil {
		s.anon = anonymize.New(s.logger)
	}
	if s.maxLen <= 0 {
		s.maxLen = DefaultMaxMessageLength
	}
	if s.replyTimeout <= 0 {
		s.replyTimeout = DefaultReplyTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = NewSessionID
	}
	return s
}

// NewSessionID returns "sess_" followed by 12 random hex characters.
func NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// TurnRequest is one user message. An empty SessionID starts a new session.
type TurnRequest struct {
	SessionID string
	Message   string
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	SessionID       string                  `json:"session_id"`
	Reply           string                  `json:"bot_response"`
	RiskScore       int                     `json:"risk_score"`
	RiskLevel       domain.RiskLevel        `json:"risk_level"`
	TriageActivated bool                    `json:"triage_activated"`
	HumanHandoff    bool                    `json:"human_handoff"`
	Resources       []domain.CrisisResource `json:"crisis_resources,omitempty"`
	HandoffReason   domain.HandoffReason    `json:"handoff_reason,omitempty"`
	MessageCount    int                     `json:"session_message_count"`
	Timestamp       time.Time               `json:"timestamp"`
}

// ProfessionalContext summarizes a session for the professional taking over.
type ProfessionalContext struct {
	SessionID        string               `json:"session_id"`
	MessageCount     int                  `json:"message_count"`
	DurationMinutes  float64              `json:"duration_minutes"`
	CurrentRiskLevel domain.RiskLevel     `json:"current_risk_level"`
	CumulativeRisk   int                  `json:"cumulative_risk"`
	HighRiskCount    int                  `json:"high_risk_count"`
	TriageActivated  bool                 `json:"triage_activated"`
	HandoffReason    domain.HandoffReason `json:"handoff_reason"`
	RecentMessages   []domain.Message     `json:"recent_messages"`
}

// ValidateMessage rejects blank messages and those longer than the limit.
func (s *Service) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is empty", domain.ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(message); n > s.maxLen {
		return fmt.Errorf("%w: message has %d characters, limit is %d", domain.ErrInvalidMessage, n, s.maxLen)
	}
	return nil
}

// ProcessTurn scores the message, applies triage, commits the user side of
// the turn, then produces and commits the reply.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if err := s.ValidateMessage(req.Message); err != nil {
		return nil, domain.WrapSession("chat.turn", req.SessionID, err)
	}

	session, isNew, unlock, err := s.resolve(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	score, err := s.scorer.Compute(req.Message, session)
	if err != nil {
		return nil, err
	}
	level := s.scorer.Classify(score)

	session.AppendUser(req.Message, score, level, s.now())

	result, err := s.evaluator.Evaluate(req.Message, score, level, session)
	if err != nil {
		return nil, err
	}
	session.Apply(result)

	if isNew {
		err = s.store.Create(ctx, session)
	} else {
		err = s.store.Update(ctx, session)
	}
	if err != nil {
		return nil, fmt.Errorf("commit user turn: %w", err)
	}
	if isNew {
		s.metrics.SessionCreated()
	}
	s.metrics.ObserveTurn(string(level), score)
	if result.HasOverride() {
		s.metrics.ObserveTriage(string(result.Reason))
	}

	text := result.Override
	if !result.HasOverride() {
		text = s.generate(ctx, session)
	}

	session.AppendAssistant(text, s.now())
	if err := s.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("commit reply: %w", err)
	}

	s.logger.Info("chat turn processed",
		"session_id", session.ID,
		"risk_score", score,
		"risk_level", level,
		"triage", result.Activated,
		"handoff", result.Handoff,
		"message_count", session.MessageCount(),
	)

	return &TurnResult{
		SessionID:       session.ID,
		Reply:           text,
		RiskScore:       score,
		RiskLevel:       level,
		TriageActivated: result.Activated,
		HumanHandoff:    result.Handoff,
		Resources:       result.Resources,
		HandoffReason:   result.Reason,
		MessageCount:    session.MessageCount(),
		Timestamp:       s.now().UTC(),
	}, nil
}

// resolve locks and loads the session, or mints a new one when id is empty
// or unknown. Client-supplied ids are never adopted for new sessions.
func (s *Service) resolve(ctx context.Context, id string) (*domain.Session, bool, func(), error) {
	if id != "" {
		unlock := s.locks.Lock(id)
		session, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			return session, false, unlock, nil
		case errors.Is(err, domain.ErrSessionExpired):
			unlock()
			s.metrics.SessionsExpiredAdd(1)
			return nil, false, nil, err
		case errors.Is(err, domain.ErrSessionNotFound):
			unlock()
			s.logger.Info("unknown session id, starting a new session", "requested_id", id)
		default:
			unlock()
			return nil, false, nil, fmt.Errorf("load session: %w", err)
		}
	}

	newID := s.newID()
	unlock := s.locks.Lock(newID)
	return domain.NewSession(newID, s.now()), true, unlock, nil
}

// generate asks the provider for a reply to the latest user message. Any
// provider failure yields the safe fallback; the committed state stands.
func (s *Service) generate(ctx context.Context, session *domain.Session) string {
	msgs := session.Messages
	current := msgs[len(msgs)-1]
	history := msgs[:len(msgs)-1]
	if len(history) > reply.MaxContextMessages {
		history = history[len(history)-reply.MaxContextMessages:]
	}

	sanitized := make([]domain.Message, len(history))
	for i, m := range history {
		if m.Role == domain.RoleUser {
			m.Content = s.anon.Anonymize(m.Content)
		}
		sanitized[i] = m
	}

	ctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	start := s.now()
	text, err := s.generator.Generate(ctx, reply.Request{
		SessionID:    session.ID,
		Message:      s.anon.Anonymize(current.Content),
		History:      sanitized,
		FirstContact: session.UserMessageCount() == 1,
	})
	elapsed := s.now().Sub(start)

	if err != nil {
		cause := "provider"
		if errors.Is(err, context.DeadlineExceeded) {
			cause = "timeout"
		}
		s.metrics.ObserveReply(elapsed, cause)
		s.logger.Warn("reply generation failed, using fallback",
			"session_id", session.ID,
			"cause", cause,
			"error", err,
		)
		return reply.SafeFallback
	}
	s.metrics.ObserveReply(elapsed, "")
	return text
}

// History returns a snapshot of the session.
func (s *Service) History(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionExpired) {
		s.metrics.SessionsExpiredAdd(1)
	}
	return session, err
}

// Handoff flags the session for a professional and returns a summary of it.
func (s *Service) Handoff(ctx context.Context, id string) (*ProfessionalContext, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			s.metrics.SessionsExpiredAdd(1)
		}
		return nil, err
	}

	session.MarkHandoff()
	session.MarkTriageActivated()
	if err := s.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("commit handoff: %w", err)
	}
	s.metrics.ObserveTriage(string(domain.ReasonManualTrigger))
	s.logger.Info("manual handoff triggered", "session_id", session.ID)

	return &ProfessionalContext{
		SessionID:        session.ID,
		MessageCount:     session.MessageCount(),
		DurationMinutes:  roundTenth(session.Duration().Minutes()),
		CurrentRiskLevel: session.CurrentRiskLevel,
		CumulativeRisk:   session.CumulativeRisk,
		HighRiskCount:    session.HighRiskCount,
		TriageActivated:  session.TriageActivated,
		HandoffReason:    domain.ReasonManualTrigger,
		RecentMessages:   append([]domain.Message(nil), session.RecentMessages(recentForProfessional)...),
	}, nil
}

// ActiveSessions returns the number of sessions that have not expired.
func (s *Service) ActiveSessions(ctx context.Context) (int, error) {
	return s.store.CountActive(ctx)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
