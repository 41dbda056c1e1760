// Package domain contains the core types of the clinical chat service.
package domain

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a session's history. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	RiskScore *int      `json:"risk_score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds all conversation state for one user interaction.
type Session struct {
	ID               string
	Messages         []Message
	RiskScores       []int
	CumulativeRisk   int
	CurrentRiskLevel RiskLevel
	HighRiskCount    int
	TriageActivated  bool
	HumanHandoff     bool
	CreatedAt        time.Time
	LastActivity     time.Time
}

// NewSession returns an empty session created at now.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:               id,
		CurrentRiskLevel: RiskLow,
		CreatedAt:        now,
		LastActivity:     now,
	}
}

// MessageCount returns the total number of messages in the session.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// UserMessageCount returns the number of user-authored messages.
func (s *Session) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Duration returns the time between creation and the last appended message.
func (s *Session) Duration() time.Duration {
	return s.LastActivity.Sub(s.CreatedAt)
}

// Expired reports whether the session is older than maxAge at now.
// Activity does not extend the lifetime.
func (s *Session) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.CreatedAt) > maxAge
}

// AppendUser records a scored user message and updates the risk counters.
func (s *Session) AppendUser(content string, score int, level RiskLevel, now time.Time) {
	sc := score
	s.Messages = append(s.Messages, Message{
		Role:      RoleUser,
		Content:   content,
		RiskScore: &sc,
		Timestamp: now,
	})
	s.RiskScores = append(s.RiskScores, score)
	s.CumulativeRisk += score
	s.CurrentRiskLevel = level
	if level.Elevated() {
		s.HighRiskCount++
	}
	s.LastActivity = now
}

// AppendAssistant records an unscored assistant reply.
func (s *Session) AppendAssistant(content string, now time.Time) {
	s.Messages = append(s.Messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: now,
	})
	s.LastActivity = now
}

// MarkTriageActivated sets the triage flag. It never clears it.
func (s *Session) MarkTriageActivated() {
	s.TriageActivated = true
}

// MarkHandoff flags the session for a human professional. It never clears it.
func (s *Session) MarkHandoff() {
	s.HumanHandoff = true
}

// Apply folds the flags of a triage result into the session.
func (s *Session) Apply(r TriageResult) {
	if r.Activated {
		s.MarkTriageActivated()
	}
	if r.Handoff {
		s.MarkHandoff()
	}
}

// RecentMessages returns the last n messages.
func (s *Session) RecentMessages(n int) []Message {
	if n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clone returns a deep copy so that callers can mutate it without
// affecting the stored value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
	}
	for i, m := range s.Messages {
		if m.RiskScore != nil {
			v := *m.RiskScore
			m.RiskScore = &v
		}
		c.Messages[i] = m
	}
	c.RiskScores = append([]int(nil), s.RiskScores...)
	return &c
}
