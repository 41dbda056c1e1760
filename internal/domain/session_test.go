package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func TestAppendUpdatesCounters(t *testing.T) {
	s := NewSession("sess_1", t0)
	assert.Equal(t, RiskLow, s.CurrentRiskLevel)

	s.AppendUser("first", 20, RiskLow, t0.Add(time.Minute))
	s.AppendAssistant("reply", t0.Add(time.Minute))
	s.AppendUser("second", 65, RiskHigh, t0.Add(2*time.Minute))
	s.AppendUser("third", 85, RiskCritical, t0.Add(3*time.Minute))

	assert.Equal(t, 4, s.MessageCount())
	assert.Equal(t, 3, s.UserMessageCount())
	assert.Equal(t, []int{20, 65, 85}, s.RiskScores)
	assert.Equal(t, 170, s.CumulativeRisk)
	assert.Equal(t, 2, s.HighRiskCount)
	assert.Equal(t, RiskCritical, s.CurrentRiskLevel)
	assert.Equal(t, 3*time.Minute, s.Duration())

	require.NotNil(t, s.Messages[0].RiskScore)
	assert.Equal(t, 20, *s.Messages[0].RiskScore)
	assert.Nil(t, s.Messages[1].RiskScore)
}

func TestExpiredIsStrict(t *testing.T) {
	s := NewSession("sess_1", t0)
	assert.False(t, s.Expired(t0.Add(time.Hour), time.Hour))
	assert.True(t, s.Expired(t0.Add(time.Hour+time.Nanosecond), time.Hour))

	// Activity does not extend the lifetime.
	s.AppendUser("hi", 0, RiskLow, t0.Add(59*time.Minute))
	assert.True(t, s.Expired(t0.Add(61*time.Minute), time.Hour))
}

func TestApplyNeverClearsFlags(t *testing.T) {
	s := NewSession("sess_1", t0)
	s.Apply(TriageResult{Activated: true})
	assert.True(t, s.TriageActivated)
	assert.False(t, s.HumanHandoff)

	s.Apply(TriageResult{Handoff: true})
	s.Apply(TriageResult{})
	assert.True(t, s.TriageActivated)
	assert.True(t, s.HumanHandoff)
}

func TestRecentMessages(t *testing.T) {
	s := NewSession("sess_1", t0)
	for i := range 7 {
		s.AppendUser(fmt.Sprintf("m%d", i), 0, RiskLow, t0)
	}
	recent := s.RecentMessages(5)
	require.Len(t, recent, 5)
	assert.Equal(t, "m2", recent[0].Content)
	assert.Len(t, s.RecentMessages(10), 7)
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSession("sess_1", t0)
	s.AppendUser("hi", 30, RiskLow, t0)

	c := s.Clone()
	*c.Messages[0].RiskScore = 99
	c.Messages[0].Content = "changed"
	c.RiskScores[0] = 99
	c.AppendUser("more", 10, RiskLow, t0)

	assert.Equal(t, 30, *s.Messages[0].RiskScore)
	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Equal(t, []int{30}, s.RiskScores)
	assert.Equal(t, 1, s.MessageCount())

	assert.Nil(t, NewSession("empty", t0).Clone().Messages)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestErrorWrapping(t *testing.T) {
	err := WrapSession("store.get", "sess_9", ErrSessionExpired)
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.Equal(t, "sess_9", SessionIDOf(err))
	assert.Equal(t, "store.get: session sess_9: session expired", err.Error())

	wrapped := fmt.Errorf("turn: %w", err)
	assert.Equal(t, "sess_9", SessionIDOf(wrapped))

	assert.NoError(t, WrapSession("op", "s", nil))
	assert.Equal(t, "risk.compute: risk scoring failed", WrapSession("risk.compute", "", ErrRiskScoring).Error())
}

func TestRiskLevelElevated(t *testing.T) {
	assert.False(t, RiskLow.Elevated())
	assert.False(t, RiskMedium.Elevated())
	assert.True(t, RiskHigh.Elevated())
	assert.True(t, RiskCritical.Elevated())
}
