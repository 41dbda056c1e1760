package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/lexicon"
	"github.com/darktomcat119/Health-AI-MVP/internal/reply"
	"github.com/darktomcat119/Health-AI-MVP/internal/risk"
	"github.com/darktomcat119/Health-AI-MVP/internal/store"
	"github.com/darktomcat119/Health-AI-MVP/internal/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc   *Service
	store *store.Memory
	clock *fakeClock
}

func newHarness(t *testing.T, gen reply.Generator, tweak ...func(*Options)) *harness {
	t.Helper()
	clock := &fakeClock{now: t0}

	keywords, err := lexicon.LoadKeywords("")
	require.NoError(t, err)
	scorer, err := risk.NewScorer(keywords, risk.DefaultThresholds(), nil)
	require.NoError(t, err)
	resources, err := lexicon.LoadResources("")
	require.NoError(t, err)
	evaluator, err := triage.NewEvaluator(resources, triage.Config{High: 60, Critical: 80, CheckinAfter: 15}, nil)
	require.NoError(t, err)

	if gen == nil {
		gen = reply.NewValidated(reply.NewMock(), nil)
	}
	st := store.NewMemory(store.Options{MaxAge: time.Hour, Clock: clock.Now})

	var seq atomic.Int64
	opts := Options{
		Clock: clock.Now,
		NewID: func() string { return fmt.Sprintf("sess_%012d", seq.Add(1)) },
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	return &harness{
		svc:   NewService(st, scorer, evaluator, gen, opts),
		store: st,
		clock: clock,
	}
}

func (h *harness) turn(t *testing.T, id, msg string) *TurnResult {
	t.Helper()
	res, err := h.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: id, Message: msg})
	require.NoError(t, err)
	return res
}

func TestUserRequestedHandoff(t *testing.T) {
	h := newHarness(t, nil)

	res := h.turn(t, "", "I want to talk to a real person")
	assert.Equal(t, "sess_000000000001", res.SessionID)
	assert.Equal(t, triage.ReplyUserRequested, res.Reply)
	assert.True(t, res.TriageActivated)
	assert.True(t, res.HumanHandoff)
	assert.Equal(t, domain.ReasonUserRequested, res.HandoffReason)
	assert.Empty(t, res.Resources)
	assert.Equal(t, 2, res.MessageCount)

	s, err := h.svc.History(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.True(t, s.HumanHandoff)
	assert.True(t, s.TriageActivated)
	assert.Equal(t, domain.RoleAssistant, s.Messages[1].Role)
}

func TestGreetingFirstContactAndReturning(t *testing.T) {
	h := newHarness(t, nil)

	first := h.turn(t, "", "Hello")
	assert.True(t, strings.HasPrefix(first.Reply, "Hello! Welcome"), first.Reply)
	assert.Equal(t, domain.RiskLow, first.RiskLevel)
	assert.Less(t, first.RiskScore, 30)
	assert.False(t, first.TriageActivated)
	assert.False(t, first.HumanHandoff)
	assert.Equal(t, domain.ReasonNone, first.HandoffReason)

	again := h.turn(t, first.SessionID, "hello again")
	assert.True(t, strings.HasPrefix(again.Reply, "Welcome back!"), again.Reply)
	assert.Equal(t, first.SessionID, again.SessionID)
	assert.Equal(t, 4, again.MessageCount)
}

func TestCriticalTurnCarriesResources(t *testing.T) {
	h := newHarness(t, nil)

	res := h.turn(t, "", "I WANT TO KILL MYSELF!!! I CAN'T ANYMORE, EVERYTHING IS TERRIBLE AWFUL HORRIBLE MISERABLE")
	assert.Equal(t, 80, res.RiskScore)
	assert.Equal(t, domain.RiskCritical, res.RiskLevel)
	assert.Equal(t, triage.ReplyCritical, res.Reply)
	assert.Equal(t, domain.ReasonCriticalRisk, res.HandoffReason)
	assert.Len(t, res.Resources, 4)

	s, err := h.svc.History(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.HighRiskCount)
	assert.Equal(t, 80, s.CumulativeRisk)
	assert.Equal(t, domain.RiskCritical, s.CurrentRiskLevel)
}

func TestHandoffFlagsNeverRevert(t *testing.T) {
	h := newHarness(t, nil)

	res := h.turn(t, "", "I need a professional")
	require.True(t, res.HumanHandoff)

	calm := h.turn(t, res.SessionID, "thanks, feeling a bit better")
	assert.False(t, calm.HumanHandoff)

	s, err := h.svc.History(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.True(t, s.HumanHandoff)
	assert.True(t, s.TriageActivated)
}

func TestLongSessionCheckin(t *testing.T) {
	h := newHarness(t, nil)

	id := h.turn(t, "", "hmm").SessionID
	for i := 0; i < 6; i++ {
		res := h.turn(t, id, "hmm")
		require.NotEqual(t, triage.ReplyLongSession, res.Reply)
	}

	res := h.turn(t, id, "hmm")
	assert.Equal(t, triage.ReplyLongSession, res.Reply)
	assert.False(t, res.TriageActivated)
	assert.False(t, res.HumanHandoff)
	assert.Equal(t, 16, res.MessageCount)
}

func TestUnknownSessionGetsFreshID(t *testing.T) {
	h := newHarness(t, nil)

	res := h.turn(t, "sess_clientmade", "hmm")
	assert.NotEqual(t, "sess_clientmade", res.SessionID)
	assert.Equal(t, 2, res.MessageCount)

	_, err := h.svc.History(context.Background(), "sess_clientmade")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestExpiredSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id := h.turn(t, "", "hmm").SessionID
	h.clock.Advance(61 * time.Minute)

	_, err := h.svc.ProcessTurn(ctx, TurnRequest{SessionID: id, Message: "hmm"})
	require.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = h.svc.History(ctx, id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	res := h.turn(t, id, "hmm")
	assert.NotEqual(t, id, res.SessionID)
}

func TestInvalidMessagesLeaveNoState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, msg := range []string{"", "   \n\t", strings.Repeat("é", 2001)} {
		_, err := h.svc.ProcessTurn(ctx, TurnRequest{Message: msg})
		require.ErrorIs(t, err, domain.ErrInvalidMessage)
	}
	n, err := h.svc.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	res := h.turn(t, "", strings.Repeat("é", 2000))
	assert.Equal(t, 2, res.MessageCount)
}

type failingGenerator struct{ err error }

func (f failingGenerator) Generate(context.Context, reply.Request) (string, error) {
	return "", f.err
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ reply.Request) (string, error) {
	<-ctx.Done()
	return "", fmt.Errorf("%w: %w", domain.ErrProvider, ctx.Err())
}

func TestProviderFailureFallsBack(t *testing.T) {
	h := newHarness(t, failingGenerator{err: fmt.Errorf("%w: 503", domain.ErrProvider)})

	res := h.turn(t, "", "I feel hopeless")
	assert.Equal(t, reply.SafeFallback, res.Reply)
	assert.Equal(t, 20, res.RiskScore)

	s, err := h.svc.History(context.Background(), res.SessionID)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, []int{20}, s.RiskScores)
	assert.Equal(t, reply.SafeFallback, s.Messages[1].Content)
}

func TestReplyTimeoutFallsBack(t *testing.T) {
	h := newHarness(t, blockingGenerator{}, func(o *Options) {
		o.ReplyTimeout = 20 * time.Millisecond
	})

	res := h.turn(t, "", "hmm")
	assert.Equal(t, reply.SafeFallback, res.Reply)
}

type recordingGenerator struct {
	mu   sync.Mutex
	reqs []reply.Request
}

func (r *recordingGenerator) Generate(_ context.Context, req reply.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return "ok", nil
}

func TestGeneratorSeesOnlyAnonymizedContent(t *testing.T) {
	rec := &recordingGenerator{}
	h := newHarness(t, rec)

	id := h.turn(t, "", "my name is Carlos Garcia, call me at 5512345678").SessionID
	h.turn(t, id, "hmm")

	require.Len(t, rec.reqs, 2)
	assert.Equal(t, "my name is [NAME], call me at [PHONE]", rec.reqs[0].Message)
	assert.True(t, rec.reqs[0].FirstContact)
	assert.Empty(t, rec.reqs[0].History)

	assert.False(t, rec.reqs[1].FirstContact)
	require.Len(t, rec.reqs[1].History, 2)
	assert.Equal(t, "my name is [NAME], call me at [PHONE]", rec.reqs[1].History[0].Content)
	assert.Equal(t, "ok", rec.reqs[1].History[1].Content)

	// The stored history keeps the original text.
	s, err := h.svc.History(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, s.Messages[0].Content, "Carlos Garcia")
}

func TestOverrideSkipsGenerator(t *testing.T) {
	rec := &recordingGenerator{}
	h := newHarness(t, rec)

	h.turn(t, "", "necesito hablar con alguien")
	assert.Empty(t, rec.reqs)
}

func TestConcurrentTurnsOnOneSession(t *testing.T) {
	h := newHarness(t, nil)
	id := h.turn(t, "", "hmm").SessionID

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.ProcessTurn(context.Background(), TurnRequest{SessionID: id, Message: "hmm"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	s, err := h.svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2*(workers+1))
	assert.Len(t, s.RiskScores, workers+1)
	for i, m := range s.Messages {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		assert.Equal(t, want, m.Role, "message %d", i)
	}
	assert.Zero(t, h.svc.locks.len())
}

func TestManualHandoff(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id := h.turn(t, "", "hmm").SessionID
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Minute)
		h.turn(t, id, "I feel sad")
	}

	pc, err := h.svc.Handoff(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, pc.SessionID)
	assert.Equal(t, 8, pc.MessageCount)
	assert.InDelta(t, 3.0, pc.DurationMinutes, 0.001)
	assert.Equal(t, domain.ReasonManualTrigger, pc.HandoffReason)
	assert.True(t, pc.TriageActivated)
	assert.Len(t, pc.RecentMessages, 5)
	assert.Equal(t, 15, pc.CumulativeRisk)

	s, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.HumanHandoff)

	_, err = h.svc.Handoff(ctx, "sess_nope")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestActiveSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.turn(t, "", "hmm")
	h.clock.Advance(30 * time.Minute)
	h.turn(t, "", "hmm")

	n, err := h.svc.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h.clock.Advance(31 * time.Minute)
	n, err = h.svc.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Regexp(t, `^sess_[0-9a-f]{12}$`, id)
	assert.NotEqual(t, id, NewSessionID())
}
