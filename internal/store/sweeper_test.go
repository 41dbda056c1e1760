package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSweeperRemovesExpiredAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := &fakeClock{now: t0}
	st := NewMemory(Options{MaxAge: time.Hour, Clock: clock.Now})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, st.Create(ctx, domain.NewSession("sess_1", t0)))
	require.NoError(t, st.Create(ctx, domain.NewSession("sess_2", t0)))
	clock.Advance(61 * time.Minute)

	var removed atomic.Int64
	done := StartSweeper(ctx, st, 5*time.Millisecond, func(n int) {
		removed.Add(int64(n))
	})

	require.Eventually(t, func() bool { return removed.Load() == 2 }, time.Second, 5*time.Millisecond)

	n, err := st.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweeperDefaultInterval(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := StartSweeper(ctx, NewMemory(Options{MaxAge: time.Hour}), 0, nil)
	cancel()
	<-done
}
