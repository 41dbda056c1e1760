package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.ObserveTurn("high", 65)
	m.ObserveTurn("high", 70)
	m.ObserveTriage("high_risk")
	m.ObserveTriage("")
	m.ObserveReply(10*time.Millisecond, "")
	m.ObserveReply(time.Second, "timeout")
	m.SessionCreated()
	m.SessionsExpiredAdd(3)
	m.RateLimitedInc()
	m.LexiconReloaded(false)

	assert.InDelta(t, 2, counterValue(t, m.Turns.WithLabelValues("high")), 0)
	assert.InDelta(t, 1, counterValue(t, m.Triage.WithLabelValues("high_risk")), 0)
	assert.InDelta(t, 1, counterValue(t, m.Triage.WithLabelValues("checkin")), 0)
	assert.InDelta(t, 1, counterValue(t, m.ReplyFallbacks.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 1, counterValue(t, m.SessionsCreated), 0)
	assert.InDelta(t, 3, counterValue(t, m.SessionsExpired), 0)
	assert.InDelta(t, 1, counterValue(t, m.RateLimited), 0)
	assert.InDelta(t, 1, counterValue(t, m.LexiconReloads.WithLabelValues("error")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("low", 0)
		m.ObserveTriage("")
		m.ObserveReply(time.Second, "provider")
		m.SessionCreated()
		m.SessionsExpiredAdd(1)
		m.RateLimitedInc()
		m.LexiconReloaded(true)
	})
}
