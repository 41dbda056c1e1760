// Package metrics defines the Prometheus collectors of the chat service.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. All names are prefixed "safechat_".
//
//   - safechat_turns_total{level} - processed user turns by risk level
//   - safechat_risk_score - histogram of computed scores
//   - safechat_triage_total{reason} - escalations and check-ins by reason
//   - safechat_reply_fallbacks_total{cause} - replies replaced by the safe fallback
//   - safechat_reply_duration_seconds - reply generation latency
//   - safechat_sessions_created_total - sessions created
//   - safechat_sessions_expired_total - sessions removed after their lifetime
//   - safechat_rate_limited_total - requests rejected by the rate limiter
//   - safechat_lexicon_reloads_total{result} - keyword lexicon reload attempts
type Metrics struct {
	Turns           *prometheus.CounterVec
	RiskScore       prometheus.Histogram
	Triage          *prometheus.CounterVec
	ReplyFallbacks  *prometheus.CounterVec
	ReplyDuration   prometheus.Histogram
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	RateLimited     prometheus.Counter
	LexiconReloads  *prometheus.CounterVec
}

// New registers the collectors with reg. Use prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safechat_turns_total",
			Help: "Total number of processed user turns",
		}, []string{"level"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "safechat_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		Triage: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safechat_triage_total",
			Help: "Total number of triage outcomes that changed the reply",
		}, []string{"reason"}),
		ReplyFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safechat_reply_fallbacks_total",
			Help: "Total number of replies replaced by the safe fallback",
		}, []string{"cause"}),
		ReplyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "safechat_reply_duration_seconds",
			Help:    "Duration of reply generation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "safechat_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "safechat_sessions_expired_total",
			Help: "Total number of sessions removed after their lifetime",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "safechat_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		LexiconReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safechat_lexicon_reloads_total",
			Help: "Total number of keyword lexicon reload attempts",
		}, []string{"result"}),
	}
}

// ObserveTurn records one scored turn.
func (m *Metrics) ObserveTurn(level string, score int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(level).Inc()
	m.RiskScore.Observe(float64(score))
}

// ObserveTriage records a triage outcome. Check-ins have an empty reason.
func (m *Metrics) ObserveTriage(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "checkin"
	}
	m.Triage.WithLabelValues(reason).Inc()
}

// ObserveReply records generation latency and, when cause is non-empty, a fallback.
func (m *Metrics) ObserveReply(d time.Duration, cause string) {
	if m == nil {
		return
	}
	m.ReplyDuration.Observe(d.Seconds())
	if cause != "" {
		m.ReplyFallbacks.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *Metrics) SessionsExpiredAdd(n int) {
	if m == nil {
		return
	}
	m.SessionsExpired.Add(float64(n))
}

func (m *Metrics) RateLimitedInc() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) LexiconReloaded(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.LexiconReloads.WithLabelValues(result).Inc()
}
