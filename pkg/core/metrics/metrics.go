// Package metrics records calculation telemetry two ways: Prometheus
// collectors for scraping, and bounded in-process aggregates (running sums,
// min, max, most recent samples) that feed diagnostics without unbounded
// growth.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaxRecentSamples bounds the per-stage sample ring.
const MaxRecentSamples = 1000

// Recorder is the single telemetry sink shared across stages.
type Recorder struct {
	stageDuration *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	outboxEvents  *prometheus.CounterVec
	webhooks      *prometheus.CounterVec

	mu     sync.Mutex
	stages map[string]*StageStats
}

// StageStats is the bounded in-process aggregate for one stage.
type StageStats struct {
	mu      sync.Mutex
	Count   int64
	Sum     time.Duration
	Min     time.Duration
	Max     time.Duration
	samples []time.Duration
}

// NewRecorder builds a recorder and registers its collectors. A nil
// registerer skips registration, which tests use.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calc_stage_duration_seconds",
			Help:    "Latency per pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calc_errors_total",
			Help: "Calculation errors by kind.",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calc_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calc_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calc_outbox_events_total",
			Help: "Outbox publisher outcomes.",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calc_webhook_deliveries_total",
			Help: "Webhook delivery outcomes.",
		}, []string{"outcome"}),
		stages: make(map[string]*StageStats),
	}
	if reg != nil {
		reg.MustRegister(r.stageDuration, r.errorsTotal, r.cacheHits, r.cacheMisses, r.outboxEvents, r.webhooks)
	}
	return r
}

// ObserveStage records one stage latency in both sinks.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())

	r.mu.Lock()
	st, ok := r.stages[stage]
	if !ok {
		st = &StageStats{}
		r.stages[stage] = st
	}
	r.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.Count++
	st.Sum += d
	if st.Count == 1 || d < st.Min {
		st.Min = d
	}
	if d > st.Max {
		st.Max = d
	}
	if len(st.samples) == MaxRecentSamples {
		copy(st.samples, st.samples[1:])
		st.samples[len(st.samples)-1] = d
	} else {
		st.samples = append(st.samples, d)
	}
}

// IncError counts one error by taxonomy kind.
func (r *Recorder) IncError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// CacheHit counts a hit for the named cache.
func (r *Recorder) CacheHit(cache string) {
	r.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss counts a miss for the named cache.
func (r *Recorder) CacheMiss(cache string) {
	r.cacheMisses.WithLabelValues(cache).Inc()
}

// OutboxOutcome counts an outbox publisher outcome: "published",
// "retried", or "dead_letter".
func (r *Recorder) OutboxOutcome(outcome string) {
	r.outboxEvents.WithLabelValues(outcome).Inc()
}

// WebhookOutcome counts a webhook delivery outcome: "delivered",
// "retried", or "failed".
func (r *Recorder) WebhookOutcome(outcome string) {
	r.webhooks.WithLabelValues(outcome).Inc()
}

// StageSnapshot is a point-in-time copy of one stage's aggregates.
type StageSnapshot struct {
	Count  int64
	Sum    time.Duration
	Min    time.Duration
	Max    time.Duration
	Recent int
}

// Snapshot returns aggregates for every stage seen so far.
func (r *Recorder) Snapshot() map[string]StageSnapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.stages))
	refs := make([]*StageStats, 0, len(r.stages))
	for name, st := range r.stages {
		names = append(names, name)
		refs = append(refs, st)
	}
	r.mu.Unlock()

	out := make(map[string]StageSnapshot, len(names))
	for i, st := range refs {
		st.mu.Lock()
		out[names[i]] = StageSnapshot{Count: st.Count, Sum: st.Sum, Min: st.Min, Max: st.Max, Recent: len(st.samples)}
		st.mu.Unlock()
	}
	return out
}
