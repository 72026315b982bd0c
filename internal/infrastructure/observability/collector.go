// Package observability turns engine events into Prometheus series.
// The collector subscribes to the event bus, so domain code never imports it.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

const namespace = "skillprog"

// Result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Collector holds every engine metric.
type Collector struct {
	XPGranted         *prometheus.CounterVec // labels: group
	XPGrantedAmount   *prometheus.CounterVec // labels: group
	XPSet             prometheus.Counter
	ActorResets       prometheus.Counter
	ClustersFormed    prometheus.Counter
	ClusterSimilarity prometheus.Histogram
	HyperBonuses      prometheus.Counter
	HyperBonusValue   prometheus.Histogram
	WeightRefreshes   prometheus.Counter

	TaxonomyReloads prometheus.Counter
	TaxonomyNodes   prometheus.Gauge
	TaxonomyTrees   prometheus.Gauge

	LedgerFlushes *prometheus.CounterVec // labels: result

	JobRuns     *prometheus.CounterVec   // labels: job, result
	JobDuration *prometheus.HistogramVec // labels: job

	BreakerState *prometheus.GaugeVec // labels: breaker
}

// NewCollector registers all metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		XPGranted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "grants_total",
			Help: "XP grants by top-level skill group.",
		}, []string{"group"}),
		XPGrantedAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "granted_xp_total",
			Help: "Sum of granted XP by top-level skill group.",
		}, []string{"group"}),
		XPSet: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "overwrites_total",
			Help: "Administrative XP overwrites.",
		}),
		ActorResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "actor_resets_total",
			Help: "Actors whose progression was dropped.",
		}),
		ClustersFormed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analysis", Name: "clusters_formed_total",
			Help: "Dynamic clusters formed during analysis.",
		}),
		ClusterSimilarity: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "analysis", Name: "cluster_similarity",
			Help:    "Average pairwise similarity of formed clusters.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		HyperBonuses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analysis", Name: "hyper_bonus_total",
			Help: "Hyper-specialization bonuses at or above the log threshold.",
		}),
		HyperBonusValue: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "analysis", Name: "hyper_bonus",
			Help:    "Logged hyper-specialization bonus values.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25},
		}),
		WeightRefreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "aggregation", Name: "weight_refreshes_total",
			Help: "Per-actor tree weight refreshes.",
		}),
		TaxonomyReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "taxonomy", Name: "reloads_total",
			Help: "Applied taxonomy reloads.",
		}),
		TaxonomyNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "taxonomy", Name: "nodes",
			Help: "Authored nodes in the active taxonomy.",
		}),
		TaxonomyTrees: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "taxonomy", Name: "trees",
			Help: "Trees in the active taxonomy.",
		}),
		LedgerFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "flushes_total",
			Help: "Ledger saves by result.",
		}, []string{"result"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_runs_total",
			Help: "Scheduled job runs by result.",
		}, []string{"job", "result"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_duration_seconds",
			Help:    "Scheduled job duration.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"job"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0 closed, 1 open, 2 half-open.",
		}, []string{"breaker"}),
	}
}

// Attach subscribes the collector to every event of bus.
func (c *Collector) Attach(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(c.Handle)
}

// Handle is a shared.EventHandler. Unknown events are ignored.
func (c *Collector) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.XPGrantedEvent:
		group := e.SkillID.Head()
		c.XPGranted.WithLabelValues(group).Inc()
		c.XPGrantedAmount.WithLabelValues(group).Add(e.Amount.Float())
	case shared.XPSetEvent:
		c.XPSet.Inc()
	case shared.ActorResetEvent:
		c.ActorResets.Inc()
	case shared.ClusterFormedEvent:
		c.ClustersFormed.Inc()
		c.ClusterSimilarity.Observe(e.AverageSimilarity)
	case shared.HyperBonusEvent:
		c.HyperBonuses.Inc()
		c.HyperBonusValue.Observe(e.HyperBonus)
	case shared.WeightsRefreshedEvent:
		c.WeightRefreshes.Inc()
	case shared.TaxonomyReloadedEvent:
		c.TaxonomyReloads.Inc()
		c.TaxonomyNodes.Set(float64(e.Nodes))
		c.TaxonomyTrees.Set(float64(len(e.Trees)))
	case shared.LedgerFlushedEvent:
		c.LedgerFlushes.WithLabelValues(ResultOK).Inc()
	case shared.LedgerFlushFailedEvent:
		c.LedgerFlushes.WithLabelValues(ResultFailed).Inc()
	}
	return nil
}

// ObserveJob records one scheduler run.
func (c *Collector) ObserveJob(job string, d time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	c.JobRuns.WithLabelValues(job, result).Inc()
	c.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// BreakerStateChanged is a circuitbreaker state callback.
func (c *Collector) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	c.BreakerState.WithLabelValues(name).Set(float64(to))
}
