package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contest"

// Publish outcomes
const (
	PublishUpdated = "updated"
	PublishMissing = "missing"
	PublishDenied  = "denied"
	PublishFailed  = "failed"
)

// Command outcomes
const (
	CommandApplied   = "applied"
	CommandRejected  = "rejected"
	CommandFailed    = "failed"
	CommandMalformed = "malformed"
)

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	Ticks               prometheus.Counter
	TickDuration        prometheus.Histogram
	ContestsRefreshed   prometheus.Counter
	ContestFailures     prometheus.Counter
	FeedFailures        prometheus.Counter
	SubmissionsRecorded prometheus.Counter
	Publishes           *prometheus.CounterVec
	Commands            *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Number of leaderboard refresh ticks run.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Wall time of one refresh tick.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ContestsRefreshed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contests_refreshed_total",
			Help:      "Running contests fully refreshed by the scheduler.",
		}),
		ContestFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contest_refresh_failures_total",
			Help:      "Contest refreshes that failed and were skipped for the tick.",
		}),
		FeedFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_failures_total",
			Help:      "Submission feed calls that failed or timed out.",
		}),
		SubmissionsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_recorded_total",
			Help:      "Accepted in-window submissions newly stored in the ledger.",
		}),
		Publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_publishes_total",
			Help:      "Leaderboard publish attempts by outcome.",
		}, []string{"outcome"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Queued commands handled, by command type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

// Discard returns collectors registered on a private registry
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
