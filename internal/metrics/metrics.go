// Package metrics holds the Prometheus collectors shared by the engine. They
// are registered once on the default registry and served by the HTTP server
// at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

const namespace = "paperbot"

// ============ Portfolio ============

// SlotsUsed is the number of occupied slots per strategy.
var SlotsUsed = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "slots_used",
		Help:      "Occupied portfolio slots",
	},
	[]string{"strategy"},
)

// QueueDepth is the overflow queue length per strategy.
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "queue_depth",
		Help:      "Candidates waiting for a free slot",
	},
	[]string{"strategy"},
)

// RealizedPnL is the cumulative realized P&L per strategy in USDC.
var RealizedPnL = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "realized_pnl_usdc",
		Help:      "Cumulative realized paper P&L",
	},
	[]string{"strategy"},
)

// Admissions counts admission outcomes (admitted, queued, duplicate, ...).
var Admissions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "admissions_total",
		Help:      "Admission decisions by outcome",
	},
	[]string{"strategy", "outcome"},
)

// Faults counts invariant violations.
var Faults = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "faults_total",
		Help:      "Invariant violations that halted a portfolio",
	},
	[]string{"strategy"},
)

// ============ Detection ============

// Rejections counts validator rejections by reason.
var Rejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "rejections_total",
		Help:      "Opportunities rejected by the validator",
	},
	[]string{"strategy", "reason"},
)

// ============ Polling ============

// PollResults counts poll outcomes (ok, error, rate_limited, timeout).
var PollResults = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "polls_total",
		Help:      "Poll attempts by result",
	},
	[]string{"strategy", "result"},
)

// PollDuration observes how long a poll took in seconds.
var PollDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "poll_duration_seconds",
		Help:      "Wall time of a single poll",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"strategy"},
)

// SourceHealth is 0 for green, 1 for yellow and 2 for red.
var SourceHealth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "source_health",
		Help:      "Source health (0 green, 1 yellow, 2 red)",
	},
	[]string{"strategy", "source"},
)

// ============ Event bus ============

// BusDrops counts events not delivered to a slow subscriber.
var BusDrops = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "dropped_total",
		Help:      "Events dropped for a full subscriber buffer",
	},
	[]string{"subscriber"},
)

// BusDetached counts subscribers removed for falling behind.
var BusDetached = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "detached_total",
		Help:      "Subscribers detached after too many consecutive drops",
	},
)

// ============ Relay / dashboard ============

// RelayErrors counts failed Redis writes by operation.
var RelayErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "errors_total",
		Help:      "Failed Redis publishes and stream appends",
	},
	[]string{"op"},
)

// WSClients tracks connected dashboard websocket clients.
var WSClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected dashboard websocket clients",
	},
)

// HealthValue maps a health state onto the SourceHealth gauge scale.
func HealthValue(h domain.Health) float64 {
	switch h {
	case domain.HealthYellow:
		return 1
	case domain.HealthRed:
		return 2
	default:
		return 0
	}
}
