package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -----------------------------------------------------------------------------
// Prometheus metrics for the stream core, served on /metrics
// -----------------------------------------------------------------------------

const namespace = "trading_console"

// EventsDispatched counts envelopes delivered to observers, by kind
var EventsDispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "events_dispatched_total",
		Help:      "Envelopes dispatched to observers",
	},
	[]string{"kind"},
)

// DispatchDuration measures one full dispatch pass (observers plus invalidation)
var DispatchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "dispatch_duration_ms",
		Help:      "Time spent dispatching one envelope in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
	},
	[]string{"kind"},
)

// MalformedMessages counts inbound messages dropped before dispatch
var MalformedMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "malformed_messages_total",
		Help:      "Inbound messages discarded because they could not be decoded",
	},
	[]string{"source"},
)

// ObserverPanics counts observer failures contained during dispatch
var ObserverPanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "observer_panics_total",
		Help:      "Observer panics recovered during dispatch",
	},
	[]string{"kind"},
)

// ReconnectsScheduled counts reconnect timers armed after transport failures
var ReconnectsScheduled = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "reconnects_scheduled_total",
		Help:      "Reconnect attempts scheduled after a transport failure",
	},
)

// ConnectionState is 1 for the current connection state and 0 for the others
var ConnectionState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "connection_state",
		Help:      "Current connection state of the event stream",
	},
	[]string{"state"},
)

// Invalidations counts cache keys marked stale by stream events
var Invalidations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Query keys invalidated by stream events",
	},
	[]string{"key"},
)

// QueryFetches counts query cache fetches by key and outcome (ok, error)
var QueryFetches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "fetches_total",
		Help:      "Query cache fetches against the bot backend",
	},
	[]string{"key", "result"},
)

// CandleMerges counts time-series merges by outcome (appended, replaced, inserted)
var CandleMerges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "candle_merges_total",
		Help:      "Candle merges into the local time-series store",
	},
	[]string{"result"},
)

// CandleWrites counts candles handed to the repository writer by outcome (saved, failed, dropped)
var CandleWrites = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "candle_writes_total",
		Help:      "Candles written through to the candle repository",
	},
	[]string{"result"},
)

// HubDropped counts websocket messages dropped for slow or full queues
var HubDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "dropped_messages_total",
		Help:      "Messages dropped because the hub queue or a client buffer was full",
	},
)

// -----------------------------------------------------------------------------

// SetConnectionState moves the state gauge to the given state
func SetConnectionState(current string, all []string) {
	for _, s := range all {
		if s == current {
			ConnectionState.WithLabelValues(s).Set(1)
		} else {
			ConnectionState.WithLabelValues(s).Set(0)
		}
	}
}
