// Package monitor implements the fleet monitor: a control-plane service which
// tracks the live brokers of a publish/subscribe fleet and the subscriber
// load each carries, redistributes arriving subscriber batches across the
// live broker set, and propagates broker join and leave events to the other
// brokers of the fleet.
//
// Brokers hold a long-lived session with the Monitor, over which they report
// subscription deltas and receive peer membership events. Subscribers perform
// a one-shot request which returns, for each live broker, the number of
// subscriptions to place there. The Monitor itself moves no pub/sub traffic,
// and all of its state lives in memory: it's rebuilt from live sessions after
// a restart.
//
// The Registry is the authoritative load state. The PeerList is a distinct,
// fire-and-forget fan-out of membership events. They are guarded by separate
// mutexes which are never held together.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmon_connections_total",
		Help: "Cumulative number of monitor connections, by handshake role.",
	}, []string{"role"})
	handshakeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetmon_handshake_failures_total",
		Help: "Cumulative number of connections aborted before a handshake completed.",
	})
	duplicateBrokersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetmon_duplicate_brokers_total",
		Help: "Cumulative number of broker sessions rejected as duplicate registrations.",
	})
	brokersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetmon_brokers",
		Help: "Number of brokers currently registered with the monitor.",
	})
	subscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetmon_subscriptions",
		Help: "Running total of subscriptions reported across registered brokers.",
	})
	loadDeltasTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmon_load_deltas_total",
		Help: "Cumulative number of subscription deltas reported by brokers, by tag.",
	}, []string{"tag"})
	peerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmon_peer_events_total",
		Help: "Cumulative number of peer membership events delivered to brokers, by tag and status.",
	}, []string{"tag", "status"})
	allocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmon_allocations_total",
		Help: "Cumulative number of subscriber allocation requests, by status.",
	}, []string{"status"})
	requestedSubscriptions = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetmon_requested_subscriptions",
		Help:    "Number of new subscriptions requested per subscriber allocation.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// Keys for monitor metrics.
const (
	metricsOk   = "ok"
	metricsFail = "fail"
)
