package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ibcsim",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Messages handled by relay participants.",
		},
		[]string{"node", "role", "direction", "outcome"},
	)
	forwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ibcsim",
			Subsystem: "relay",
			Name:      "forward_duration_seconds",
			Help:      "Outbound connect+send duration in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"node", "role", "direction"},
	)
	zoneBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibcsim",
			Subsystem: "zone",
			Name:      "balance",
			Help:      "Current token balance of a zone node.",
		},
		[]string{"zone"},
	)
	hubLedger = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ibcsim",
			Subsystem: "hub",
			Name:      "ledger_balance",
			Help:      "Advisory hub ledger balance per zone.",
		},
		[]string{"zone"},
	)
	issuances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ibcsim",
			Subsystem: "loadgen",
			Name:      "issuances_total",
			Help:      "Transfer commands issued by the load generator.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			relayMessages, forwardDuration,
			zoneBalance, hubLedger, issuances,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordRelay counts one message handled by node acting as role.
func RecordRelay(node, role, direction, outcome string) {
	RegisterMetrics()
	relayMessages.WithLabelValues(node, role, direction, outcome).Inc()
}

func RecordForward(node, role, direction string, duration time.Duration) {
	RegisterMetrics()
	forwardDuration.WithLabelValues(node, role, direction).Observe(duration.Seconds())
}

func SetZoneBalance(zone string, balance int64) {
	RegisterMetrics()
	zoneBalance.WithLabelValues(zone).Set(float64(balance))
}

func SetHubLedger(zone string, balance int64) {
	RegisterMetrics()
	hubLedger.WithLabelValues(zone).Set(float64(balance))
}

func RecordIssuance(outcome string) {
	RegisterMetrics()
	issuances.WithLabelValues(outcome).Inc()
}
