package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry/discovery metrics
	ServiceInstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breezechat_service_instances_total",
			Help: "Number of discovered instances per pooled service name",
		},
		[]string{"service"},
	)

	// Balancer metrics
	BalancerPicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breezechat_balancer_picks_total",
			Help: "Total number of ServiceChannel.Pick calls by service and outcome",
		},
		[]string{"service", "outcome"}, // outcome: ok, empty_pool
	)

	BalancerBusyLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breezechat_balancer_busy_level",
			Help: "In-flight busy_level of a pooled connection",
		},
		[]string{"service", "address"},
	)

	// RPC client metrics
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breezechat_rpc_calls_total",
			Help: "Total number of outbound RPC calls by method and status",
		},
		[]string{"method", "status"}, // status: ok, error, timeout
	)

	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breezechat_rpc_call_duration_seconds",
			Help:    "Outbound RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Broker metrics
	BrokerPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breezechat_broker_publish_total",
			Help: "Total number of broker publish attempts by outcome",
		},
		[]string{"outcome"}, // ok, rejected
	)

	BrokerConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breezechat_broker_consumed_total",
			Help: "Total number of broker messages handled by outcome",
		},
		[]string{"outcome"}, // acked, nacked, dropped_poison
	)

	// Storage consumer metrics
	StorageConsumerCompensationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breezechat_storage_consumer_compensations_total",
			Help: "Total number of compensating index deletes after a relational insert failure",
		},
	)

	StorageConsumerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breezechat_storage_consumer_duration_seconds",
			Help:    "Time to handle one broker message in the storage consumer",
			Buckets: prometheus.DefBuckets,
		},
	)

	// User/Transmit service operation metrics
	UserOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breezechat_user_operations_total",
			Help: "Total number of UserService operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	TransmitTargetsResolved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breezechat_transmit_targets_resolved",
			Help:    "Number of target user ids resolved per GetTransmitTarget call",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)
)

func init() {
	prometheus.MustRegister(ServiceInstancesTotal)
	prometheus.MustRegister(BalancerPicksTotal)
	prometheus.MustRegister(BalancerBusyLevel)
	prometheus.MustRegister(RPCCallsTotal)
	prometheus.MustRegister(RPCCallDuration)
	prometheus.MustRegister(BrokerPublishTotal)
	prometheus.MustRegister(BrokerConsumedTotal)
	prometheus.MustRegister(StorageConsumerCompensationsTotal)
	prometheus.MustRegister(StorageConsumerDuration)
	prometheus.MustRegister(UserOperationsTotal)
	prometheus.MustRegister(TransmitTargetsResolved)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
