package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notification"

var requestMetrics = promauto.NewSummaryVec(
	prometheus.SummaryOpts{
		Namespace:  namespace,
		Subsystem:  "http",
		Name:       "request",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	},
	[]string{"status", "method"},
)

var publishedMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "messages_total",
	},
	[]string{"status"},
)

var deliveryOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "deliveries_total",
	},
	[]string{"outcome"},
)

var persistDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "persist_seconds",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

func ObserveRequest(methodName string, status int, duration time.Duration) {
	requestMetrics.WithLabelValues(strconv.Itoa(status), methodName).Observe(duration.Seconds())
}

func ObservePublish(err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	publishedMessages.WithLabelValues(status).Inc()
}

// ObserveDelivery counts the terminal state of one delivery attempt.
func ObserveDelivery(outcome string) {
	deliveryOutcomes.WithLabelValues(outcome).Inc()
}

func ObservePersist(result string, duration time.Duration) {
	persistDuration.WithLabelValues(result).Observe(duration.Seconds())
}
