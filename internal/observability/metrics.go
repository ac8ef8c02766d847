package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rtchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"room_type"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"room_type", "event"},
	)
	messagesPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_messages_persisted_total",
			Help: "Total number of messages committed to storage.",
		},
		[]string{"room_type"},
	)
	fanoutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_fanout_deliveries_total",
			Help: "Total number of events enqueued to subscribers.",
		},
		[]string{"room_type"},
	)
	fanoutDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_fanout_drops_total",
			Help: "Subscribers detached because their send buffer was full or broken.",
		},
		[]string{"room_type"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		messagesPersistedTotal,
		fanoutDeliveriesTotal,
		fanoutDropsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(roomType string) {
	wsActiveConnections.WithLabelValues(roomType).Inc()
}

func DecWSActive(roomType string) {
	wsActiveConnections.WithLabelValues(roomType).Dec()
}

func IncWSEvent(roomType, event string) {
	wsEventsTotal.WithLabelValues(roomType, event).Inc()
}

func IncMessagePersisted(roomType string) {
	messagesPersistedTotal.WithLabelValues(roomType).Inc()
}

func IncFanoutDelivery(roomType string) {
	fanoutDeliveriesTotal.WithLabelValues(roomType).Inc()
}

func IncFanoutDrop(roomType string) {
	fanoutDropsTotal.WithLabelValues(roomType).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
