package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "van_transfers"

var (
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reservations_total", Help: "Reservation attempts by outcome"},
		[]string{"outcome"},
	)
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "webhook_events_total", Help: "Payment webhook events by type and outcome"},
		[]string{"type", "outcome"},
	)
	SeatsSold         = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "seats_sold_total", Help: "Seats confirmed by payment"})
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Notifications written"})
	PushDeliveries    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "push_deliveries_total", Help: "Push delivery attempts by result"},
		[]string{"result"},
	)
	RealtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_sessions", Help: "Open websocket notification sessions"})
	SchedulerRuns    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "scheduler_runs_total", Help: "Scheduled job runs by job and outcome"},
		[]string{"job", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
