package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsecheck_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// EmailsSent counts outbound email deliveries by kind (verification|password_reset|invitation)
	// and result (sent|failed).
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsecheck_emails_sent_total",
			Help: "Total number of outbound email deliveries",
		},
		[]string{"kind", "result"},
	)

	// TeamJoins counts successful team joins by method (invite_code|created).
	TeamJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsecheck_team_joins_total",
			Help: "Total number of team memberships established",
		},
		[]string{"method"},
	)

	// ActiveSessions tracks active sessions (not expired or logged out).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsecheck_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsecheck_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
