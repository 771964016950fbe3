package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parcelhop_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parcelhop_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	OffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parcelhop_offers_total",
		Help: "Offer messages appended, labeled by action (submit, accept, reject)",
	}, []string{"action"})

	EscrowsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parcelhop_escrows_created_total",
		Help: "Escrowed payments recorded",
	})

	CodeAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parcelhop_delivery_code_attempts_total",
		Help: "Delivery code submissions, labeled by outcome (match, miss, locked, invalid)",
	}, []string{"outcome"})

	CodeLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parcelhop_delivery_code_lockouts_total",
		Help: "Lockouts started by repeated wrong delivery codes",
	})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parcelhop_settlements_total",
		Help: "Settlement attempts after a matching code, labeled by result (settled, ledger_error, conflict)",
	}, []string{"result"})

	SettledNetAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parcelhop_settled_net_minor_units_total",
		Help: "Sum of net amounts credited to deliverers, in minor units",
	})
)
