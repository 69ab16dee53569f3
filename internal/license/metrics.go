package license

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codebridge",
		Subsystem: "license",
		Name:      "verifications_total",
		Help:      "License verification results by outcome.",
	}, []string{"outcome"})

	issuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codebridge",
		Subsystem: "license",
		Name:      "issued_total",
		Help:      "Licenses issued by plan, including idempotent replays.",
	}, []string{"plan", "replay"})

	deviceAbuseWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codebridge",
		Subsystem: "license",
		Name:      "device_abuse_warnings_total",
		Help:      "Verifications whose device set exceeded the advisory threshold.",
	})
)
