package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codebridge",
		Subsystem: "usage",
		Name:      "checks_total",
		Help:      "Usage limiter decisions by tier and verdict.",
	}, []string{"tier", "verdict"})

	quotaDenials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codebridge",
		Subsystem: "usage",
		Name:      "quota_denials_total",
		Help:      "Free-tier actions denied because the daily quota was exhausted.",
	})
)
