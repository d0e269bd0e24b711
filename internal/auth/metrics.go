package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	grantsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "token_service",
		Name:      "grants_issued_total",
		Help:      "Successful token grants by grant type.",
	}, []string{"grant_type"})

	grantsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "token_service",
		Name:      "grants_denied_total",
		Help:      "Rejected token grants by grant type and OAuth2 error code.",
	}, []string{"grant_type", "error"})
)
