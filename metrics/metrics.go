// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	membersRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memberqr",
		Name:      "members_registered_total",
		Help:      "Members successfully registered.",
	})
	identifierCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memberqr",
		Name:      "identifier_collisions_total",
		Help:      "Candidate identifiers rejected because they were already taken.",
	})
	registrationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memberqr",
		Name:      "registration_retries_total",
		Help:      "Registrations re-allocated after a unique constraint violation.",
	})
	qrRendered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memberqr",
		Name:      "qr_rendered_total",
		Help:      "QR images rendered, by whether a logo was applied.",
	}, []string{"logo"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		membersRegistered,
		identifierCollisions,
		registrationRetries,
		qrRendered,
	)
}

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func MemberRegistered()    { membersRegistered.Inc() }
func IdentifierCollision() { identifierCollisions.Inc() }
func RegistrationRetry()   { registrationRetries.Inc() }

func QRRendered(withLogo bool) {
	qrRendered.WithLabelValues(strconv.FormatBool(withLogo)).Inc()
}
