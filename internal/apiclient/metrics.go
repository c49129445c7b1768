package apiclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes recorded in blindbox_client_token_refresh_total.
const (
	refreshOK             = "ok"
	refreshFailed         = "failed"
	refreshNoRefreshToken = "no_refresh_token"
	refreshReused         = "reused"
)

type metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blindbox",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "REST calls by method and response code (\"error\" for transport failures).",
		}, []string{"method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blindbox",
			Subsystem: "client",
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.refreshes)
	}
	return m
}

func (m *metrics) request(method string, code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(method, label).Inc()
}

func (m *metrics) refresh(outcome string) { m.refreshes.WithLabelValues(outcome).Inc() }
