package model

import "github.com/prometheus/client_golang/prometheus"

// ServiceMetrics are the process-wide counters of spec §3: start time, total
// requests, authorized requests, not-authorized requests, error count.
//
// These are implemented as prometheus counters/gauges (the teacher's stack
// already pulls in client_golang for exactly this purpose) rather than
// hand-rolled atomics, and are registered once at service startup.
type ServiceMetrics struct {
	StartTime       prometheus.Gauge
	RequestsTotal   prometheus.Counter
	Authorized      prometheus.Counter
	NotAuthorized   prometheus.Counter
	Errors          prometheus.Counter
}

// NewServiceMetrics constructs and registers the service metrics on the
// given registerer (use prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests).
func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	m := &ServiceMetrics{
		StartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pep_service_start_time_seconds",
			Help: "Unix timestamp at which the service started.",
		}),
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_requests_total",
			Help: "Total number of authorization requests processed.",
		}),
		Authorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_requests_authorized_total",
			Help: "Total number of requests resulting in a Permit decision.",
		}),
		NotAuthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_requests_not_authorized_total",
			Help: "Total number of requests resulting in a Deny/NotApplicable decision.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pep_requests_error_total",
			Help: "Total number of requests resulting in an Indeterminate decision due to an error.",
		}),
	}
	reg.MustRegister(m.StartTime, m.RequestsTotal, m.Authorized, m.NotAuthorized, m.Errors)
	return m
}

// RecordDecision updates the Authorized/NotAuthorized/Errors counters for a
// single final decision.
func (m *ServiceMetrics) RecordDecision(d Decision, errored bool) {
	m.RequestsTotal.Inc()
	switch {
	case errored || d == Indeterminate:
		m.Errors.Inc()
	case d == Permit:
		m.Authorized.Inc()
	default:
		m.NotAuthorized.Inc()
	}
}
