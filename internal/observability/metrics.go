// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the authgate counters. A nil *Metrics records nothing.
type Metrics struct {
	Registrations     *prometheus.CounterVec
	Logins            *prometheus.CounterVec
	Lockouts          prometheus.Counter
	SessionRejections *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates the authgate metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_registrations_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_lockouts_total",
			Help: "Accounts locked after repeated failed logins",
		}),
		SessionRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_session_rejections_total",
				Help: "Requests to guarded routes rejected by reason",
			},
			[]string{"reason"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authgate_http_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.Registrations, m.Logins, m.Lockouts, m.SessionRejections, m.RequestDuration)
	return m
}

// RecordRegistration counts one registration attempt.
func (m *Metrics) RecordRegistration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(outcome string) {
	if m != nil {
		m.Logins.WithLabelValues(outcome).Inc()
	}
}

// RecordLockout counts an account transitioning to locked.
func (m *Metrics) RecordLockout() {
	if m != nil {
		m.Lockouts.Inc()
	}
}

// RecordSessionRejection counts a guarded request turned away.
func (m *Metrics) RecordSessionRejection(reason string) {
	if m != nil {
		m.SessionRejections.WithLabelValues(reason).Inc()
	}
}

// ObserveRequest records the latency of one API request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
	}
}
