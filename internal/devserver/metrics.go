// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the service's Prometheus collectors. Each Server owns its own
// registry so several servers can run in one process. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	clients         prometheus.Gauge
	eventsBroadcast *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	workflows       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wfbuilder",
			Subsystem: "devserver",
			Name:      "websocket_clients",
			Help:      "Connected progress WebSocket clients",
		}),
		eventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfbuilder",
			Subsystem: "devserver",
			Name:      "events_broadcast_total",
			Help:      "Progress events fanned out to clients",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wfbuilder",
			Subsystem: "devserver",
			Name:      "events_dropped_total",
			Help:      "Events skipped for clients with a full send buffer",
		}),
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfbuilder",
			Subsystem: "devserver",
			Name:      "workflows_total",
			Help:      "Finished simulated generations by outcome",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.clients,
		m.eventsBroadcast,
		m.eventsDropped,
		m.workflows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) clientConnected() {
	if m != nil {
		m.clients.Inc()
	}
}

func (m *Metrics) clientDisconnected() {
	if m != nil {
		m.clients.Dec()
	}
}

func (m *Metrics) broadcast(kind string) {
	if m != nil {
		m.eventsBroadcast.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) finished(status string) {
	if m != nil {
		m.workflows.WithLabelValues(status).Inc()
	}
}
