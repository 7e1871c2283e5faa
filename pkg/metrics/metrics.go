/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of ipguard.
 *
 * ipguard is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * ipguard is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ListCollector holds the metrics of one rule list.
type ListCollector struct {
	Entries  prometheus.Gauge
	Warnings prometheus.Gauge
	Reloads  prometheus.Counter
	Queries  *prometheus.CounterVec
}

const (
	ResultMatched  = "matched"
	ResultMissed   = "missed"
	ResultCacheHit = "cache_hit"
)

// NewListCollector returns a ListCollector. If reg is not nil, collectors
// are registered to it.
func NewListCollector(reg prometheus.Registerer) *ListCollector {
	c := &ListCollector{
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entries",
			Help: "The number of valid entries in the list",
		}),
		Warnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warnings",
			Help: "The number of invalid lines skipped by the last reload",
		}),
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reload_total",
			Help: "The total number of list reloads",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "query_total",
			Help: "The total number of lookups against the list",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(c.Entries, c.Warnings, c.Reloads, c.Queries)
	}
	return c
}

// GateCollector holds the metrics of the connection gate.
type GateCollector struct {
	Accepted     prometheus.Counter
	Rejected     *prometheus.CounterVec
	Active       prometheus.Gauge
	RelayedBytes *prometheus.CounterVec
	DialLatency  prometheus.Histogram
}

const (
	ReasonDenied      = "denied"
	ReasonNotAllowed  = "not_allowed"
	ReasonBadProxy    = "bad_proxy"
	ReasonInvalidAddr = "invalid_addr"
	ReasonDialFailed  = "dial_failed"
)

// NewGateCollector returns a GateCollector. If reg is not nil, collectors
// are registered to it.
func NewGateCollector(reg prometheus.Registerer) *GateCollector {
	c := &GateCollector{
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accepted_total",
			Help: "The total number of connections relayed to the backend",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rejected_total",
			Help: "The total number of connections closed by the gate",
		}, []string{"reason"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "The number of connections currently being relayed",
		}),
		RelayedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayed_bytes_total",
			Help: "The total number of bytes relayed",
		}, []string{"direction"}),
		DialLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dial_latency_millisecond",
			Help:    "The backend dial latency in millisecond",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Accepted, c.Rejected, c.Active, c.RelayedBytes, c.DialLatency)
	}
	return c
}

// NewGaugeFunc registers a gauge whose value is read from f on every scrape.
func NewGaugeFunc(reg prometheus.Registerer, name, help string, f func() float64) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, f)
	if reg != nil {
		reg.MustRegister(g)
	}
	return g
}
