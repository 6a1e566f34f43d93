// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors on a private registry so
// several bots (or tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Lookups       *prometheus.CounterVec
	RepliesFailed prometheus.Counter
	Rejected      prometheus.Counter
	Joins         *prometheus.CounterVec
	TagReloads    *prometheus.CounterVec
	TagsLoaded    prometheus.Gauge
	SyncFailures  prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Lookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpbot_lookups_total",
				Help: "Help requests answered, by result",
			},
			[]string{"result"}, // "hit", "nearest" or "miss"
		),
		RepliesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "helpbot_replies_failed_total",
			Help: "Replies that could not be sent",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "helpbot_rejected_total",
			Help: "Help requests refused because of room gating",
		}),
		Joins: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpbot_joins_total",
				Help: "Invite auto-joins, by status",
			},
			[]string{"status"},
		),
		TagReloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpbot_tag_reloads_total",
				Help: "Tag table reloads, by status",
			},
			[]string{"status"},
		),
		TagsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "helpbot_tags_loaded",
			Help: "Tags in the current table",
		}),
		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "helpbot_sync_failures_total",
			Help: "Sync loop failures",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
