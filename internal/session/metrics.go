// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/worldgate/internal/protocol"
)

var (
	loginResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldgate_login_results_total",
			Help: "Login requests by result code",
		},
		[]string{"code"},
	)

	registerResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldgate_register_results_total",
			Help: "Registration requests by result code",
		},
		[]string{"code"},
	)

	onlinePlayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldgate_online_players",
		Help: "Players currently online across all worlds",
	})

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worldgate_pipeline_duration_seconds",
			Help:    "Time spent in session pipelines",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)
)

// Collectors returns the session metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{loginResults, registerResults, onlinePlayers, pipelineDuration}
}

func recordLogin(code protocol.Code) {
	loginResults.WithLabelValues(code.LoginName()).Inc()
}

func recordRegister(code protocol.Code) {
	registerResults.WithLabelValues(code.RegisterName()).Inc()
}
