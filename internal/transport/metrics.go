// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldgate_link_frames_total",
			Help: "Request frames by handler and result",
		},
		[]string{"handler", "result"},
	)

	linkRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldgate_link_rejections_total",
			Help: "Link upgrade requests refused by authentication code",
		},
		[]string{"code"},
	)

	connectedLinks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldgate_links_connected",
		Help: "Open world and auxiliary links",
	})
)

// Collectors returns the transport metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{frames, linkRejections, connectedLinks}
}
