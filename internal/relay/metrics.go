// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldgate_relay_delivered_total",
		Help: "Events queued on world links by kind",
	}, []string{"event"})

	droppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldgate_relay_dropped_total",
		Help: "Events that could not be queued by kind and reason",
	}, []string{"event", "reason"})

	attachedLinks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldgate_relay_attached_links",
		Help: "World links currently attached",
	})
)

// Collectors returns the relay metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{deliveredEvents, droppedEvents, attachedLinks}
}
