// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scan

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsScan holds Prometheus metrics for scans.
type metricsScan struct {
	once sync.Once

	started  prometheus.Counter
	finished *prometheus.CounterVec // by outcome: completed, failed, canceled
	walked   prometheus.Counter
	dropped  prometheus.Counter

	phaseDuration *prometheus.HistogramVec // by phase
}

var scanMetrics metricsScan

func (m *metricsScan) init() {
	m.once.Do(func() {
		m.started = prometheus.NewCounter(prometheus.CounterOpts{Name: "codaxi_scans_started_total", Help: "Scans started"})
		m.finished = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "codaxi_scans_finished_total", Help: "Scans finished by outcome"}, []string{"outcome"})
		m.walked = prometheus.NewCounter(prometheus.CounterOpts{Name: "codaxi_scan_files_walked_total", Help: "Files walked by scans"})
		m.dropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "codaxi_scan_progress_events_dropped_total", Help: "Buffered progress events evicted for slow subscribers"})

		buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
		m.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "codaxi_scan_phase_seconds", Help: "Scan phase duration", Buckets: buckets}, []string{"phase"})

		prometheus.MustRegister(m.started, m.finished, m.walked, m.dropped, m.phaseDuration)
	})
}

func recordStarted() {
	scanMetrics.init()
	scanMetrics.started.Inc()
}

func recordFinished(outcome string) {
	scanMetrics.init()
	scanMetrics.finished.WithLabelValues(outcome).Inc()
}

func recordWalked(n int) {
	scanMetrics.init()
	scanMetrics.walked.Add(float64(n))
}

func recordDropped(n int) {
	scanMetrics.init()
	scanMetrics.dropped.Add(float64(n))
}

func recordPhase(phase string, elapsed time.Duration) {
	scanMetrics.init()
	scanMetrics.phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}
