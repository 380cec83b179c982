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

package ingestion

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for file walking and detection.
type metricsIngestion struct {
	once sync.Once

	filesDetected *prometheus.CounterVec // by family
	nodesDetected *prometheus.CounterVec // by kind
	filesSkipped  *prometheus.CounterVec // by reason

	detectDuration prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "codaxi_ing_files_detected_total", Help: "Files routed through a detector family"}, []string{"family"})
		m.nodesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "codaxi_ing_nodes_detected_total", Help: "Documentation nodes emitted by detectors"}, []string{"kind"})
		m.filesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "codaxi_ing_files_skipped_total", Help: "Files skipped while walking a repository"}, []string{"reason"})

		buckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
		m.detectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codaxi_ing_detect_seconds", Help: "Per-file detection duration", Buckets: buckets})

		prometheus.MustRegister(m.filesDetected, m.nodesDetected, m.filesSkipped, m.detectDuration)
	})
}

func recordDetection(family string, nodes []DocumentationNode, elapsed time.Duration) {
	ingMetrics.init()
	ingMetrics.filesDetected.WithLabelValues(family).Inc()
	ingMetrics.detectDuration.Observe(elapsed.Seconds())
	for _, n := range nodes {
		ingMetrics.nodesDetected.WithLabelValues(string(n.Kind)).Inc()
	}
}

func recordSkips(reasons map[string]int) {
	ingMetrics.init()
	for reason, n := range reasons {
		ingMetrics.filesSkipped.WithLabelValues(reason).Add(float64(n))
	}
}
