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

package llm

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type llmMetrics struct {
	latency  *prometheus.HistogramVec
	retries  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	llmMetricsOnce sync.Once
	llmMetricsInst *llmMetrics
)

func metrics() *llmMetrics {
	llmMetricsOnce.Do(func() {
		llmMetricsInst = &llmMetrics{
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "codaxi_llm_request_seconds",
				Help:    "Latency of model chat calls",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}, []string{"provider"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "codaxi_llm_retries_total",
				Help: "Retried model calls",
			}, []string{"provider"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "codaxi_llm_failures_total",
				Help: "Model calls that failed after all retries",
			}, []string{"provider"}),
		}
		prometheus.MustRegister(llmMetricsInst.latency, llmMetricsInst.retries, llmMetricsInst.failures)
	})
	return llmMetricsInst
}
