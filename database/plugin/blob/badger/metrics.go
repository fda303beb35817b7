// Copyright 2025 Quantstamp, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const badgerMetricNamePrefix = "qsp_database_blob_"

type blobMetrics struct {
	ops    *prometheus.CounterVec
	errors *prometheus.CounterVec
	bytes  *prometheus.CounterVec
}

func newBlobMetrics(reg prometheus.Registerer) *blobMetrics {
	promautoFactory := promauto.With(reg)
	return &blobMetrics{
		ops: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: badgerMetricNamePrefix + "ops_total",
				Help: "Total number of blob operations",
			},
			[]string{"op"},
		),
		errors: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: badgerMetricNamePrefix + "errors_total",
				Help: "Total number of failed blob operations",
			},
			[]string{"op"},
		),
		bytes: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: badgerMetricNamePrefix + "bytes_total",
				Help: "Total bytes read/written for blob operations",
			},
			[]string{"op"},
		),
	}
}

// observe is safe to call on a nil receiver
func (m *blobMetrics) observe(op string, size int, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op).Inc()
	if err != nil {
		m.errors.WithLabelValues(op).Inc()
		return
	}
	m.bytes.WithLabelValues(op).Add(float64(size))
}
