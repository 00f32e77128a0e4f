// Copyright 2025 Scrawl AI, Inc.
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

package scrawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for Prometheus
var (
	decodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrawl_decodes_total",
			Help: "Completed formula decodes by outcome (accepted, low_confidence, error)",
		},
		[]string{"outcome"},
	)

	decoderSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrawl_decoder_steps_total",
			Help: "Total decoder inference steps across all decodes",
		},
	)

	decodeConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrawl_decode_confidence",
			Help:    "Confidence score distribution of completed decodes",
			Buckets: []float64{.1, .25, .5, .75, .9, .95, .99, 1},
		},
	)
)
