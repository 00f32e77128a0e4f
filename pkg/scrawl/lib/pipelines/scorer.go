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

package pipelines

import "math"

// Confidence returns the product over all decode steps of the step's maximum
// probability, approximating the joint likelihood of the greedy token
// sequence. An empty sequence scores 1, the multiplicative identity.
func Confidence(logits [][]float32) float64 {
	prob := 1.0
	for _, row := range logits {
		if len(row) == 0 {
			continue
		}
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		prob *= float64(maxVal)
	}
	return prob
}

// ScaledThreshold raises the acceptance threshold to the number of decoded
// steps. Partial in-progress sequences multiply fewer factors and so carry a
// higher raw product; scaling keeps early undercomplete predictions from
// passing a gate tuned for completed ones.
func ScaledThreshold(threshold float64, steps int) float64 {
	return math.Pow(threshold, float64(steps))
}
