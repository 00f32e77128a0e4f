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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidence_EmptySequence(t *testing.T) {
	assert.Equal(t, 1.0, Confidence(nil))
	assert.Equal(t, 1.0, Confidence([][]float32{}))
}

func TestConfidence_SingleStep(t *testing.T) {
	v := []float32{0.1, 0.7, 0.2}
	assert.InDelta(t, 0.7, Confidence([][]float32{v}), 1e-6)
}

func TestConfidence_ProductOfStepMaxima(t *testing.T) {
	v1 := []float32{0.1, 0.8, 0.1}
	v2 := []float32{0.5, 0.25, 0.25}
	assert.InDelta(t, 0.8*0.5, Confidence([][]float32{v1, v2}), 1e-6)
}

func TestScaledThreshold(t *testing.T) {
	assert.InDelta(t, 1.0, ScaledThreshold(0.95, 0), 1e-9)
	assert.InDelta(t, 0.95, ScaledThreshold(0.95, 1), 1e-9)
	assert.InDelta(t, 0.95*0.95*0.95, ScaledThreshold(0.95, 3), 1e-9)

	// The scaled gate is easier to pass for long sequences than the flat one.
	assert.Less(t, ScaledThreshold(0.95, 20), 0.95)
}
