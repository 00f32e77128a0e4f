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

package interactive

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/pipelines"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/rendering"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/vocab"
)

// scriptedDecoder returns a fixed sequence of per-frame results; nil entries
// model an in-flight decode. Past the script it keeps reporting in-flight.
type scriptedDecoder struct {
	shape   []int64
	results []*pipelines.DecodeResult
	calls   int
}

func (d *scriptedDecoder) InferAsync(data []float32, shape []int64) (*pipelines.DecodeResult, error) {
	call := d.calls
	d.calls++
	if call < len(d.results) {
		return d.results[call], nil
	}
	return nil, nil
}

func (d *scriptedDecoder) InputShape() []int64 {
	return d.shape
}

func testVocab(t *testing.T) *vocab.Vocab {
	t.Helper()
	return vocab.New(map[int32]string{
		1: "x", 3: "+", 4: "y", 5: "{", 6: "}", 7: "2",
	}, 2)
}

func testFrame() image.Image {
	frame := image.NewRGBA(image.Rect(0, 0, DefaultFrameWidth, DefaultFrameHeight))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return frame
}

// fullConfidence builds a result whose logits argmax probability is 1 at
// every step, so any threshold accepts it.
func fullConfidence(tokens ...int32) *pipelines.DecodeResult {
	logits := make([][]float32, len(tokens))
	for i := range logits {
		logits[i] = []float32{0, 0, 0, 0, 0, 0, 0, 0}
		logits[i][tokens[i]] = 1
	}
	return &pipelines.DecodeResult{Logits: logits, Tokens: tokens}
}

func newTestDriver(t *testing.T, dec Decoder, renderer *rendering.Renderer) *Driver {
	t.Helper()
	d, err := NewDriver(dec, testVocab(t), renderer, Config{ConfThreshold: 0.95})
	require.NoError(t, err)
	return d
}

func TestDriverRejectsBadInputShape(t *testing.T) {
	_, err := NewDriver(&scriptedDecoder{shape: []int64{1, 6, 24}}, testVocab(t), nil, Config{})
	require.Error(t, err)
}

func TestDriverAcceptsConfidentPrediction(t *testing.T) {
	dec := &scriptedDecoder{
		shape:   []int64{1, 1, 6, 24},
		results: []*pipelines.DecodeResult{nil, nil, fullConfidence(1, 3, 4)},
	}
	d := newTestDriver(t, dec, nil)
	frame := testFrame()

	// Decode still in flight: nothing to show yet.
	for i := 0; i < 2; i++ {
		overlay, err := d.Step(frame)
		require.NoError(t, err)
		assert.Empty(t, overlay.Phrase)
		assert.NotNil(t, overlay.ModelInput)
		assert.Equal(t, d.Window().Rect(), overlay.Window)
	}

	overlay, err := d.Step(frame)
	require.NoError(t, err)
	assert.Equal(t, "x + y", overlay.Phrase)

	// The accepted phrase persists while the next decode is in flight.
	overlay, err = d.Step(frame)
	require.NoError(t, err)
	assert.Equal(t, "x + y", overlay.Phrase)
}

func TestDriverGateScalesWithSteps(t *testing.T) {
	// Per-step argmax probability 0.96 clears 0.95 on one step, and a
	// three-step product 0.96^3 still clears the scaled gate 0.95^3. A
	// per-step 0.9 fails either way.
	dec := &scriptedDecoder{
		shape: []int64{1, 1, 6, 24},
		results: []*pipelines.DecodeResult{
			{Logits: float32sRows(3, 0.96), Tokens: []int32{1, 3, 4}},
			nil,
			{Logits: float32sRows(3, 0.9), Tokens: []int32{1, 3, 4}},
		},
	}
	d := newTestDriver(t, dec, nil)
	frame := testFrame()

	overlay, err := d.Step(frame)
	require.NoError(t, err)
	assert.Equal(t, "x + y", overlay.Phrase, "0.96^3 clears 0.95^3")

	_, err = d.Step(frame)
	require.NoError(t, err)

	overlay, err = d.Step(frame)
	require.NoError(t, err)
	assert.Empty(t, overlay.Phrase, "0.9^3 is below 0.95^3")
}

func TestDriverLowConfidenceClearsPhrase(t *testing.T) {
	low := &pipelines.DecodeResult{
		Logits: float32sRows(1, 0.5),
		Tokens: []int32{1},
	}
	dec := &scriptedDecoder{
		shape:   []int64{1, 1, 6, 24},
		results: []*pipelines.DecodeResult{fullConfidence(1), nil, low},
	}
	d := newTestDriver(t, dec, nil)
	frame := testFrame()

	overlay, err := d.Step(frame)
	require.NoError(t, err)
	assert.Equal(t, "x", overlay.Phrase)

	overlay, err = d.Step(frame)
	require.NoError(t, err)
	assert.Equal(t, "x", overlay.Phrase, "kept while decoding")

	overlay, err = d.Step(frame)
	require.NoError(t, err)
	assert.Empty(t, overlay.Phrase, "rejected prediction clears the display")
}

func TestDriverTightensPhraseForDisplay(t *testing.T) {
	dec := &scriptedDecoder{
		shape:   []int64{1, 1, 6, 24},
		results: []*pipelines.DecodeResult{fullConfidence(1, 5, 7, 6)},
	}
	d := newTestDriver(t, dec, nil)

	overlay, err := d.Step(testFrame())
	require.NoError(t, err)
	assert.Equal(t, "x {7}", overlay.Phrase)
}

type constTypesetter struct {
	img image.Image
}

func (ts *constTypesetter) Render(string) (image.Image, error) {
	return ts.img, nil
}

func TestDriverAttachesRenderedFormula(t *testing.T) {
	rendered := image.NewRGBA(image.Rect(0, 0, 100, 30))
	renderer := rendering.NewRenderer(&constTypesetter{img: rendered}, nil)
	defer renderer.Close()

	dec := &scriptedDecoder{
		shape:   []int64{1, 1, 6, 24},
		results: []*pipelines.DecodeResult{fullConfidence(1, 3, 4)},
	}
	d := newTestDriver(t, dec, renderer)
	frame := testFrame()

	deadline := time.Now().Add(2 * time.Second)
	var got image.Image
	for time.Now().Before(deadline) {
		overlay, err := d.Step(frame)
		require.NoError(t, err)
		require.Equal(t, "x + y", overlay.Phrase)
		if overlay.Rendered != nil {
			got = overlay.Rendered
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, got, "rendered bitmap never surfaced")
	assert.Equal(t, rendered.Bounds(), got.Bounds())
}

type singleFrameSource struct {
	frames int
}

func (s *singleFrameSource) NextFrame(ctx context.Context) (image.Image, error) {
	if s.frames == 0 {
		return nil, errors.New("capture closed")
	}
	s.frames--
	return testFrame(), nil
}

func TestDriverRunPresentsEachFrame(t *testing.T) {
	dec := &scriptedDecoder{
		shape:   []int64{1, 1, 6, 24},
		results: []*pipelines.DecodeResult{nil, fullConfidence(1)},
	}
	d := newTestDriver(t, dec, nil)

	var presented []string
	sink := SinkFunc(func(ctx context.Context, overlay *Overlay) error {
		presented = append(presented, overlay.Phrase)
		return nil
	})

	err := d.Run(context.Background(), &singleFrameSource{frames: 3}, sink)
	require.Error(t, err, "source exhaustion ends the loop")
	assert.Equal(t, []string{"", "x", "x"}, presented)
}

func TestDriverRunStopsOnCancel(t *testing.T) {
	dec := &scriptedDecoder{shape: []int64{1, 1, 6, 24}}
	d := newTestDriver(t, dec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Run(ctx, &singleFrameSource{frames: 100}, SinkFunc(func(context.Context, *Overlay) error {
		return nil
	}))
	require.ErrorIs(t, err, context.Canceled)
}

// float32sRows builds n logit rows whose maximum is p.
func float32sRows(n int, p float32) [][]float32 {
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = []float32{0.01, p, 0.01}
	}
	return rows
}
