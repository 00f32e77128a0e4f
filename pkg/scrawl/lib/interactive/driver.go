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

// Package interactive drives the capture -> preprocess -> decode-step ->
// overlay loop. Each iteration advances the recognizer by at most one bounded
// poll, so a full decode spans many frames and the loop never stalls.
package interactive

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/pipelines"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/preprocess"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/rendering"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/vocab"
)

// Decoder is the slice of the formula pipeline the driver needs.
type Decoder interface {
	InferAsync(data []float32, shape []int64) (*pipelines.DecodeResult, error)
	InputShape() []int64
}

// FrameSource supplies captured frames. Implementations wrap a camera or any
// other producer; returning an error ends the loop.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// Overlay is one iteration's worth of display state.
type Overlay struct {
	// Frame is the captured frame.
	Frame image.Image
	// ModelInput is the preprocessed crop fed to the recognizer.
	ModelInput image.Image
	// Window is the capture region within Frame.
	Window image.Rectangle
	// Phrase is the accepted prediction, display-tightened. Empty when no
	// prediction has been accepted yet.
	Phrase string
	// Rendered is the typeset bitmap for Phrase, when available.
	Rendered image.Image
}

// Sink consumes overlays. Returning an error ends the loop.
type Sink interface {
	Present(ctx context.Context, overlay *Overlay) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, overlay *Overlay) error

// Present implements Sink.
func (f SinkFunc) Present(ctx context.Context, overlay *Overlay) error {
	return f(ctx, overlay)
}

// Config holds driver parameters.
type Config struct {
	// ConfThreshold is the per-token acceptance threshold; the gate applied
	// each iteration is ConfThreshold raised to the decoded step count.
	ConfThreshold float64

	// PreprocessMode selects crop or resize shaping of the capture window.
	PreprocessMode preprocess.Mode

	// FrameWidth/FrameHeight describe the capture resolution.
	FrameWidth  int
	FrameHeight int

	Logger *zap.Logger
}

// Driver owns the interactive loop state.
type Driver struct {
	decoder  Decoder
	vocab    *vocab.Vocab
	renderer *rendering.Renderer // nil when rendering is unavailable
	window   *CaptureWindow
	cfg      Config
	logger   *zap.Logger

	height   int
	width    int
	channels int

	prevPhrase string
}

// NewDriver wires a driver over a decoder, vocabulary and optional renderer.
// The renderer may be nil; overlays then carry no rendered bitmap.
func NewDriver(decoder Decoder, v *vocab.Vocab, renderer *rendering.Renderer, cfg Config) (*Driver, error) {
	shape := decoder.InputShape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("encoder input shape %v is not [1, C, H, W]", shape)
	}
	if cfg.FrameWidth == 0 {
		cfg.FrameWidth = DefaultFrameWidth
	}
	if cfg.FrameHeight == 0 {
		cfg.FrameHeight = DefaultFrameHeight
	}
	if cfg.PreprocessMode == "" {
		cfg.PreprocessMode = preprocess.ModeCrop
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	height, width := int(shape[2]), int(shape[3])
	return &Driver{
		decoder:  decoder,
		vocab:    v,
		renderer: renderer,
		window:   NewCaptureWindow(height, width, cfg.FrameWidth, cfg.FrameHeight),
		cfg:      cfg,
		logger:   logger,
		height:   height,
		width:    width,
		channels: int(shape[1]),
	}, nil
}

// Window returns the capture window for keyboard-driven resizing.
func (d *Driver) Window() *CaptureWindow {
	return d.window
}

// Run pulls frames until the context is cancelled or the source or sink
// reports an error. Each iteration performs one bounded decode poll.
func (d *Driver) Run(ctx context.Context, source FrameSource, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := source.NextFrame(ctx)
		if err != nil {
			return fmt.Errorf("capturing frame: %w", err)
		}

		overlay, err := d.Step(frame)
		if err != nil {
			return err
		}
		if err := sink.Present(ctx, overlay); err != nil {
			return err
		}
	}
}

// Step processes one frame: shape the capture window for the encoder, advance
// the decode by one poll, gate any finished prediction with the step-scaled
// threshold, and assemble the overlay.
func (d *Driver) Step(frame image.Image) (*Overlay, error) {
	crop := d.window.Crop(frame)
	prepared, err := preprocess.PrepareCrop(crop, d.height, d.width, d.cfg.PreprocessMode)
	if err != nil {
		return nil, fmt.Errorf("preprocessing crop: %w", err)
	}
	data, shape, err := preprocess.ToNCHW(prepared, d.channels)
	if err != nil {
		return nil, fmt.Errorf("shaping model input: %w", err)
	}

	res, err := d.decoder.InferAsync(data, shape)
	if err != nil {
		return nil, err
	}

	phrase := d.prevPhrase
	if res != nil {
		prob := pipelines.Confidence(res.Logits)
		d.logger.Debug("confidence score", zap.Float64("confidence", prob), zap.Int("steps", res.Steps()))
		if prob >= pipelines.ScaledThreshold(d.cfg.ConfThreshold, res.Steps()) {
			phrase = d.vocab.ConstructPhrase(res.Tokens)
			d.logger.Info("prediction updated", zap.String("formula", phrase))
		} else {
			d.logger.Debug("confidence score is low, prediction is not complete")
			phrase = ""
		}
	}

	overlay := &Overlay{
		Frame:      frame,
		ModelInput: prepared,
		Window:     d.window.Rect(),
		Phrase:     StripInternalSpaces(phrase),
	}
	if d.renderer != nil && phrase != "" {
		if img, rendered, ok := d.renderer.RenderAsync(phrase); ok && rendered == phrase {
			overlay.Rendered = rendering.FitWidth(img, d.window.Rect().Dx())
		}
	}

	d.prevPhrase = phrase
	return overlay, nil
}
