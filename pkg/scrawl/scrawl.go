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

// Package scrawl recognizes handwritten and rendered mathematical formulas in
// images, producing LaTeX token sequences. It wires an encoder model, an
// autoregressive decoder model and a vocabulary into a Recognizer usable for
// both one-shot batch recognition and frame-by-frame interactive use.
package scrawl

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/backends"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/pipelines"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/preprocess"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/vocab"
)

// Config configures a Recognizer.
type Config struct {
	// EncoderPath is the encoder model file.
	EncoderPath string
	// DecoderPath is the decoder-step model file.
	DecoderPath string
	// VocabPath is the id-to-sign vocabulary JSON file.
	VocabPath string

	// Device selects the execution device: cpu, gpu or auto. Empty means cpu.
	Device string
	// NumThreads for inference (0 = auto).
	NumThreads int

	// MaxFormulaLen bounds decoder steps per formula (0 = default).
	MaxFormulaLen int
	// ConfThreshold is the per-token acceptance threshold (0 = default 0.95).
	ConfThreshold float64
	// PreprocessMode is crop or resize (empty = crop).
	PreprocessMode string

	// Bindings overrides the models' tensor names. Zero-valued fields keep
	// the reference names.
	Bindings pipelines.TensorBindings
}

// DefaultConfThreshold is the flat acceptance threshold for batch decodes.
const DefaultConfThreshold = 0.95

// ParseDevice maps a user-facing device string onto a backend device.
func ParseDevice(s string) (backends.Device, error) {
	switch strings.ToUpper(s) {
	case "", "CPU":
		return backends.DeviceCPU, nil
	case "GPU", "CUDA":
		return backends.DeviceGPU, nil
	case "AUTO":
		return backends.DeviceAuto, nil
	default:
		return "", fmt.Errorf("unknown device %q (want cpu, gpu or auto)", s)
	}
}

// mergeBindings fills zero-valued overrides with the reference tensor names.
func mergeBindings(overrides pipelines.TensorBindings) pipelines.TensorBindings {
	defaults := pipelines.DefaultTensorBindings()
	pick := func(override, fallback string) string {
		if override != "" {
			return override
		}
		return fallback
	}
	return pipelines.TensorBindings{
		Imgs:       pick(overrides.Imgs, defaults.Imgs),
		RowEncOut:  pick(overrides.RowEncOut, defaults.RowEncOut),
		Hidden:     pick(overrides.Hidden, defaults.Hidden),
		Context:    pick(overrides.Context, defaults.Context),
		Init0:      pick(overrides.Init0, defaults.Init0),
		DecStC:     pick(overrides.DecStC, defaults.DecStC),
		DecStH:     pick(overrides.DecStH, defaults.DecStH),
		OutputPrev: pick(overrides.OutputPrev, defaults.OutputPrev),
		Tgt:        pick(overrides.Tgt, defaults.Tgt),
		DecStCT:    pick(overrides.DecStCT, defaults.DecStCT),
		DecStHT:    pick(overrides.DecStHT, defaults.DecStHT),
		Output:     pick(overrides.Output, defaults.Output),
		Logit:      pick(overrides.Logit, defaults.Logit),
	}
}

// Recognizer owns the encoder/decoder sessions, the decoding pipeline and the
// vocabulary for one formula-recognition model pair.
type Recognizer struct {
	cfg    Config
	logger *zap.Logger

	encoder  backends.Session
	decoder  backends.Session
	pipeline *pipelines.FormulaPipeline
	vocab    *vocab.Vocab

	mode      preprocess.Mode
	threshold float64
}

// NewRecognizer loads both models through the compiled-in inference backend
// and builds a ready Recognizer. Close releases the sessions.
func NewRecognizer(logger *zap.Logger, cfg Config) (*Recognizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory, err := backends.NewSessionFactory()
	if err != nil {
		return nil, err
	}

	device, err := ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	opts := []backends.SessionOption{
		backends.WithSessionDevice(device),
		backends.WithSessionThreads(cfg.NumThreads),
	}

	logger.Info("loading encoder model",
		zap.String("path", cfg.EncoderPath),
		zap.String("backend", factory.Name()),
		zap.String("device", string(device)))
	encoder, err := factory.CreateSession(cfg.EncoderPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading encoder model: %w", err)
	}

	logger.Info("loading decoder model", zap.String("path", cfg.DecoderPath))
	decoder, err := factory.CreateSession(cfg.DecoderPath, opts...)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("loading decoder model: %w", err)
	}

	r, err := NewRecognizerWithSessions(logger, encoder, decoder, cfg)
	if err != nil {
		_ = encoder.Close()
		_ = decoder.Close()
		return nil, err
	}
	return r, nil
}

// NewRecognizerWithSessions builds a Recognizer over already-open sessions.
// The Recognizer takes ownership of both sessions.
func NewRecognizerWithSessions(logger *zap.Logger, encoder, decoder backends.Session, cfg Config) (*Recognizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v, err := vocab.Load(cfg.VocabPath, pipelines.DefaultConfig().EndToken)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}

	mode := preprocess.ModeCrop
	if cfg.PreprocessMode != "" {
		mode, err = preprocess.ParseMode(cfg.PreprocessMode)
		if err != nil {
			return nil, err
		}
	}

	threshold := cfg.ConfThreshold
	if threshold == 0 {
		threshold = DefaultConfThreshold
	}

	pcfg := pipelines.DefaultConfig()
	if cfg.MaxFormulaLen > 0 {
		pcfg.MaxFormulaLen = cfg.MaxFormulaLen
	}
	pcfg.Bindings = mergeBindings(cfg.Bindings)
	pcfg.Logger = logger

	return &Recognizer{
		cfg:       cfg,
		logger:    logger,
		encoder:   encoder,
		decoder:   decoder,
		pipeline:  pipelines.NewFormulaPipeline(encoder, decoder, pcfg),
		vocab:     v,
		mode:      mode,
		threshold: threshold,
	}, nil
}

// Pipeline exposes the decoding pipeline for frame-by-frame use.
func (r *Recognizer) Pipeline() *pipelines.FormulaPipeline {
	return r.pipeline
}

// Vocab returns the loaded vocabulary.
func (r *Recognizer) Vocab() *vocab.Vocab {
	return r.vocab
}

// ConfThreshold returns the per-token acceptance threshold in effect.
func (r *Recognizer) ConfThreshold() float64 {
	return r.threshold
}

// PreprocessMode returns the configured input shaping mode.
func (r *Recognizer) PreprocessMode() preprocess.Mode {
	return r.mode
}

// Recognize runs one blocking decode over an image and returns the formula
// and its confidence score. The formula is empty when the score falls below
// the flat acceptance threshold.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (string, float64, error) {
	shape := r.pipeline.InputShape()
	if len(shape) != 4 {
		return "", 0, fmt.Errorf("encoder input shape %v is not [1, C, H, W]", shape)
	}

	prepared, err := preprocess.PrepareImage(img, int(shape[2]), int(shape[3]), r.mode)
	if err != nil {
		return "", 0, err
	}
	data, inShape, err := preprocess.ToNCHW(prepared, int(shape[1]))
	if err != nil {
		return "", 0, err
	}

	res, err := r.pipeline.InferSync(ctx, data, inShape)
	if err != nil {
		decodesTotal.WithLabelValues("error").Inc()
		return "", 0, err
	}

	prob := pipelines.Confidence(res.Logits)
	decoderSteps.Add(float64(res.Steps()))
	decodeConfidence.Observe(prob)

	if prob < r.threshold {
		decodesTotal.WithLabelValues("low_confidence").Inc()
		r.logger.Debug("confidence score is low, prediction discarded",
			zap.Float64("confidence", prob), zap.Float64("threshold", r.threshold))
		return "", prob, nil
	}

	decodesTotal.WithLabelValues("accepted").Inc()
	return r.vocab.ConstructPhrase(res.Tokens), prob, nil
}

// Close releases both model sessions through the pipeline that owns them.
func (r *Recognizer) Close() error {
	return r.pipeline.Close()
}
