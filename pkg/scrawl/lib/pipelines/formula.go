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

// Package pipelines implements the formula decoding pipeline: one encoder
// inference per image followed by a variable-length sequence of dependent
// decoder inferences, runnable either blocking or one bounded poll at a time.
package pipelines

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/backends"
)

var (
	// ErrShapeMismatch indicates the input tensor disagrees with the encoder's
	// declared input shape. Detected before submission.
	ErrShapeMismatch = errors.New("input tensor shape mismatch")

	// ErrInference indicates an inference request completed with a failure.
	ErrInference = errors.New("inference failed")

	// ErrDecodeInProgress is returned by InferSync when a decode is already
	// running on this pipeline.
	ErrDecodeInProgress = errors.New("decode already in progress")
)

// =============================================================================
// Configuration Types
// =============================================================================

// TensorBindings names the encoder/decoder tensors the pipeline reads and
// writes. Defaults match the reference formula-recognition model export; every
// name can be overridden for models with different graph names.
type TensorBindings struct {
	// Encoder input
	Imgs string

	// Encoder outputs
	RowEncOut string
	Hidden    string
	Context   string
	Init0     string

	// Decoder inputs
	DecStC     string
	DecStH     string
	OutputPrev string
	Tgt        string

	// Decoder outputs
	DecStCT string
	DecStHT string
	Output  string
	Logit   string
}

// DefaultTensorBindings returns the reference model's tensor names.
func DefaultTensorBindings() TensorBindings {
	return TensorBindings{
		Imgs:       "imgs",
		RowEncOut:  "row_enc_out",
		Hidden:     "hidden",
		Context:    "context",
		Init0:      "init_0",
		DecStC:     "dec_st_c",
		DecStH:     "dec_st_h",
		OutputPrev: "output_prev",
		Tgt:        "tgt",
		DecStCT:    "dec_st_c_t",
		DecStHT:    "dec_st_h_t",
		Output:     "output",
		Logit:      "logit",
	}
}

// Config holds decoding parameters.
type Config struct {
	// StartToken seeds the first decoder step.
	StartToken int32

	// EndToken terminates decoding when emitted.
	EndToken int32

	// MaxFormulaLen bounds the number of decoder inferences per decode.
	MaxFormulaLen int

	// PollTimeout bounds each wait in non-blocking mode.
	PollTimeout time.Duration

	// MaxPollFailures bounds consecutive polls observing a failed request in
	// non-blocking mode before the decode is aborted with ErrInference.
	// 0 disables the bound: a failed request reads as "still pending" forever,
	// matching the polling contract's documented limitation.
	MaxPollFailures int

	// Bindings names the model's tensors.
	Bindings TensorBindings

	// Logger for step-level diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns the reference decoding parameters.
func DefaultConfig() *Config {
	return &Config{
		StartToken:    0,
		EndToken:      2,
		MaxFormulaLen: 128,
		PollTimeout:   time.Millisecond,
		Bindings:      DefaultTensorBindings(),
	}
}

// =============================================================================
// Results and Per-Decode State
// =============================================================================

// DecodeResult is the finalized output of one completed decode.
type DecodeResult struct {
	// Logits holds one probability distribution per decoder step, in step
	// order.
	Logits [][]float32

	// Tokens holds the per-step argmax token IDs, aligned with Logits.
	Tokens []int32
}

// Steps returns the number of decoder steps in the result.
func (r *DecodeResult) Steps() int {
	return len(r.Logits)
}

// encoderOutput bundles the encoder tensors consumed by every decoder step.
// It lives for exactly one decode.
type encoderOutput struct {
	rowEncOut backends.NamedTensor
}

// stepState carries the recurrent decoder state from one step into the next.
// A fresh value is produced per step rather than mutated in place.
type stepState struct {
	cellState   backends.NamedTensor
	hiddenState backends.NamedTensor
	prevOutput  backends.NamedTensor
	prevToken   int32
}

// Status is the pipeline's decode phase.
type Status int

const (
	// StatusReady accepts a new input tensor.
	StatusReady Status = iota
	// StatusEncoderInfer has the encoder inference in flight.
	StatusEncoderInfer
	// StatusDecoderInfer has one decoder step in flight.
	StatusDecoderInfer
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusEncoderInfer:
		return "encoder-infer"
	case StatusDecoderInfer:
		return "decoder-infer"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// FormulaPipeline owns the encoder-to-decoder handoff and the autoregressive
// decoding loop over two inference sessions. At most one inference (encoder or
// decoder) is in flight at any time, and decoder steps are strictly
// sequential: step N consumes step N-1's outputs.
//
// A pipeline instance is not safe for concurrent use; one instance per stream.
type FormulaPipeline struct {
	cfg    *Config
	logger *zap.Logger

	encoder *backends.AsyncSession
	decoder *backends.AsyncSession

	status Status

	// Per-decode state, re-created at the start of each decode.
	encReq       *backends.InferRequest
	decReq       *backends.InferRequest
	enc          *encoderOutput
	step         *stepState
	stepCount    int
	logits       [][]float32
	tokens       []int32
	pollFailures int
}

// NewFormulaPipeline builds a pipeline over raw encoder and decoder sessions.
// The pipeline owns both sessions; Close releases them.
func NewFormulaPipeline(encoder, decoder backends.Session, cfg *Config) *FormulaPipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormulaPipeline{
		cfg:     cfg,
		logger:  logger,
		encoder: backends.NewAsyncSession(encoder),
		decoder: backends.NewAsyncSession(decoder),
		status:  StatusReady,
	}
}

// Status returns the current decode phase.
func (p *FormulaPipeline) Status() Status {
	return p.status
}

// StepCount returns the number of decoder inferences submitted for the decode
// in progress. Zero while Ready.
func (p *FormulaPipeline) StepCount() int {
	return p.stepCount
}

// InputShape returns the encoder's declared input shape for the image tensor,
// or nil when the backend does not report one.
func (p *FormulaPipeline) InputShape() []int64 {
	for _, info := range p.encoder.InputInfo() {
		if info.Name == p.cfg.Bindings.Imgs {
			return info.Shape
		}
	}
	return nil
}

// validateInput checks the tensor against the encoder's declared input shape.
// Must hold before submission: leading batch dimension of one, channel count
// in {1, 3}, and exact agreement on every static dimension.
func (p *FormulaPipeline) validateInput(data []float32, shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("%w: want [1, C, H, W], got %v", ErrShapeMismatch, shape)
	}
	if shape[0] != 1 {
		return fmt.Errorf("%w: batch dimension must be 1, got %d", ErrShapeMismatch, shape[0])
	}
	if shape[1] != 1 && shape[1] != 3 {
		return fmt.Errorf("%w: channel count must be 1 or 3, got %d", ErrShapeMismatch, shape[1])
	}

	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	if int64(len(data)) != n {
		return fmt.Errorf("%w: %d elements for shape %v", ErrShapeMismatch, len(data), shape)
	}

	if declared := p.InputShape(); len(declared) == len(shape) {
		for i, d := range declared {
			if d > 0 && d != shape[i] {
				return fmt.Errorf("%w: model expects %v, got %v", ErrShapeMismatch, declared, shape)
			}
		}
	}
	return nil
}

// InferSync runs a full decode, blocking until termination.
// The caller's goroutine is occupied for the whole decode; ctx is consulted
// between decoder steps. A failed inference aborts with ErrInference.
func (p *FormulaPipeline) InferSync(ctx context.Context, data []float32, shape []int64) (*DecodeResult, error) {
	if p.status != StatusReady {
		return nil, ErrDecodeInProgress
	}
	if err := p.validateInput(data, shape); err != nil {
		return nil, err
	}

	if err := p.runEncoder(data, shape); err != nil {
		p.reset()
		return nil, err
	}
	if !p.encReq.Wait(-1) {
		// Unreachable: a blocking wait only returns on completion.
		p.reset()
		return nil, ErrInference
	}
	if err := p.startDecoding(); err != nil {
		p.reset()
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			p.reset()
			return nil, ctx.Err()
		default:
		}

		res, err := p.processDecodingResults(true)
		if err != nil {
			p.reset()
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
}

// InferAsync advances the decode by at most one bounded poll and returns
// immediately. A nil result means no decode has completed on this call.
//
// Passing a tensor while Ready starts a new decode; passing one mid-decode is
// ignored. A permanently failed inference is indistinguishable from a slow one
// under this contract and keeps reading as pending (see Config.MaxPollFailures
// for the opt-in bound).
func (p *FormulaPipeline) InferAsync(data []float32, shape []int64) (*DecodeResult, error) {
	switch p.status {
	case StatusReady:
		if data == nil {
			return nil, nil
		}
		if err := p.validateInput(data, shape); err != nil {
			return nil, err
		}
		if err := p.runEncoder(data, shape); err != nil {
			p.reset()
			return nil, err
		}
		return nil, nil

	case StatusEncoderInfer:
		if !p.encReq.Wait(p.cfg.PollTimeout) {
			return nil, nil
		}
		if err := p.startDecoding(); err != nil {
			if failErr := p.notePollFailure(err); failErr != nil {
				p.reset()
				return nil, failErr
			}
			return nil, nil
		}
		return nil, nil

	default: // StatusDecoderInfer
		return p.processDecodingResults(false)
	}
}

// runEncoder submits the encoder inference for a new image and clears all
// per-decode state from the previous image.
func (p *FormulaPipeline) runEncoder(data []float32, shape []int64) error {
	p.enc = nil
	p.step = nil
	p.logits = nil
	p.tokens = nil
	p.stepCount = 0
	p.pollFailures = 0

	req, err := p.encoder.Submit([]backends.NamedTensor{{
		Name:  p.cfg.Bindings.Imgs,
		Shape: shape,
		Data:  data,
	}})
	if err != nil {
		return fmt.Errorf("submitting encoder inference: %w", err)
	}
	p.encReq = req
	p.status = StatusEncoderInfer
	p.logger.Debug("encoder inference submitted")
	return nil
}

// startDecoding unpacks a completed encoder request and submits the first
// decoder step.
func (p *FormulaPipeline) startDecoding() error {
	outputs, err := p.encReq.Outputs()
	if err != nil {
		return fmt.Errorf("%w: encoder: %v", ErrInference, err)
	}

	b := p.cfg.Bindings
	rowEncOut, err := findTensor(outputs, b.RowEncOut)
	if err != nil {
		return err
	}
	hidden, err := findTensor(outputs, b.Hidden)
	if err != nil {
		return err
	}
	cellInit, err := findTensor(outputs, b.Context)
	if err != nil {
		return err
	}
	init0, err := findTensor(outputs, b.Init0)
	if err != nil {
		return err
	}

	p.enc = &encoderOutput{rowEncOut: rowEncOut}
	p.step = &stepState{
		hiddenState: hidden,
		cellState:   cellInit,
		prevOutput:  init0,
		prevToken:   p.cfg.StartToken,
	}
	p.logits = nil
	p.tokens = nil

	if err := p.submitDecoderStep(); err != nil {
		return err
	}
	p.status = StatusDecoderInfer
	return nil
}

// submitDecoderStep dispatches one decoder inference from the current step
// state and counts it against MaxFormulaLen.
func (p *FormulaPipeline) submitDecoderStep() error {
	b := p.cfg.Bindings
	req, err := p.decoder.Submit([]backends.NamedTensor{
		{Name: b.RowEncOut, Shape: p.enc.rowEncOut.Shape, Data: p.enc.rowEncOut.Data},
		{Name: b.DecStC, Shape: p.step.cellState.Shape, Data: p.step.cellState.Data},
		{Name: b.DecStH, Shape: p.step.hiddenState.Shape, Data: p.step.hiddenState.Data},
		{Name: b.OutputPrev, Shape: p.step.prevOutput.Shape, Data: p.step.prevOutput.Data},
		{Name: b.Tgt, Shape: []int64{1, 1}, Data: []int64{int64(p.step.prevToken)}},
	})
	if err != nil {
		return fmt.Errorf("submitting decoder inference: %w", err)
	}
	p.decReq = req
	p.stepCount++
	return nil
}

// processDecodingResults handles one completed (or pending) decoder step.
// Returns a non-nil DecodeResult exactly when the decode terminates.
func (p *FormulaPipeline) processDecodingResults(blocking bool) (*DecodeResult, error) {
	timeout := p.cfg.PollTimeout
	if blocking {
		timeout = -1
	}
	if !p.decReq.Wait(timeout) {
		return nil, nil
	}

	outputs, err := p.decReq.Outputs()
	if err != nil {
		if blocking {
			return nil, fmt.Errorf("%w: decoder step %d: %v", ErrInference, p.stepCount, err)
		}
		if failErr := p.notePollFailure(err); failErr != nil {
			p.reset()
			return nil, failErr
		}
		return nil, nil
	}
	p.pollFailures = 0

	if err := p.unpackDecoderResults(outputs); err != nil {
		p.reset()
		return nil, err
	}

	// Termination: end token first, then the length bound.
	if p.step.prevToken == p.cfg.EndToken || p.stepCount >= p.cfg.MaxFormulaLen {
		result := &DecodeResult{Logits: p.logits, Tokens: p.tokens}
		p.logger.Debug("decode finished",
			zap.Int("steps", result.Steps()),
			zap.Bool("end_token", p.step.prevToken == p.cfg.EndToken))
		p.reset()
		return result, nil
	}

	if err := p.submitDecoderStep(); err != nil {
		p.reset()
		return nil, err
	}
	return nil, nil
}

// unpackDecoderResults threads a completed step's outputs into the next step
// state and records its logit row.
func (p *FormulaPipeline) unpackDecoderResults(outputs []backends.NamedTensor) error {
	b := p.cfg.Bindings
	hidden, err := findTensor(outputs, b.DecStHT)
	if err != nil {
		return err
	}
	cell, err := findTensor(outputs, b.DecStCT)
	if err != nil {
		return err
	}
	output, err := findTensor(outputs, b.Output)
	if err != nil {
		return err
	}
	logit, err := findTensor(outputs, b.Logit)
	if err != nil {
		return err
	}

	row, ok := logit.Float32Data()
	if !ok {
		return fmt.Errorf("%w: logit tensor is not float32", ErrInference)
	}
	rowCopy := make([]float32, len(row))
	copy(rowCopy, row)

	token := Argmax(rowCopy)
	p.logits = append(p.logits, rowCopy)
	p.tokens = append(p.tokens, token)
	p.step = &stepState{
		hiddenState: hidden,
		cellState:   cell,
		prevOutput:  output,
		prevToken:   token,
	}
	return nil
}

// notePollFailure counts a failed poll under the non-blocking contract.
// Returns a terminal error only once MaxPollFailures is exceeded.
func (p *FormulaPipeline) notePollFailure(err error) error {
	p.pollFailures++
	p.logger.Debug("inference not ready", zap.Int("consecutive_failures", p.pollFailures), zap.Error(err))
	if p.cfg.MaxPollFailures > 0 && p.pollFailures >= p.cfg.MaxPollFailures {
		return fmt.Errorf("%w: %d consecutive failed polls: %v", ErrInference, p.pollFailures, err)
	}
	return nil
}

// reset discards all per-decode state and returns the machine to Ready.
func (p *FormulaPipeline) reset() {
	p.status = StatusReady
	p.encReq = nil
	p.decReq = nil
	p.enc = nil
	p.step = nil
	p.stepCount = 0
	p.logits = nil
	p.tokens = nil
	p.pollFailures = 0
}

// Close releases both inference sessions.
func (p *FormulaPipeline) Close() error {
	var errs []error
	if err := p.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing encoder: %w", err))
	}
	if err := p.decoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing decoder: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing pipeline: %v", errs)
	}
	return nil
}

// findTensor locates a named tensor in a result set.
func findTensor(tensors []backends.NamedTensor, name string) (backends.NamedTensor, error) {
	for _, t := range tensors {
		if t.Name == name {
			return t, nil
		}
	}
	return backends.NamedTensor{}, fmt.Errorf("%w: output tensor %q missing", ErrInference, name)
}

// Argmax returns the index of the maximum value.
func Argmax(values []float32) int32 {
	maxIdx := 0
	maxVal := values[0]
	for i, v := range values[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return int32(maxIdx)
}
