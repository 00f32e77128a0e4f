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

// Package rendering turns recognized LaTeX phrases into bitmaps for user
// feedback using an external typesetting toolchain. Rendering is strictly
// optional: when the toolchain is missing the renderer degrades to nil and
// callers skip it.
package rendering

import (
	"context"
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Renderer rasterizes formulas on a single dedicated background worker,
// decoupling the slow external tool from the caller's frame loop. Only one
// render job may be in flight; requests arriving while busy are dropped.
//
// A Renderer is intended for a single polling goroutine.
type Renderer struct {
	ts     Typesetter
	logger *zap.Logger

	sem     *semaphore.Weighted
	jobs    chan string
	results chan renderResult
	wg      sync.WaitGroup

	// Cache of the last fully rendered formula.
	lastFormula string
	lastImage   image.Image
}

type renderResult struct {
	formula string
	img     image.Image
	err     error
}

// CreateRenderer probes for the external typesetting toolchain and returns a
// renderer backed by it, or nil when the toolchain is unavailable. A nil
// renderer is not an error; rendering is a side feature.
func CreateRenderer(logger *zap.Logger) *Renderer {
	ts, err := NewLaTeXTypesetter(logger)
	if err != nil {
		logger.Warn("LaTeX toolchain not installed, formula rendering disabled", zap.Error(err))
		return nil
	}
	return NewRenderer(ts, logger)
}

// NewRenderer builds a renderer over an explicit typesetter and starts its
// worker.
func NewRenderer(ts Typesetter, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		ts:      ts,
		logger:  logger,
		sem:     semaphore.NewWeighted(1),
		jobs:    make(chan string, 1),
		results: make(chan renderResult, 1),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

func (r *Renderer) worker() {
	defer r.wg.Done()
	for formula := range r.jobs {
		img, err := r.ts.Render(formula)
		r.results <- renderResult{formula: formula, img: img, err: err}
	}
}

// cached returns the last rendered bitmap when it matches formula.
func (r *Renderer) cached(formula string) (image.Image, bool) {
	if r.lastImage != nil && r.lastFormula == formula {
		return r.lastImage, true
	}
	return nil, false
}

// Render typesets a formula synchronously, reusing the cached bitmap for a
// repeated phrase. Used by the batch path.
func (r *Renderer) Render(formula string) (image.Image, error) {
	if img, ok := r.cached(formula); ok {
		return img, nil
	}

	if err := r.sem.Acquire(context.Background(), 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	img, err := r.ts.Render(formula)
	if err != nil {
		return nil, err
	}
	r.lastFormula = formula
	r.lastImage = img
	return img, nil
}

// RenderAsync advances the render state machine by one poll and returns
// immediately. The third return reports whether a bitmap for the requested
// formula is available on this call.
//
// While idle, the formula is dispatched to the worker and the call reports
// pending. While rendering, the worker is polled: a finished result for the
// same formula is returned and cached; a failed attempt is swallowed and the
// renderer returns to idle, so the next call retries with whatever phrase it
// is given. Requests for a different formula while busy are dropped.
func (r *Renderer) RenderAsync(formula string) (image.Image, string, bool) {
	if img, ok := r.cached(formula); ok {
		return img, formula, true
	}

	select {
	case res := <-r.results:
		r.sem.Release(1)
		if res.err != nil {
			r.logger.Debug("formula render failed", zap.String("formula", res.formula), zap.Error(res.err))
			return nil, "", false
		}
		r.lastFormula = res.formula
		r.lastImage = res.img
		if res.formula == formula {
			return res.img, res.formula, true
		}
		return nil, "", false
	default:
	}

	if r.sem.TryAcquire(1) {
		r.jobs <- formula
	}
	return nil, "", false
}

// Close stops the worker. Pending results are discarded.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	close(r.jobs)
	r.wg.Wait()
	select {
	case <-r.results:
	default:
	}
}
