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

package rendering

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// Density is the rasterization resolution in dots per inch.
const Density = 300

// ErrToolchainMissing indicates the external LaTeX toolchain is not installed.
var ErrToolchainMissing = errors.New("latex toolchain not found")

// Typesetter rasterizes one LaTeX formula into a bitmap.
type Typesetter interface {
	Render(formula string) (image.Image, error)
}

// latexTypesetter shells out to pdflatex and dvipng.
type latexTypesetter struct {
	pdflatex string
	dvipng   string
	logger   *zap.Logger
}

// NewLaTeXTypesetter probes the host for pdflatex and dvipng.
// Returns ErrToolchainMissing when either tool is absent.
func NewLaTeXTypesetter(logger *zap.Logger) (Typesetter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pdflatex, err := exec.LookPath("pdflatex")
	if err != nil {
		return nil, fmt.Errorf("%w: pdflatex", ErrToolchainMissing)
	}
	dvipng, err := exec.LookPath("dvipng")
	if err != nil {
		return nil, fmt.Errorf("%w: dvipng", ErrToolchainMissing)
	}
	return &latexTypesetter{pdflatex: pdflatex, dvipng: dvipng, logger: logger}, nil
}

const documentTemplate = `\documentclass[preview]{standalone}
\usepackage{amsmath}
\usepackage{amssymb}
\begin{document}
$$%s$$
\end{document}
`

// Render typesets the formula to DVI and rasterizes it to a tightly cropped
// PNG. All intermediates live in a per-call temp directory.
func (t *latexTypesetter) Render(formula string) (image.Image, error) {
	dir, err := os.MkdirTemp("", "scrawl-render-*")
	if err != nil {
		return nil, fmt.Errorf("creating render dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	texPath := filepath.Join(dir, "formula.tex")
	doc := fmt.Sprintf(documentTemplate, formula)
	if err := os.WriteFile(texPath, []byte(doc), 0o644); err != nil {
		return nil, fmt.Errorf("writing tex source: %w", err)
	}

	latex := exec.Command(t.pdflatex,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-output-format=dvi",
		"-output-directory", dir,
		texPath)
	if out, err := latex.CombinedOutput(); err != nil {
		t.logger.Debug("pdflatex failed", zap.ByteString("output", tail(out, 512)))
		return nil, fmt.Errorf("typesetting %q: %w", formula, err)
	}

	pngPath := filepath.Join(dir, "formula.png")
	dvipng := exec.Command(t.dvipng,
		"-D", fmt.Sprint(Density),
		"-T", "tight",
		"-bg", "White",
		"-o", pngPath,
		filepath.Join(dir, "formula.dvi"))
	if out, err := dvipng.CombinedOutput(); err != nil {
		t.logger.Debug("dvipng failed", zap.ByteString("output", tail(out, 512)))
		return nil, fmt.Errorf("rasterizing %q: %w", formula, err)
	}

	f, err := os.Open(pngPath)
	if err != nil {
		return nil, fmt.Errorf("opening rendered bitmap: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding rendered bitmap: %w", err)
	}
	return img, nil
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
