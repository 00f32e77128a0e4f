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
package cmd

import (
	"github.com/spf13/pflag"

	"github.com/scrawl-ai/scrawl/pkg/scrawl"
)

// modelFlags collects the model and decoding options shared by the recognize
// and interactive commands.
type modelFlags struct {
	encoderPath   string
	decoderPath   string
	vocabPath     string
	device        string
	numThreads    int
	maxFormulaLen int
	confThresh    float64
	preprocessing string

	imgs       string
	rowEncOut  string
	hidden     string
	contextIn  string
	init0      string
	decStC     string
	decStH     string
	outputPrev string
	tgt        string
	decStCT    string
	decStHT    string
	output     string
	logit      string
}

func (f *modelFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.encoderPath, "encoder", "", "encoder model file (required)")
	fs.StringVar(&f.decoderPath, "decoder", "", "decoder model file (required)")
	fs.StringVar(&f.vocabPath, "vocab", "", "vocabulary JSON file (required)")
	fs.StringVar(&f.device, "device", "cpu", "execution device (cpu, gpu, auto)")
	fs.IntVar(&f.numThreads, "threads", 0, "inference threads (0 = auto)")
	fs.IntVar(&f.maxFormulaLen, "max-formula-len", 128, "maximum decoder steps per formula")
	fs.Float64Var(&f.confThresh, "conf-thresh", scrawl.DefaultConfThreshold, "per-token confidence threshold")
	fs.StringVar(&f.preprocessing, "preprocessing", "crop", "input shaping mode (crop, resize)")

	// Tensor name overrides for models exported with nonstandard bindings.
	fs.StringVar(&f.imgs, "imgs-layer", "", "encoder input tensor name")
	fs.StringVar(&f.rowEncOut, "row-enc-out-layer", "", "encoder feature-map output tensor name")
	fs.StringVar(&f.hidden, "hidden-layer", "", "encoder hidden-state output tensor name")
	fs.StringVar(&f.contextIn, "context-layer", "", "encoder context output tensor name")
	fs.StringVar(&f.init0, "init-0-layer", "", "encoder initial-token output tensor name")
	fs.StringVar(&f.decStC, "dec-st-c-layer", "", "decoder cell-state input tensor name")
	fs.StringVar(&f.decStH, "dec-st-h-layer", "", "decoder hidden-state input tensor name")
	fs.StringVar(&f.outputPrev, "output-prev-layer", "", "decoder previous-output input tensor name")
	fs.StringVar(&f.tgt, "tgt-layer", "", "decoder target-token input tensor name")
	fs.StringVar(&f.decStCT, "dec-st-c-t-layer", "", "decoder cell-state output tensor name")
	fs.StringVar(&f.decStHT, "dec-st-h-t-layer", "", "decoder hidden-state output tensor name")
	fs.StringVar(&f.output, "output-layer", "", "decoder output tensor name")
	fs.StringVar(&f.logit, "logit-layer", "", "decoder logit output tensor name")
}

func (f *modelFlags) config() scrawl.Config {
	cfg := scrawl.Config{
		EncoderPath:    f.encoderPath,
		DecoderPath:    f.decoderPath,
		VocabPath:      f.vocabPath,
		Device:         f.device,
		NumThreads:     f.numThreads,
		MaxFormulaLen:  f.maxFormulaLen,
		ConfThreshold:  f.confThresh,
		PreprocessMode: f.preprocessing,
	}
	cfg.Bindings.Imgs = f.imgs
	cfg.Bindings.RowEncOut = f.rowEncOut
	cfg.Bindings.Hidden = f.hidden
	cfg.Bindings.Context = f.contextIn
	cfg.Bindings.Init0 = f.init0
	cfg.Bindings.DecStC = f.decStC
	cfg.Bindings.DecStH = f.decStH
	cfg.Bindings.OutputPrev = f.outputPrev
	cfg.Bindings.Tgt = f.tgt
	cfg.Bindings.DecStCT = f.decStCT
	cfg.Bindings.DecStHT = f.decStHT
	cfg.Bindings.Output = f.output
	cfg.Bindings.Logit = f.logit
	return cfg
}
