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
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrawl-ai/scrawl/pkg/scrawl"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/interactive"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/preprocess"
	"github.com/scrawl-ai/scrawl/pkg/scrawl/lib/rendering"
)

var (
	interactiveFlags     modelFlags
	interactiveInput     string
	interactiveLoop      bool
	interactiveRenderOut string
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Recognize formulas frame by frame",
	Long: `Feed a sequence of frames through non-blocking recognition: each frame
advances the decode by one bounded poll, so predictions refine over time the
way they would against a live capture feed. Frames are read from an image
file or directory; accepted predictions are printed as they change and the
typeset formula, when a LaTeX toolchain is installed, is written as a PNG.`,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)

	interactiveFlags.register(interactiveCmd.Flags())
	interactiveCmd.Flags().StringVar(&interactiveInput, "input", "", "frame image file or directory (required)")
	interactiveCmd.Flags().BoolVar(&interactiveLoop, "loop", false, "replay frames until interrupted")
	interactiveCmd.Flags().StringVar(&interactiveRenderOut, "render-out", "", "write the latest typeset formula PNG to this path")

	for _, flag := range []string{"encoder", "decoder", "vocab", "input"} {
		if err := interactiveCmd.MarkFlagRequired(flag); err != nil {
			panic(err)
		}
	}
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	recognizer, err := scrawl.NewRecognizer(logger, interactiveFlags.config())
	if err != nil {
		return err
	}
	defer func() {
		_ = recognizer.Close()
	}()

	mode, err := preprocess.ParseMode(interactiveFlags.preprocessing)
	if err != nil {
		return err
	}

	renderer := rendering.CreateRenderer(logger)
	defer renderer.Close()

	driver, err := interactive.NewDriver(recognizer.Pipeline(), recognizer.Vocab(), renderer, interactive.Config{
		ConfThreshold:  recognizer.ConfThreshold(),
		PreprocessMode: mode,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	files, err := scrawl.ListInputs(interactiveInput)
	if err != nil {
		return err
	}
	source := interactive.NewImageSource(files, interactiveLoop)

	var lastPhrase string
	sink := interactive.SinkFunc(func(ctx context.Context, overlay *interactive.Overlay) error {
		if overlay.Phrase != "" && overlay.Phrase != lastPhrase {
			lastPhrase = overlay.Phrase
			fmt.Fprintln(os.Stdout, overlay.Phrase)
		}
		if overlay.Rendered != nil && interactiveRenderOut != "" {
			if err := writePNG(interactiveRenderOut, overlay); err != nil {
				return err
			}
		}
		return nil
	})

	err = driver.Run(ctx, source, sink)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writePNG(path string, overlay *interactive.Overlay) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating render output: %w", err)
	}
	defer func() { _ = f.Close() }()
	return png.Encode(f, overlay.Rendered)
}
