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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrawl-ai/scrawl/pkg/scrawl"
)

var (
	recognizeFlags  modelFlags
	recognizeInput  string
	recognizeOutput string
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize formulas in image files",
	Long: `Run blocking recognition over a single image or every image in a
directory, printing accepted predictions or appending them to a file as
name<TAB>formula lines.`,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeFlags.register(recognizeCmd.Flags())
	recognizeCmd.Flags().StringVar(&recognizeInput, "input", "", "image file or directory (required)")
	recognizeCmd.Flags().StringVar(&recognizeOutput, "output", "", "results file; prints to stdout when empty")

	for _, flag := range []string{"encoder", "decoder", "vocab", "input"} {
		if err := recognizeCmd.MarkFlagRequired(flag); err != nil {
			panic(err)
		}
	}
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	recognizer, err := scrawl.NewRecognizer(logger, recognizeFlags.config())
	if err != nil {
		return err
	}
	defer func() {
		_ = recognizer.Close()
	}()

	return recognizer.RunBatch(ctx, recognizeInput, recognizeOutput)
}
