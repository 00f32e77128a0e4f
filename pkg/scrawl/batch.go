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

package scrawl

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"

	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"
)

// ListInputs expands an input path into an ordered list of image files. A
// directory yields its files in sorted name order; a plain file yields
// itself.
func ListInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading input path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing input directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// RecognizeFiles decodes each image in turn, writing accepted predictions to
// w as one "name<TAB>formula" line per image. Images that fail to load or
// whose prediction falls below the confidence threshold are skipped with a
// log entry; inference errors abort the run.
func (r *Recognizer) RecognizeFiles(ctx context.Context, files []string, w io.Writer) error {
	for _, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		img, err := loadImage(file)
		if err != nil {
			r.logger.Warn("skipping unreadable image", zap.String("file", file), zap.Error(err))
			continue
		}

		phrase, conf, err := r.Recognize(ctx, img)
		if err != nil {
			return fmt.Errorf("recognizing %s: %w", file, err)
		}
		if phrase == "" {
			r.logger.Info("prediction below confidence threshold, skipping",
				zap.String("file", file), zap.Float64("confidence", conf))
			continue
		}

		r.logger.Info("formula recognized",
			zap.String("file", file),
			zap.String("formula", phrase),
			zap.Float64("confidence", conf))
		if _, err := fmt.Fprintf(w, "%s\t%s\n", filepath.Base(file), phrase); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}
	return nil
}

// RunBatch recognizes every image under input and appends results to the
// output file, or prints them to stdout when output is empty.
func (r *Recognizer) RunBatch(ctx context.Context, input, output string) error {
	files, err := ListInputs(input)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	return r.RecognizeFiles(ctx, files, w)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
