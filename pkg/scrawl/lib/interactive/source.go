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
	"fmt"
	"image"
	"io"
	"os"

	_ "image/jpeg"
	_ "image/png"
)

// ImageSource replays a fixed list of image files as frames. With loop set,
// the list repeats forever (a still frame stands in for a live feed);
// otherwise NextFrame returns io.EOF after the last file.
type ImageSource struct {
	files []string
	idx   int
	loop  bool
}

// NewImageSource builds a source over image file paths.
func NewImageSource(files []string, loop bool) *ImageSource {
	return &ImageSource{files: files, loop: loop}
}

// NextFrame implements FrameSource.
func (s *ImageSource) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.files) == 0 {
		return nil, io.EOF
	}
	if s.idx >= len(s.files) {
		if !s.loop {
			return nil, io.EOF
		}
		s.idx = 0
	}

	path := s.files[s.idx]
	s.idx++

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frame %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", path, err)
	}
	return img, nil
}
