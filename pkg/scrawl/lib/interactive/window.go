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
	"image"
	"image/draw"
)

// Capture-window geometry defaults, in pixels.
const (
	DefaultFrameWidth  = 1280
	DefaultFrameHeight = 720
	DefaultWindowWidth = 800
	MinWindowHeight    = 30
	MaxWindowHeight    = 150
	MinWindowWidth     = 260
	MaxWindowWidth     = 1200
	ResizeStep         = 10
)

// ResizeAction grows or shrinks the capture window.
type ResizeAction int

const (
	ResizeIncrease ResizeAction = iota
	ResizeDecrease
)

// CaptureWindow is the user-adjustable region of the camera frame fed to the
// recognizer. It keeps the model input's aspect ratio and stays centered.
type CaptureWindow struct {
	start image.Point
	end   image.Point
}

// NewCaptureWindow centers a window with the model input's aspect ratio in a
// frame of the given resolution.
func NewCaptureWindow(modelHeight, modelWidth int, frameWidth, frameHeight int) *CaptureWindow {
	aspect := float64(modelHeight) / float64(modelWidth)
	width := DefaultWindowWidth
	height := int(float64(width) * aspect)
	return &CaptureWindow{
		start: image.Pt(frameWidth/2-width/2, frameHeight/2-height/2),
		end:   image.Pt(frameWidth/2+width/2, frameHeight/2+height/2),
	}
}

// Rect returns the window's bounds within the frame.
func (w *CaptureWindow) Rect() image.Rectangle {
	return image.Rectangle{Min: w.start, Max: w.end}
}

// Crop copies the window's region out of a frame.
func (w *CaptureWindow) Crop(frame image.Image) image.Image {
	r := w.Rect().Intersect(frame.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
	return dst
}

// Resize grows or shrinks the window by one step, preserving aspect ratio and
// respecting the min/max bounds.
func (w *CaptureWindow) Resize(action ResizeAction) {
	height := w.end.Y - w.start.Y
	width := w.end.X - w.start.X
	aspect := float64(height) / float64(width)
	dy := int(float64(ResizeStep) * aspect)

	switch action {
	case ResizeIncrease:
		if height >= MaxWindowHeight || width >= MaxWindowWidth {
			return
		}
		w.start = image.Pt(w.start.X-ResizeStep, w.start.Y-dy)
		w.end = image.Pt(w.end.X+ResizeStep, w.end.Y+dy)
	case ResizeDecrease:
		if height <= MinWindowHeight || width <= MinWindowWidth {
			return
		}
		w.start = image.Pt(w.start.X+ResizeStep, w.start.Y+dy)
		w.end = image.Pt(w.end.X-ResizeStep, w.end.Y-dy)
	}
}
