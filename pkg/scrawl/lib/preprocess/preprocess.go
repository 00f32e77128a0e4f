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

// Package preprocess shapes raw formula images into the fixed-size tensors the
// encoder expects: crop or aspect-preserving resize, bottom-right white
// padding, optional binarization, and HWC to NCHW layout conversion.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Mode selects how an oversized image is reduced to the target shape.
type Mode string

const (
	// ModeCrop takes the top-left target_height x target_width region.
	ModeCrop Mode = "crop"
	// ModeResize scales the image down preserving aspect ratio.
	ModeResize Mode = "resize"
)

// BinarizeThreshold is the default grayscale cutoff for the interactive
// capture path.
const BinarizeThreshold = 120

// ParseMode validates a preprocessing mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCrop, ModeResize:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown preprocessing mode %q (want crop or resize)", s)
	}
}

// Crop returns the top-left region of img bounded by the target shape.
// Images already smaller than the target are returned unchanged.
func Crop(img image.Image, targetHeight, targetWidth int) image.Image {
	b := img.Bounds()
	w := min(targetWidth, b.Dx())
	h := min(targetHeight, b.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Resize scales img by min(targetHeight/h, targetWidth/w), preserving the
// aspect ratio so the result fits within the target shape.
func Resize(img image.Image, targetHeight, targetWidth int) image.Image {
	b := img.Bounds()
	scale := min(float64(targetHeight)/float64(b.Dy()), float64(targetWidth)/float64(b.Dx()))

	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// PrepareImage crops or resizes with constant aspect ratio and pads the result
// bottom-right with white up to exactly target_height x target_width.
func PrepareImage(img image.Image, targetHeight, targetWidth int, mode Mode) (*image.RGBA, error) {
	switch mode {
	case ModeCrop:
		img = Crop(img, targetHeight, targetWidth)
	case ModeResize:
		img = Resize(img, targetHeight, targetWidth)
	default:
		return nil, fmt.Errorf("unknown preprocessing mode %q", mode)
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, img.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst, nil
}

// Binarize converts img to grayscale and thresholds it to pure black/white,
// keeping three identical channels.
func Binarize(img image.Image, threshold uint8) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			v := uint8(0)
			if gray > threshold {
				v = 255
			}
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return dst
}

// PrepareCrop binarizes a captured crop and shapes it for the encoder.
// This is the interactive-capture variant of PrepareImage.
func PrepareCrop(crop image.Image, targetHeight, targetWidth int, mode Mode) (*image.RGBA, error) {
	return PrepareImage(Binarize(crop, BinarizeThreshold), targetHeight, targetWidth, mode)
}

// ToNCHW converts an image into a channel-first float32 tensor with a leading
// batch dimension of one. Channels must be 1 (grayscale) or 3. Pixel values
// are kept in the 0-255 range; the models consume raw intensities.
func ToNCHW(img image.Image, channels int) ([]float32, []int64, error) {
	if channels != 1 && channels != 3 {
		return nil, nil, fmt.Errorf("unsupported channel count %d (want 1 or 3)", channels)
	}

	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	data := make([]float32, channels*h*w)

	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if channels == 1 {
				gray := color.GrayModel.Convert(c).(color.Gray).Y
				data[y*w+x] = float32(gray)
				continue
			}
			r, g, bl, _ := c.RGBA()
			idx := y*w + x
			data[idx] = float32(r >> 8)
			data[plane+idx] = float32(g >> 8)
			data[2*plane+idx] = float32(bl >> 8)
		}
	}

	return data, []int64{1, int64(channels), int64(h), int64(w)}, nil
}
