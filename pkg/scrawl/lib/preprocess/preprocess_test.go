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

package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

// solidImage returns a w x h image filled with c.
func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("crop"); err != nil {
		t.Fatalf("ParseMode(crop): %v", err)
	}
	if _, err := ParseMode("resize"); err != nil {
		t.Fatalf("ParseMode(resize): %v", err)
	}
	if _, err := ParseMode("stretch"); err == nil {
		t.Fatal("ParseMode(stretch) should fail")
	}
}

func TestCrop_LargerThanTarget(t *testing.T) {
	img := solidImage(200, 100, color.Black)
	got := Crop(img, 40, 80).Bounds()
	if got.Dx() != 80 || got.Dy() != 40 {
		t.Fatalf("crop shape = %dx%d, want 80x40", got.Dx(), got.Dy())
	}
}

func TestCrop_SmallerThanTarget(t *testing.T) {
	img := solidImage(50, 20, color.Black)
	got := Crop(img, 40, 80).Bounds()
	if got.Dx() != 50 || got.Dy() != 20 {
		t.Fatalf("crop shape = %dx%d, want 50x20", got.Dx(), got.Dy())
	}
}

func TestResize_PreservesAspect(t *testing.T) {
	img := solidImage(400, 100, color.Black) // 4:1
	got := Resize(img, 50, 300).Bounds()
	// scale = min(50/100, 300/400) = 0.5
	if got.Dx() != 200 || got.Dy() != 50 {
		t.Fatalf("resize shape = %dx%d, want 200x50", got.Dx(), got.Dy())
	}
}

func TestPrepareImage_PadsBottomRightWhite(t *testing.T) {
	img := solidImage(50, 20, color.Black)
	out, err := PrepareImage(img, 40, 80, ModeCrop)
	if err != nil {
		t.Fatalf("PrepareImage: %v", err)
	}
	if out.Bounds().Dx() != 80 || out.Bounds().Dy() != 40 {
		t.Fatalf("padded shape = %v, want 80x40", out.Bounds())
	}

	// Content stays top-left, padding is white.
	if r, _, _, _ := out.At(10, 10).RGBA(); r != 0 {
		t.Errorf("content pixel not preserved: %v", out.At(10, 10))
	}
	if r, g, b, _ := out.At(79, 39).RGBA(); r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("pad pixel not white: %v", out.At(79, 39))
	}
}

func TestBinarize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 40, G: 40, B: 40, A: 255})    // below threshold
	img.SetRGBA(1, 0, color.RGBA{R: 200, G: 200, B: 200, A: 255}) // above threshold

	out := Binarize(img, BinarizeThreshold)
	if r, _, _, _ := out.At(0, 0).RGBA(); r != 0 {
		t.Errorf("dark pixel = %v, want black", out.At(0, 0))
	}
	if r, _, _, _ := out.At(1, 0).RGBA(); r != 0xffff {
		t.Errorf("light pixel = %v, want white", out.At(1, 0))
	}
}

func TestToNCHW_Shape(t *testing.T) {
	img := solidImage(4, 3, color.White)
	data, shape, err := ToNCHW(img, 3)
	if err != nil {
		t.Fatalf("ToNCHW: %v", err)
	}
	want := []int64{1, 3, 3, 4}
	for i, d := range want {
		if shape[i] != d {
			t.Fatalf("shape = %v, want %v", shape, want)
		}
	}
	if len(data) != 3*3*4 {
		t.Fatalf("data length = %d, want %d", len(data), 3*3*4)
	}
	for i, v := range data {
		if v != 255 {
			t.Fatalf("data[%d] = %v, want 255", i, v)
		}
	}
}

func TestToNCHW_ChannelFirstLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 40, G: 50, B: 60, A: 255})

	data, _, err := ToNCHW(img, 3)
	if err != nil {
		t.Fatalf("ToNCHW: %v", err)
	}
	want := []float32{10, 40, 20, 50, 30, 60} // R plane, G plane, B plane
	for i, w := range want {
		if data[i] != w {
			t.Fatalf("data = %v, want %v", data, want)
		}
	}
}

func TestToNCHW_BadChannels(t *testing.T) {
	if _, _, err := ToNCHW(solidImage(2, 2, color.White), 4); err == nil {
		t.Fatal("expected error for 4 channels")
	}
}
