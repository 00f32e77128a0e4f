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
	"image"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeTypesetter counts invocations and can block or fail on demand.
type fakeTypesetter struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{} // when non-nil, Render blocks until closed
}

func (f *fakeTypesetter) Render(formula string) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 10+len(formula), 10)), nil
}

func (f *fakeTypesetter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// pollUntilDone drives RenderAsync until it reports a result for formula.
func pollUntilDone(t *testing.T, r *Renderer, formula string) image.Image {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if img, got, ok := r.RenderAsync(formula); ok {
			if got != formula {
				t.Fatalf("rendered formula = %q, want %q", got, formula)
			}
			return img
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("render of %q never completed", formula)
	return nil
}

func TestRender_CachesRepeatedPhrase(t *testing.T) {
	ts := &fakeTypesetter{}
	r := NewRenderer(ts, zap.NewNop())
	defer r.Close()

	first, err := r.Render(`\frac{x}{y}`)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := r.Render(`\frac{x}{y}`)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if ts.callCount() != 1 {
		t.Fatalf("typesetter invoked %d times, want 1", ts.callCount())
	}
	if first != second {
		t.Fatal("second call did not return the cached bitmap")
	}
}

func TestRender_NewPhraseInvokesTool(t *testing.T) {
	ts := &fakeTypesetter{}
	r := NewRenderer(ts, zap.NewNop())
	defer r.Close()

	if _, err := r.Render("x"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := r.Render("y"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ts.callCount() != 2 {
		t.Fatalf("typesetter invoked %d times, want 2", ts.callCount())
	}
}

func TestRenderAsync_PendingThenDone(t *testing.T) {
	ts := &fakeTypesetter{}
	r := NewRenderer(ts, zap.NewNop())
	defer r.Close()

	if _, _, ok := r.RenderAsync("x + y"); ok {
		t.Fatal("first call must report pending")
	}
	img := pollUntilDone(t, r, "x + y")
	if img == nil {
		t.Fatal("nil bitmap for completed render")
	}

	// Same phrase again comes from cache without another invocation.
	calls := ts.callCount()
	if _, _, ok := r.RenderAsync("x + y"); !ok {
		t.Fatal("cached phrase must resolve immediately")
	}
	if ts.callCount() != calls {
		t.Fatal("cached phrase re-invoked the typesetter")
	}
}

func TestRenderAsync_DropsRequestsWhileBusy(t *testing.T) {
	ts := &fakeTypesetter{release: make(chan struct{})}
	r := NewRenderer(ts, zap.NewNop())

	r.RenderAsync("first")
	for i := 0; i < 5; i++ {
		if _, _, ok := r.RenderAsync("second"); ok {
			t.Fatal("busy renderer reported a result")
		}
	}
	if ts.callCount() != 1 {
		t.Fatalf("typesetter invoked %d times while busy, want 1", ts.callCount())
	}

	close(ts.release)
	r.Close()
}

func TestRenderAsync_StaleResultNotReturnedForNewPhrase(t *testing.T) {
	ts := &fakeTypesetter{}
	r := NewRenderer(ts, zap.NewNop())
	defer r.Close()

	r.RenderAsync("old")
	// Wait for the worker to finish, then ask for a different phrase: the
	// stale result is absorbed, not handed out.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, got, ok := r.RenderAsync("new"); ok {
			if got != "new" {
				t.Fatalf("got stale result for %q", got)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("render of new phrase never completed")
}

func TestRenderAsync_FailureSwallowedAndRetriable(t *testing.T) {
	ts := &fakeTypesetter{err: errors.New("malformed latex")}
	r := NewRenderer(ts, zap.NewNop())
	defer r.Close()

	r.RenderAsync("bad")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && ts.callCount() < 2 {
		if _, _, ok := r.RenderAsync("bad"); ok {
			t.Fatal("failed render must not report a result")
		}
		time.Sleep(time.Millisecond)
	}
	// After the failure was swallowed, a subsequent call dispatched again.
	if ts.callCount() < 2 {
		t.Fatalf("typesetter invoked %d times, want a retry after failure", ts.callCount())
	}
}

func TestFitWidth(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 100))
	fitted := FitWidth(img, 200)
	if fitted.Bounds().Dx() != 200 || fitted.Bounds().Dy() != 50 {
		t.Fatalf("fitted bounds = %v, want 200x50", fitted.Bounds())
	}

	narrow := image.NewRGBA(image.Rect(0, 0, 100, 40))
	if FitWidth(narrow, 200) != narrow {
		t.Fatal("narrow image must be returned unchanged")
	}
}
