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

package backends

import (
	"errors"
	"testing"
	"time"
)

// blockingSession is a Session whose Run blocks until released.
type blockingSession struct {
	release chan struct{}
	outputs []NamedTensor
	err     error
}

func (s *blockingSession) Run(inputs []NamedTensor) ([]NamedTensor, error) {
	if s.release != nil {
		<-s.release
	}
	return s.outputs, s.err
}

func (s *blockingSession) InputInfo() []TensorInfo  { return nil }
func (s *blockingSession) OutputInfo() []TensorInfo { return nil }
func (s *blockingSession) Close() error             { return nil }

func TestAsyncSession_WaitTimesOutWhileRunning(t *testing.T) {
	inner := &blockingSession{release: make(chan struct{})}
	s := NewAsyncSession(inner)
	defer func() { close(inner.release); _ = s.Close() }()

	req, err := s.Submit(nil)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if req.Wait(time.Millisecond) {
		t.Fatal("Wait reported completion while Run is still blocked")
	}
}

func TestAsyncSession_SecondSubmitRejected(t *testing.T) {
	inner := &blockingSession{release: make(chan struct{})}
	s := NewAsyncSession(inner)
	defer func() { close(inner.release); _ = s.Close() }()

	if _, err := s.Submit(nil); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}

	if _, err := s.Submit(nil); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
}

func TestAsyncSession_CompletesWithOutputs(t *testing.T) {
	want := []NamedTensor{{Name: "logit", Shape: []int64{1, 4}, Data: []float32{0, 1, 2, 3}}}
	s := NewAsyncSession(&blockingSession{outputs: want})
	defer func() { _ = s.Close() }()

	req, err := s.Submit(nil)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !req.Wait(-1) {
		t.Fatal("blocking Wait returned false")
	}

	outputs, err := req.Outputs()
	if err != nil {
		t.Fatalf("Outputs returned error: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Name != "logit" {
		t.Fatalf("unexpected outputs: %+v", outputs)
	}
}

func TestAsyncSession_ResubmitAfterCompletion(t *testing.T) {
	s := NewAsyncSession(&blockingSession{})
	defer func() { _ = s.Close() }()

	req, err := s.Submit(nil)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	req.Wait(-1)

	if _, err := s.Submit(nil); err != nil {
		t.Fatalf("Submit after completion returned error: %v", err)
	}
}

func TestAsyncSession_RunErrorSurfacesOnOutputs(t *testing.T) {
	wantErr := errors.New("boom")
	s := NewAsyncSession(&blockingSession{err: wantErr})
	defer func() { _ = s.Close() }()

	req, err := s.Submit(nil)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	req.Wait(-1)

	if _, err := req.Outputs(); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped run error, got %v", err)
	}
}

func TestAsyncSession_SubmitAfterCloseFails(t *testing.T) {
	s := NewAsyncSession(&blockingSession{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if _, err := s.Submit(nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestNamedTensor_NumElements(t *testing.T) {
	tensor := NamedTensor{Shape: []int64{1, 3, 160, 1400}}
	if got := tensor.NumElements(); got != 1*3*160*1400 {
		t.Fatalf("NumElements = %d", got)
	}
}
