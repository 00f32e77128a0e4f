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
	"sync"
	"time"
)

var (
	// ErrRequestInFlight is returned by Submit while a previous request on the
	// same session has not completed.
	ErrRequestInFlight = errors.New("inference request already in flight")

	// ErrSessionClosed is returned when submitting to a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// InferRequest is a pollable handle for one submitted inference.
// It is created by AsyncSession.Submit and completes exactly once.
type InferRequest struct {
	done chan struct{}

	mu      sync.Mutex
	outputs []NamedTensor
	err     error
}

// Wait blocks until the request completes or the timeout elapses.
// A negative timeout blocks indefinitely. Returns true once the request has
// completed (successfully or not).
func (r *InferRequest) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		<-r.done
		return true
	}
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Outputs returns the named output tensors and the terminal error.
// Only meaningful after Wait has returned true.
func (r *InferRequest) Outputs() ([]NamedTensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs, r.err
}

func (r *InferRequest) complete(outputs []NamedTensor, err error) {
	r.mu.Lock()
	r.outputs = outputs
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// AsyncSession layers a submit/poll contract over a blocking Session.
// Submissions execute on a single dedicated worker goroutine, so at most one
// request is in flight at a time; Submit fails rather than queueing.
type AsyncSession struct {
	session Session

	jobs chan asyncJob
	wg   sync.WaitGroup

	mu       sync.Mutex
	inflight *InferRequest
	closed   bool
}

type asyncJob struct {
	inputs  []NamedTensor
	request *InferRequest
}

// NewAsyncSession wraps session and starts its worker.
// The AsyncSession owns the underlying session; Close closes both.
func NewAsyncSession(session Session) *AsyncSession {
	s := &AsyncSession{
		session: session,
		jobs:    make(chan asyncJob),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *AsyncSession) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		outputs, err := s.session.Run(job.inputs)
		job.request.complete(outputs, err)
	}
}

// Submit dispatches one inference and returns its handle immediately.
// Returns ErrRequestInFlight if the previous request has not completed yet.
func (s *AsyncSession) Submit(inputs []NamedTensor) (*InferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.inflight != nil {
		select {
		case <-s.inflight.done:
			s.inflight = nil
		default:
			return nil, ErrRequestInFlight
		}
	}

	req := &InferRequest{done: make(chan struct{})}
	s.inflight = req
	s.jobs <- asyncJob{inputs: inputs, request: req}
	return req, nil
}

// InputInfo returns metadata about the wrapped session's inputs.
func (s *AsyncSession) InputInfo() []TensorInfo {
	return s.session.InputInfo()
}

// OutputInfo returns metadata about the wrapped session's outputs.
func (s *AsyncSession) OutputInfo() []TensorInfo {
	return s.session.OutputInfo()
}

// Close waits for the in-flight request (if any), stops the worker and closes
// the underlying session.
func (s *AsyncSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	inflight := s.inflight
	s.mu.Unlock()

	if inflight != nil {
		<-inflight.done
	}
	close(s.jobs)
	s.wg.Wait()
	return s.session.Close()
}
