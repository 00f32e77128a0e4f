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

//go:build !onnx

package backends

import "errors"

// NewSessionFactory returns an error when no inference backend is compiled in.
// Build with -tags onnx (and CGO enabled) to include the ONNX Runtime backend.
func NewSessionFactory() (SessionFactory, error) {
	return nil, errors.New("no inference backend compiled in (build with -tags onnx)")
}
