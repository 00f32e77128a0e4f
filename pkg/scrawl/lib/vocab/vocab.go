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

// Package vocab maps decoder token IDs to LaTeX signs and composes decoded
// token sequences into human-readable formulas.
package vocab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Placeholder is substituted for token IDs missing from the table.
const Placeholder = "?"

// ErrFormat indicates the vocabulary resource is not the expected
// id2sign JSON table.
var ErrFormat = errors.New("unexpected vocabulary format")

// Vocab is an immutable token-ID to sign table.
type Vocab struct {
	id2sign  map[int32]string
	endToken int32
}

// vocabFile mirrors the on-disk structure: {"id2sign": {"0": "<s>", ...}}.
type vocabFile struct {
	ID2Sign map[string]string `json:"id2sign"`
}

// Load reads a vocabulary from a JSON resource.
// The file must have a .json extension and contain an id2sign object keyed by
// integer strings; anything else fails with ErrFormat.
func Load(path string, endToken int32) (*Vocab, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("%w: %s is not a .json file", ErrFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}

	var file vocabFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(file.ID2Sign) == 0 {
		return nil, fmt.Errorf("%w: missing id2sign table", ErrFormat)
	}

	table := make(map[int32]string, len(file.ID2Sign))
	for key, sign := range file.ID2Sign {
		id, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: non-integer token id %q", ErrFormat, key)
		}
		table[int32(id)] = sign
	}

	return &Vocab{id2sign: table, endToken: endToken}, nil
}

// New builds a vocabulary from an in-memory table.
func New(id2sign map[int32]string, endToken int32) *Vocab {
	table := make(map[int32]string, len(id2sign))
	for id, sign := range id2sign {
		table[id] = sign
	}
	return &Vocab{id2sign: table, endToken: endToken}
}

// Len returns the number of entries in the table.
func (v *Vocab) Len() int {
	return len(v.id2sign)
}

// Sign returns the display string for a token ID, or Placeholder if the ID is
// not in the table.
func (v *Vocab) Sign(id int32) string {
	if sign, ok := v.id2sign[id]; ok {
		return sign
	}
	return Placeholder
}

// ConstructPhrase composes decoded token IDs into a space-joined formula.
// Iteration stops at the first end token, which is not rendered.
// Unknown tokens never fail; they render as Placeholder.
func (v *Vocab) ConstructPhrase(tokens []int32) string {
	var b strings.Builder
	for i, token := range tokens {
		if token == v.endToken {
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.Sign(token))
	}
	return b.String()
}
