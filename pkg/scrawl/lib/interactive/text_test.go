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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripInternalSpaces(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain tokens untouched", "x + y", "x + y"},
		{"braces tightened", "\\frac { a } { b }", "\\frac {a} {b}"},
		{"parens tightened", "( x + y )", "(x + y)"},
		{"digit runs joined", "1 2 3 4", "1234"},
		{"decimal joined", "3 . 1 4", "3.14"},
		{"exponent joined", "x ^ 2", "x^2"},
		{"mixed", "y = ( 1 0 ) ^ { 2 }", "y = (10)^{2}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripInternalSpaces(tc.in))
		})
	}
}
