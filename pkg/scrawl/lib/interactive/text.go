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
	"regexp"
	"strings"
)

var (
	digitSpaceDigit = regexp.MustCompile(`(\d) (\d)`)
	digitSpaceDot   = regexp.MustCompile(`(\d) (\.)`)
	dotSpaceDigit   = regexp.MustCompile(`(\.) (\d)`)
)

// StripInternalSpaces tightens a token-joined phrase for display: spaces
// after opening braces/parentheses and before closing ones, between digits,
// between digit and dot, and around the ^ symbol are removed.
func StripInternalSpaces(text string) string {
	text = strings.ReplaceAll(text, "{ ", "{")
	text = strings.ReplaceAll(text, " }", "}")
	text = strings.ReplaceAll(text, "( ", "(")
	text = strings.ReplaceAll(text, " )", ")")
	for digitSpaceDigit.MatchString(text) {
		text = digitSpaceDigit.ReplaceAllString(text, "$1$2")
	}
	text = digitSpaceDot.ReplaceAllString(text, "$1$2")
	text = dotSpaceDigit.ReplaceAllString(text, "$1$2")
	text = strings.ReplaceAll(text, " ^ ", "^")
	return text
}
