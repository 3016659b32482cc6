// Copyright 2026 Dominik Schlosser
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

package format

import "strings"

// InputKind is what a piece of CLI input looks like.
type InputKind string

const (
	KindEngagementURI InputKind = "engagement_uri"
	KindPEM           InputKind = "pem"
	KindCBOR          InputKind = "cbor"
	KindUnknown       InputKind = "unknown"
)

// Detect classifies input.
//
// Detection order:
//  1. "mdoc:" engagement URI
//  2. PEM armor
//  3. hex or base64url encoded CBOR
func Detect(input string) InputKind {
	input = strings.TrimSpace(input)
	if input == "" {
		return KindUnknown
	}
	if strings.HasPrefix(strings.ToLower(input), "mdoc:") {
		return KindEngagementURI
	}
	if strings.HasPrefix(input, "-----BEGIN") {
		return KindPEM
	}
	if _, err := DecodeCBOR(input); err == nil {
		return KindCBOR
	}
	return KindUnknown
}

func isHex(s string) bool {
	if len(s) < 2 || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// isCBORStart checks if a byte starts a CBOR map, array or tag.
func isCBORStart(b byte) bool {
	major := b >> 5
	return major == 5 || major == 6 || major == 4
}
