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

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  InputKind
	}{
		{"engagement URI", "mdoc:owBjMS4w", KindEngagementURI},
		{"engagement URI upper case", "MDOC:owBjMS4w", KindEngagementURI},
		{"PEM", "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----", KindPEM},
		{"hex map", "a10102", KindCBOR},
		{"hex tag 24", "d81843a10102", KindCBOR},
		{"base64url map", "oQEC", KindCBOR},
		{"hex non-CBOR", "7f7f", KindUnknown},
		{"plain text", "hello world", KindUnknown},
		{"empty", "   ", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.input); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsHex(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abcdef", true},
		{"ABCDEF01", true},
		{"a", false},
		{"abc", false},
		{"ghij", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isHex(tt.input); got != tt.want {
			t.Errorf("isHex(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsCBORStart(t *testing.T) {
	tests := []struct {
		b    byte
		want bool
	}{
		{0xa0, true},
		{0xbf, true},
		{0xd8, true},
		{0x80, true},
		{0x00, false},
		{0x40, false},
		{0x60, false},
	}
	for _, tt := range tests {
		if got := isCBORStart(tt.b); got != tt.want {
			t.Errorf("isCBORStart(0x%02x) = %v, want %v", tt.b, got, tt.want)
		}
	}
}
