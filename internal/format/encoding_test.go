// Copyright 2025 Dominik Schlosser
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

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeBase64(t *testing.T) {
	tests := []struct {
		name   string
		decode func(string) ([]byte, error)
		input  string
		want   string
	}{
		{"url unpadded", DecodeBase64URL, "aGVsbG8_", "hello?"},
		{"url padded", DecodeBase64URL, "aGk=", "hi"},
		{"url empty", DecodeBase64URL, "", ""},
		{"std padded", DecodeBase64Std, "aGVsbG8+", "hello>"},
		{"std unpadded", DecodeBase64Std, "aGk", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.decode(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := DecodeBase64URL("aGVsbG8+"); err == nil {
		t.Error("expected standard alphabet to be rejected by DecodeBase64URL")
	}
	if _, err := DecodeBase64Std("not base64!"); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestEncodeBase64URL(t *testing.T) {
	if got := EncodeBase64URL([]byte{0xa1, 0x01, 0x02}); got != "oQEC" {
		t.Errorf("EncodeBase64URL = %q, want %q", got, "oQEC")
	}
}

func TestDecodeHexOrBase64URL(t *testing.T) {
	got, err := DecodeHexOrBase64URL(" a10102 ")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xa1, 0x01, 0x02}) {
		t.Errorf("hex decode got %x", got)
	}

	got, err = DecodeHexOrBase64URL("oQEC")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xa1, 0x01, 0x02}) {
		t.Errorf("base64url decode got %x", got)
	}
}

func TestDecodeCBOR(t *testing.T) {
	got, err := DecodeCBOR("d81843a10102")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Errorf("expected 6 bytes, got %d", len(got))
	}

	if _, err := DecodeCBOR("7f7f"); !errors.Is(err, ErrNotCBOR) {
		t.Errorf("expected ErrNotCBOR, got %v", err)
	}
	if _, err := DecodeCBOR(""); !errors.Is(err, ErrNotCBOR) {
		t.Errorf("expected ErrNotCBOR for empty input, got %v", err)
	}
}
