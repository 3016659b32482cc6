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
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrNotCBOR is returned when decoded input does not start with a CBOR map, array or tag.
var ErrNotCBOR = errors.New("input is not CBOR")

var (
	urlEncodings = []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding}
	stdEncodings = []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding}
)

// DecodeBase64URL decodes base64url with or without padding. Engagement URIs are unpadded.
func DecodeBase64URL(s string) ([]byte, error) {
	return decodeAny(s, urlEncodings)
}

// DecodeBase64Std decodes standard base64 with or without padding, as used for DER in
// trust lists.
func DecodeBase64Std(s string) ([]byte, error) {
	return decodeAny(s, stdEncodings)
}

func decodeAny(s string, encodings []*base64.Encoding) ([]byte, error) {
	var firstErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// EncodeBase64URL encodes bytes as base64url without padding.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeHexOrBase64URL decodes hex when s is valid hex and base64url otherwise.
func DecodeHexOrBase64URL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if isHex(s) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return DecodeBase64URL(s)
}

// DecodeCBOR decodes hex or base64url input and checks that it starts a CBOR map, array or
// tag, the shapes of engagements, mdocs and session messages.
func DecodeCBOR(s string) ([]byte, error) {
	b, err := DecodeHexOrBase64URL(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || !isCBORStart(b[0]) {
		return nil, ErrNotCBOR
	}
	return b, nil
}
