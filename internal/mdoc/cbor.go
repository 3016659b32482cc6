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

package mdoc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// TagEncodedCBOR is the CBOR tag for embedded CBOR data items (RFC 8949, 3.4.5.1).
const TagEncodedCBOR = 24

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339
	encOpts.TimeTag = cbor.EncTagRequired
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(err)
	}

	cborDecMode, err = cbor.DecOptions{
		IntDec:    cbor.IntDecConvertSigned,
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v with the deterministic encoding used for everything that is hashed or signed.
func Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return cborDecMode.Unmarshal(data, v)
}

// Tagged24 wraps a value that travels as #6.24(bstr .cbor T). The inner bytes are kept
// exactly as received so digests and signatures can be recomputed over them.
type Tagged24[T any] struct {
	Value T
	inner []byte
}

// NewTagged24 encodes v once and fixes its embedded bytes.
func NewTagged24[T any](v T) (Tagged24[T], error) {
	inner, err := cborEncMode.Marshal(v)
	if err != nil {
		return Tagged24[T]{}, fmt.Errorf("encoding embedded CBOR: %w", err)
	}
	return Tagged24[T]{Value: v, inner: inner}, nil
}

// InnerBytes returns the embedded CBOR encoding of the value.
func (t Tagged24[T]) InnerBytes() ([]byte, error) {
	if t.inner != nil {
		return t.inner, nil
	}
	return cborEncMode.Marshal(t.Value)
}

// MarshalCBOR implements cbor.Marshaler.
func (t Tagged24[T]) MarshalCBOR() ([]byte, error) {
	inner, err := t.InnerBytes()
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(cbor.Tag{Number: TagEncodedCBOR, Content: inner})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (t *Tagged24[T]) UnmarshalCBOR(data []byte) error {
	inner, err := unmarshalTag24(data)
	if err != nil {
		return err
	}
	var v T
	if err := cborDecMode.Unmarshal(inner, &v); err != nil {
		return fmt.Errorf("decoding embedded CBOR: %w", err)
	}
	t.Value = v
	t.inner = bytes.Clone(inner)
	return nil
}

// unmarshalTag24 decodes CBOR Tag 24, returning the inner bytes.
func unmarshalTag24(data []byte) ([]byte, error) {
	var raw cbor.RawTag
	if err := cborDecMode.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("expected tag 24: %w", err)
	}
	if raw.Number != TagEncodedCBOR {
		return nil, fmt.Errorf("expected tag 24, got tag %d", raw.Number)
	}

	var inner []byte
	if err := cborDecMode.Unmarshal(raw.Content, &inner); err != nil {
		return nil, fmt.Errorf("unwrapping tag 24 content: %w", err)
	}
	return inner, nil
}

// Entry is one key/value pair of an OrderedMap.
type Entry[V any] struct {
	Key   string
	Value V
}

// OrderedMap is a text-keyed CBOR map that keeps wire order on decode and insertion
// order on encode. Name spaces and data elements use it because their order is
// visible to the user and to the holder's disclosure choices.
type OrderedMap[V any] struct {
	entries []Entry[V]
}

// Set inserts or replaces key, keeping the position of an existing key.
func (m *OrderedMap[V]) Set(key string, value V) {
	for i := range m.entries {
		if m.entries[i].Key == key {
			m.entries[i].Value = value
			return
		}
	}
	m.entries = append(m.entries, Entry[V]{Key: key, Value: value})
}

// Get returns the value stored under key.
func (m OrderedMap[V]) Get(key string) (V, bool) {
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	var zero V
	return zero, false
}

// Keys returns the keys in order.
func (m OrderedMap[V]) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns the pairs in order. The returned slice must not be modified.
func (m OrderedMap[V]) Entries() []Entry[V] {
	return m.entries
}

// Len returns the number of entries.
func (m OrderedMap[V]) Len() int {
	return len(m.entries)
}

// MarshalCBOR implements cbor.Marshaler.
func (m OrderedMap[V]) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(encodeHead(5, uint64(len(m.entries))))
	for _, e := range m.entries {
		k, err := cborEncMode.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := cborEncMode.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding value of %q: %w", e.Key, err)
		}
		buf.Write(k)
		buf.Write(v)
	}
	return buf.Bytes(), nil
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *OrderedMap[V]) UnmarshalCBOR(data []byte) error {
	n, rest, err := decodeMapHead(data)
	if err != nil {
		return err
	}

	entries := make([]Entry[V], 0, n)
	seen := make(map[string]struct{}, n)
	for i := uint64(0); i < n; i++ {
		var key string
		rest, err = cborDecMode.UnmarshalFirst(rest, &key)
		if err != nil {
			return fmt.Errorf("decoding map key: %w", err)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate map key %q", key)
		}
		seen[key] = struct{}{}

		var value V
		rest, err = cborDecMode.UnmarshalFirst(rest, &value)
		if err != nil {
			return fmt.Errorf("decoding value of %q: %w", key, err)
		}
		entries = append(entries, Entry[V]{Key: key, Value: value})
	}
	if len(rest) != 0 {
		return errors.New("trailing data after map")
	}

	m.entries = entries
	return nil
}

// encodeHead and decodeMapHead handle only the map header. Keys and values go through
// the cbor modes above.
func encodeHead(major byte, n uint64) []byte {
	mt := major << 5
	switch {
	case n < 24:
		return []byte{mt | byte(n)}
	case n <= 0xff:
		return []byte{mt | 24, byte(n)}
	case n <= 0xffff:
		b := []byte{mt | 25, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	case n <= 0xffffffff:
		b := []byte{mt | 26, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	default:
		b := []byte{mt | 27, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint64(b[1:], n)
		return b
	}
}

func decodeMapHead(data []byte) (uint64, []byte, error) {
	if len(data) == 0 {
		return 0, nil, errors.New("empty input")
	}
	if data[0]>>5 != 5 {
		return 0, nil, fmt.Errorf("expected map, got major type %d", data[0]>>5)
	}

	info := data[0] & 0x1f
	switch {
	case info < 24:
		return uint64(info), data[1:], nil
	case info == 24 && len(data) >= 2:
		return uint64(data[1]), data[2:], nil
	case info == 25 && len(data) >= 3:
		return uint64(binary.BigEndian.Uint16(data[1:3])), data[3:], nil
	case info == 26 && len(data) >= 5:
		return uint64(binary.BigEndian.Uint32(data[1:5])), data[5:], nil
	case info == 27 && len(data) >= 9:
		return binary.BigEndian.Uint64(data[1:9]), data[9:], nil
	case info == 31:
		return 0, nil, errors.New("indefinite-length maps are not supported")
	default:
		return 0, nil, errors.New("truncated map header")
	}
}
