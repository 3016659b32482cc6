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

package mdoc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedMap_KeepsInsertionOrder(t *testing.T) {
	var m OrderedMap[int]
	m.Set("zeta", 1)
	m.Set("alpha", 2)
	m.Set("mid", 3)
	m.Set("alpha", 4)

	encoded, err := Marshal(m)
	require.NoError(t, err)

	var decoded OrderedMap[int]
	require.NoError(t, Unmarshal(encoded, &decoded))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, decoded.Keys())
	v, ok := decoded.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestOrderedMap_KeepsWireOrder(t *testing.T) {
	// {"b": 1, "a": 2}, not in deterministic order
	data := []byte{0xa2, 0x61, 'b', 0x01, 0x61, 'a', 0x02}

	var m OrderedMap[int]
	require.NoError(t, Unmarshal(data, &m))
	assert.Equal(t, []string{"b", "a"}, m.Keys())

	encoded, err := Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, data, encoded)
}

func TestOrderedMap_HeadsMatchLibraryEncoding(t *testing.T) {
	for _, n := range []int{0, 1, 23, 24, 255, 256, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var m OrderedMap[int]
			plain := make(map[string]int, n)
			for i := 0; i < n; i++ {
				// Equal length keys sort in insertion order.
				key := fmt.Sprintf("k%05d", i)
				m.Set(key, i)
				plain[key] = i
			}

			encoded, err := Marshal(m)
			require.NoError(t, err)
			want, err := Marshal(plain)
			require.NoError(t, err)
			assert.Equal(t, want, encoded)

			var decoded OrderedMap[int]
			require.NoError(t, Unmarshal(want, &decoded))
			assert.Equal(t, n, decoded.Len())
		})
	}
}

func TestOrderedMap_RejectsTruncatedHead(t *testing.T) {
	for _, data := range [][]byte{{}, {0xb8}, {0xb9, 0x01}, {0xba, 0, 0}, {0xbb, 0}} {
		var m OrderedMap[int]
		assert.Error(t, Unmarshal(data, &m), "%x", data)
	}
}

func TestOrderedMap_RejectsDuplicateKeys(t *testing.T) {
	data := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}

	var m OrderedMap[int]
	assert.Error(t, Unmarshal(data, &m))
}

func TestOrderedMap_RejectsIndefiniteLength(t *testing.T) {
	data := []byte{0xbf, 0x61, 'a', 0x01, 0xff}

	var m OrderedMap[int]
	assert.Error(t, Unmarshal(data, &m))
}

func TestTagged24_KeepsInnerBytes(t *testing.T) {
	// #6.24(<<{"b": 1, "a": 2}>>)
	inner := []byte{0xa2, 0x61, 'b', 0x01, 0x61, 'a', 0x02}
	data := append([]byte{0xd8, 0x18, 0x47}, inner...)

	var tagged Tagged24[map[string]int]
	require.NoError(t, Unmarshal(data, &tagged))
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, tagged.Value)

	got, err := tagged.InnerBytes()
	require.NoError(t, err)
	assert.Equal(t, inner, got)

	encoded, err := tagged.MarshalCBOR()
	require.NoError(t, err)
	assert.Equal(t, data, encoded)
}

func TestTagged24_RejectsOtherTags(t *testing.T) {
	data := []byte{0xd8, 0x19, 0x41, 0x00}

	var tagged Tagged24[int]
	assert.Error(t, Unmarshal(data, &tagged))
}
