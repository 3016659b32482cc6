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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTranscript_DeterministicBytes(t *testing.T) {
	s := newTestSession(t)

	again, err := NewSessionTranscript(CrossDevice, s.reader, s.device, QRHandover())
	require.NoError(t, err)
	assert.Equal(t, s.transcript.Bytes(), again.Bytes())
	assert.True(t, s.transcript.Equal(again))
}

func TestSessionTranscript_UsesReceivedEngagementBytes(t *testing.T) {
	s := newTestSession(t)

	parsed, err := ParseEngagement(s.device.Bytes())
	require.NoError(t, err)
	readerParsed, err := ParseEngagement(s.reader.Bytes())
	require.NoError(t, err)

	rebuilt, err := NewSessionTranscript(CrossDevice, readerParsed, parsed, QRHandover())
	require.NoError(t, err)
	assert.True(t, s.transcript.Equal(rebuilt))
}

func TestSessionTranscript_HandoverChangesSalt(t *testing.T) {
	s := newTestSession(t)

	nfc, err := NewSessionTranscript(CrossDevice, s.reader, s.device, NewNFCHandover([]byte{0x01, 0x02}, nil))
	require.NoError(t, err)
	assert.False(t, s.transcript.Equal(nfc))

	qrSalt, err := s.transcript.Salt()
	require.NoError(t, err)
	nfcSalt, err := nfc.Salt()
	require.NoError(t, err)
	assert.Len(t, qrSalt, 32)
	assert.NotEqual(t, qrSalt, nfcSalt)
}

func TestSessionTranscript_NFCRequiresCrossDevice(t *testing.T) {
	s := newTestSession(t)

	_, err := NewSessionTranscript(SameDevice, s.reader, s.device, NewNFCHandover([]byte{0x01}, []byte{0x02}))
	assert.ErrorIs(t, err, ErrHandoverSessionType)

	_, err = NewSessionTranscript(SameDevice, s.reader, s.device, QRHandover())
	assert.NoError(t, err)
}

func TestSessionTranscript_DecodeKeepsBytes(t *testing.T) {
	s := newTestSession(t)
	nfc, err := NewSessionTranscript(CrossDevice, s.reader, s.device, NewNFCHandover([]byte{0x01}, []byte{0x02}))
	require.NoError(t, err)

	var decoded SessionTranscript
	require.NoError(t, Unmarshal(nfc.Bytes(), &decoded))
	assert.True(t, nfc.Equal(&decoded))
	require.NotNil(t, decoded.Handover().NFC())
	assert.Equal(t, []byte{0x01}, decoded.Handover().NFC().SelectMessage)
	assert.Equal(t, []byte{0x02}, decoded.Handover().NFC().RequestMessage)
}

func TestEngagement_Parse(t *testing.T) {
	s := newTestSession(t)

	parsed, err := ParseEngagement(s.reader.Bytes())
	require.NoError(t, err)
	url, err := parsed.SessionURL()
	require.NoError(t, err)
	assert.Equal(t, testSessionURL, url)

	pub, err := parsed.PublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(s.readerKey.PublicKey()))
}

func TestEngagement_RejectsUnsupportedVersion(t *testing.T) {
	s := newTestSession(t)
	e := *s.reader
	e.Version = "2.0"
	data, err := Marshal(&e)
	require.NoError(t, err)

	_, err = ParseEngagement(data)
	assert.ErrorIs(t, err, ErrEngagementVersion)
}

func TestEngagement_NoSessionURL(t *testing.T) {
	s := newTestSession(t)
	e := *s.reader
	e.ConnectionMethods = nil

	_, err := e.SessionURL()
	assert.ErrorIs(t, err, ErrNoSessionURL)
}

func TestEngagement_URI(t *testing.T) {
	s := newTestSession(t)

	uri := s.reader.URI()
	assert.True(t, strings.HasPrefix(uri, EngagementURIScheme))

	parsed, err := ParseEngagementURI(uri + "\n")
	require.NoError(t, err)
	assert.Equal(t, s.reader.Bytes(), parsed.Bytes())

	_, err = ParseEngagementURI("openid4vp://authorize")
	assert.ErrorIs(t, err, ErrEngagementURI)
	_, err = ParseEngagementURI(EngagementURIScheme + "!!")
	assert.ErrorIs(t, err, ErrEngagementURI)
}
