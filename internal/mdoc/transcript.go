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
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SessionType tells whether reader and holder run on the same device.
type SessionType int

const (
	SameDevice SessionType = iota
	CrossDevice
)

func (t SessionType) String() string {
	switch t {
	case SameDevice:
		return "same_device"
	case CrossDevice:
		return "cross_device"
	default:
		return fmt.Sprintf("SessionType(%d)", int(t))
	}
}

var ErrHandoverSessionType = errors.New("NFC handover requires a cross-device session")

// NFCHandover carries the NFC handover select and (optional) request messages.
type NFCHandover struct {
	SelectMessage  []byte
	RequestMessage []byte
}

// Handover is QR (encoded as CBOR null) or NFC.
type Handover struct {
	nfc *NFCHandover
}

// QRHandover returns the handover used when the engagement was scanned from a QR code.
func QRHandover() Handover {
	return Handover{}
}

// NewNFCHandover returns an NFC handover. A nil request message is encoded as null.
func NewNFCHandover(selectMessage, requestMessage []byte) Handover {
	return Handover{nfc: &NFCHandover{
		SelectMessage:  bytes.Clone(selectMessage),
		RequestMessage: bytes.Clone(requestMessage),
	}}
}

// NFC returns the NFC messages, or nil for a QR handover.
func (h Handover) NFC() *NFCHandover {
	return h.nfc
}

// MarshalCBOR implements cbor.Marshaler.
func (h Handover) MarshalCBOR() ([]byte, error) {
	if h.nfc == nil {
		return cborEncMode.Marshal(nil)
	}
	var request any
	if h.nfc.RequestMessage != nil {
		request = h.nfc.RequestMessage
	}
	return cborEncMode.Marshal([]any{h.nfc.SelectMessage, request})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (h *Handover) UnmarshalCBOR(data []byte) error {
	if bytes.Equal(data, []byte{0xf6}) {
		*h = QRHandover()
		return nil
	}

	var parts []cbor.RawMessage
	if err := cborDecMode.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decoding handover: %w", err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("NFC handover must have 2 elements, got %d", len(parts))
	}

	var nfc NFCHandover
	if err := cborDecMode.Unmarshal(parts[0], &nfc.SelectMessage); err != nil {
		return fmt.Errorf("decoding handover select message: %w", err)
	}
	if !bytes.Equal(parts[1], []byte{0xf6}) {
		if err := cborDecMode.Unmarshal(parts[1], &nfc.RequestMessage); err != nil {
			return fmt.Errorf("decoding handover request message: %w", err)
		}
	}
	h.nfc = &nfc
	return nil
}

// SessionTranscript binds both engagements and the handover. It is immutable: its
// encoding is fixed at construction and is the only notion of equality.
type SessionTranscript struct {
	deviceEngagement Tagged24[Engagement]
	readerKey        Tagged24[CoseKey]
	handover         Handover

	raw []byte
}

type sessionTranscriptArray struct {
	_                     struct{} `cbor:",toarray"`
	DeviceEngagementBytes Tagged24[Engagement]
	EReaderKeyBytes       Tagged24[CoseKey]
	Handover              Handover
}

// NewSessionTranscript builds the transcript from the engagements exactly as exchanged.
func NewSessionTranscript(sessionType SessionType, reader, device *Engagement, handover Handover) (*SessionTranscript, error) {
	if reader == nil || device == nil {
		return nil, errors.New("session transcript needs both engagements")
	}
	if handover.nfc != nil && sessionType != CrossDevice {
		return nil, ErrHandoverSessionType
	}
	if len(device.raw) == 0 {
		return nil, errors.New("device engagement has no encoding")
	}

	t := &SessionTranscript{
		deviceEngagement: Tagged24[Engagement]{Value: *device, inner: device.raw},
		readerKey:        reader.Security.EDeviceKeyBytes,
		handover:         handover,
	}
	raw, err := cborEncMode.Marshal(sessionTranscriptArray{
		DeviceEngagementBytes: t.deviceEngagement,
		EReaderKeyBytes:       t.readerKey,
		Handover:              t.handover,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding session transcript: %w", err)
	}
	t.raw = raw
	return t, nil
}

// Bytes returns the canonical encoding. Callers must not modify it.
func (t *SessionTranscript) Bytes() []byte {
	return t.raw
}

// Equal reports whether both transcripts have identical encodings.
func (t *SessionTranscript) Equal(other *SessionTranscript) bool {
	if t == nil || other == nil {
		return t == other
	}
	return bytes.Equal(t.raw, other.raw)
}

// Handover returns the handover the transcript was built with.
func (t *SessionTranscript) Handover() Handover {
	return t.handover
}

// Salt returns SHA-256 over #6.24(transcript), the HKDF salt for session keys.
func (t *SessionTranscript) Salt() ([]byte, error) {
	tagged, err := cborEncMode.Marshal(cbor.Tag{Number: TagEncodedCBOR, Content: t.raw})
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(tagged)
	return sum[:], nil
}

// MarshalCBOR implements cbor.Marshaler so the transcript can be embedded in signed structures.
func (t *SessionTranscript) MarshalCBOR() ([]byte, error) {
	return t.raw, nil
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (t *SessionTranscript) UnmarshalCBOR(data []byte) error {
	var arr sessionTranscriptArray
	if err := cborDecMode.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("decoding session transcript: %w", err)
	}
	t.deviceEngagement = arr.DeviceEngagementBytes
	t.readerKey = arr.EReaderKeyBytes
	t.handover = arr.Handover
	t.raw = bytes.Clone(data)
	return nil
}
