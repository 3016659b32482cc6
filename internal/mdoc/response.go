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
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

const (
	DeviceResponseVersion  = "1.0"
	DeviceResponseStatusOK = 0
)

var ErrNoDeviceSignature = errors.New("document has no device signature")

// DeviceNameSpaces holds self-asserted attributes. The holder never asserts any.
type DeviceNameSpaces = map[string]map[string]any

// DeviceSigned is the holder-signed part of a disclosed document.
type DeviceSigned struct {
	NameSpaces Tagged24[DeviceNameSpaces] `cbor:"nameSpaces"`
	DeviceAuth DeviceAuth                 `cbor:"deviceAuth"`
}

// DeviceAuth carries the device signature over DeviceAuthentication.
type DeviceAuth struct {
	DeviceSignature *cose.UntaggedSign1Message `cbor:"deviceSignature,omitempty"`
}

// Document is a disclosed mdoc.
type Document struct {
	DocType      string       `cbor:"docType"`
	IssuerSigned IssuerSigned `cbor:"issuerSigned"`
	DeviceSigned DeviceSigned `cbor:"deviceSigned"`
}

// DeviceResponse is the holder's answer to a DeviceRequest.
type DeviceResponse struct {
	Version   string     `cbor:"version"`
	Documents []Document `cbor:"documents,omitempty"`
	Status    uint64     `cbor:"status"`
}

// NewDeviceResponse wraps signed documents in a successful response.
func NewDeviceResponse(documents []Document) *DeviceResponse {
	return &DeviceResponse{
		Version:   DeviceResponseVersion,
		Documents: documents,
		Status:    DeviceResponseStatusOK,
	}
}

// ParseDeviceResponse decodes a DeviceResponse.
func ParseDeviceResponse(data []byte) (*DeviceResponse, error) {
	var resp DeviceResponse
	if err := cborDecMode.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding device response: %w", err)
	}
	return &resp, nil
}

func emptyDeviceNameSpaces() (Tagged24[DeviceNameSpaces], error) {
	return NewTagged24(DeviceNameSpaces{})
}

// DeviceAuthenticationBytes returns
// #6.24(["DeviceAuthentication", transcript, docType, #6.24({})]), the challenge the
// device key signs for one document.
func DeviceAuthenticationBytes(transcript *SessionTranscript, docType string) ([]byte, error) {
	nameSpaces, err := emptyDeviceNameSpaces()
	if err != nil {
		return nil, err
	}
	inner, err := cborEncMode.Marshal([]any{"DeviceAuthentication", transcript, docType, nameSpaces})
	if err != nil {
		return nil, fmt.Errorf("encoding DeviceAuthentication: %w", err)
	}
	return cborEncMode.Marshal(cbor.Tag{Number: TagEncodedCBOR, Content: inner})
}

// PrepareDeviceSignature computes the Sig_structure of a detached device signature
// over challenge.
func PrepareDeviceSignature(challenge []byte) (*PreparedSign1, error) {
	return PrepareSign1(challenge, nil, true)
}

// NewDeviceSigned wraps a finished device signature.
func NewDeviceSigned(signature *cose.UntaggedSign1Message) (DeviceSigned, error) {
	nameSpaces, err := emptyDeviceNameSpaces()
	if err != nil {
		return DeviceSigned{}, err
	}
	return DeviceSigned{
		NameSpaces: nameSpaces,
		DeviceAuth: DeviceAuth{DeviceSignature: signature},
	}, nil
}

// VerifyDeviceSignature checks the device signature against the device key in the MSO.
func (d *Document) VerifyDeviceSignature(transcript *SessionTranscript) error {
	sig := d.DeviceSigned.DeviceAuth.DeviceSignature
	if sig == nil {
		return ErrNoDeviceSignature
	}
	pub, err := d.IssuerSigned.PublicKey()
	if err != nil {
		return err
	}
	challenge, err := DeviceAuthenticationBytes(transcript, d.DocType)
	if err != nil {
		return err
	}
	return VerifySign1(sig, challenge, pub)
}
