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
	"crypto"
	"errors"
	"fmt"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

const DeviceRequestVersion = "1.0"

var ErrNoReaderAuth = errors.New("doc request has no reader authentication")

// DeviceRequest is what the reader sends after engagement.
type DeviceRequest struct {
	Version     string       `cbor:"version"`
	DocRequests []DocRequest `cbor:"docRequests"`
}

// DocRequest asks for attributes of one document type.
type DocRequest struct {
	ItemsRequest Tagged24[ItemsRequest]     `cbor:"itemsRequest"`
	ReaderAuth   *cose.UntaggedSign1Message `cbor:"readerAuth,omitempty"`
}

// DataElements maps requested attribute names to the reader's intent to retain them.
type DataElements = OrderedMap[bool]

// ItemsRequest names a document type and the requested attributes per name space.
type ItemsRequest struct {
	DocType     string                   `cbor:"docType"`
	NameSpaces  OrderedMap[DataElements] `cbor:"nameSpaces"`
	RequestInfo map[string]any           `cbor:"requestInfo,omitempty"`
}

// NewItemsRequest requests attributes of a single name space, without intent to retain.
func NewItemsRequest(docType, nameSpace string, attributes ...string) ItemsRequest {
	var elements DataElements
	for _, attr := range attributes {
		elements.Set(attr, false)
	}
	req := ItemsRequest{DocType: docType}
	req.NameSpaces.Set(nameSpace, elements)
	return req
}

// AttributeIdentifiers lists the requested attributes in request order.
func (r ItemsRequest) AttributeIdentifiers() []AttributeIdentifier {
	var ids []AttributeIdentifier
	for _, ns := range r.NameSpaces.Entries() {
		for _, attr := range ns.Value.Entries() {
			ids = append(ids, AttributeIdentifier{DocType: r.DocType, NameSpace: ns.Key, Attribute: attr.Key})
		}
	}
	return ids
}

// ParseDeviceRequest decodes a DeviceRequest and checks its version.
func ParseDeviceRequest(data []byte) (*DeviceRequest, error) {
	var req DeviceRequest
	if err := cborDecMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decoding device request: %w", err)
	}
	if req.Version != DeviceRequestVersion {
		return nil, fmt.Errorf("unsupported device request version %q", req.Version)
	}
	return &req, nil
}

// ReaderAuthenticationBytes returns #6.24(["ReaderAuthentication", transcript, ItemsRequestBytes]),
// the detached payload of readerAuth.
func ReaderAuthenticationBytes(transcript *SessionTranscript, items Tagged24[ItemsRequest]) ([]byte, error) {
	inner, err := cborEncMode.Marshal([]any{"ReaderAuthentication", transcript, items})
	if err != nil {
		return nil, fmt.Errorf("encoding ReaderAuthentication: %w", err)
	}
	return cborEncMode.Marshal(cbor.Tag{Number: TagEncodedCBOR, Content: inner})
}

// NewDocRequest signs items for the session with the reader key and its certificate chain.
func NewDocRequest(items ItemsRequest, transcript *SessionTranscript, key crypto.Signer, chain [][]byte) (DocRequest, error) {
	tagged, err := NewTagged24(items)
	if err != nil {
		return DocRequest{}, err
	}
	payload, err := ReaderAuthenticationBytes(transcript, tagged)
	if err != nil {
		return DocRequest{}, err
	}
	readerAuth, err := SignSign1(payload, chain, true, key)
	if err != nil {
		return DocRequest{}, fmt.Errorf("signing reader authentication: %w", err)
	}
	return DocRequest{ItemsRequest: tagged, ReaderAuth: readerAuth}, nil
}

// VerifyReaderAuth checks the readerAuth signature against the leaf of its x5chain and
// returns that leaf and the intermediates. Chain trust is not evaluated here.
func (r *DocRequest) VerifyReaderAuth(transcript *SessionTranscript) (*certificate.Certificate, [][]byte, error) {
	if r.ReaderAuth == nil {
		return nil, nil, ErrNoReaderAuth
	}

	leaf, intermediates, err := SignerCertificate(r.ReaderAuth)
	if err != nil {
		return nil, nil, err
	}
	pub, err := leaf.PublicKey()
	if err != nil {
		return nil, nil, err
	}

	payload, err := ReaderAuthenticationBytes(transcript, r.ItemsRequest)
	if err != nil {
		return nil, nil, err
	}
	if err := VerifySign1(r.ReaderAuth, payload, pub); err != nil {
		return nil, nil, err
	}
	return leaf, intermediates, nil
}
