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
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/veraison/go-cose"
)

const (
	MSOVersion            = "1.0"
	DigestAlgorithmSHA256 = "SHA-256"
)

var ErrNoIssuerAuth = errors.New("issuer signed has no issuerAuth")

// AttributeIdentifier addresses one attribute of one document type.
type AttributeIdentifier struct {
	DocType   string
	NameSpace string
	Attribute string
}

func (a AttributeIdentifier) String() string {
	return a.DocType + "/" + a.NameSpace + "/" + a.Attribute
}

// IssuerSignedItem is a single attribute committed to by the MSO.
type IssuerSignedItem struct {
	DigestID          uint64 `cbor:"digestID"`
	Random            []byte `cbor:"random"`
	ElementIdentifier string `cbor:"elementIdentifier"`
	ElementValue      any    `cbor:"elementValue"`
}

// IssuerSignedItemBytes keeps the exact encoding the MSO digest was computed over.
type IssuerSignedItemBytes = Tagged24[IssuerSignedItem]

// IssuerNameSpaces holds the attributes per name space, in issuer order.
type IssuerNameSpaces = OrderedMap[[]IssuerSignedItemBytes]

// IssuerSigned is the issuer-signed part of an mdoc.
type IssuerSigned struct {
	NameSpaces IssuerNameSpaces           `cbor:"nameSpaces"`
	IssuerAuth *cose.UntaggedSign1Message `cbor:"issuerAuth"`
}

// MobileSecurityObject is the payload of issuerAuth.
type MobileSecurityObject struct {
	Version         string                       `cbor:"version"`
	DigestAlgorithm string                       `cbor:"digestAlgorithm"`
	ValueDigests    map[string]map[uint64][]byte `cbor:"valueDigests"`
	DeviceKeyInfo   DeviceKeyInfo                `cbor:"deviceKeyInfo"`
	DocType         string                       `cbor:"docType"`
	ValidityInfo    ValidityInfo                 `cbor:"validityInfo"`
}

// DeviceKeyInfo holds the key the holder signs DeviceAuthentication with.
type DeviceKeyInfo struct {
	DeviceKey CoseKey `cbor:"deviceKey"`
}

// ValidityInfo contains credential validity dates.
type ValidityInfo struct {
	Signed     time.Time `cbor:"signed"`
	ValidFrom  time.Time `cbor:"validFrom"`
	ValidUntil time.Time `cbor:"validUntil"`
}

// Mdoc is a credential as held by the wallet.
type Mdoc struct {
	DocType      string       `cbor:"docType"`
	IssuerSigned IssuerSigned `cbor:"issuerSigned"`
	// PrivateKeyID identifies the device key in the key store.
	PrivateKeyID string `cbor:"privateKeyId"`
}

// ItemDigest returns SHA-256 over #6.24(item), the value stored in valueDigests.
func ItemDigest(item IssuerSignedItemBytes) ([]byte, error) {
	encoded, err := item.MarshalCBOR()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(encoded)
	return sum[:], nil
}

// MSO decodes the Mobile Security Object from the issuerAuth payload.
func (s *IssuerSigned) MSO() (*MobileSecurityObject, error) {
	if s.IssuerAuth == nil {
		return nil, ErrNoIssuerAuth
	}
	var mso Tagged24[MobileSecurityObject]
	if err := cborDecMode.Unmarshal(s.IssuerAuth.Payload, &mso); err != nil {
		return nil, fmt.Errorf("decoding MSO: %w", err)
	}
	return &mso.Value, nil
}

// PublicKey returns the device key the issuer bound the credential to.
func (s *IssuerSigned) PublicKey() (*ecdsa.PublicKey, error) {
	mso, err := s.MSO()
	if err != nil {
		return nil, err
	}
	return mso.DeviceKeyInfo.DeviceKey.ECDSA()
}

// AttributeIdentifiers lists the issuer-signed attributes in issuer order.
func (m *Mdoc) AttributeIdentifiers() []AttributeIdentifier {
	var ids []AttributeIdentifier
	for _, ns := range m.IssuerSigned.NameSpaces.Entries() {
		for _, item := range ns.Value {
			ids = append(ids, AttributeIdentifier{
				DocType:   m.DocType,
				NameSpace: ns.Key,
				Attribute: item.Value.ElementIdentifier,
			})
		}
	}
	return ids
}

// Attributes returns the attribute values per name space, in issuer order.
func (s *IssuerSigned) Attributes() OrderedMap[OrderedMap[any]] {
	var out OrderedMap[OrderedMap[any]]
	for _, ns := range s.NameSpaces.Entries() {
		var attrs OrderedMap[any]
		for _, item := range ns.Value {
			attrs.Set(item.Value.ElementIdentifier, item.Value.ElementValue)
		}
		out.Set(ns.Key, attrs)
	}
	return out
}

// ParseMdoc decodes a stored mdoc.
func ParseMdoc(data []byte) (*Mdoc, error) {
	var m Mdoc
	if err := cborDecMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding mdoc: %w", err)
	}
	return &m, nil
}
