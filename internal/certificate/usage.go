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

package certificate

import (
	"encoding/asn1"
	"encoding/json"
	"fmt"
)

var (
	// OIDMdl is the ISO 18013-5 EKU for document signer certificates.
	OIDMdl = asn1.ObjectIdentifier{1, 0, 18013, 5, 1, 2}
	// OIDReaderAuth is the ISO 18013-5 EKU for reader authentication certificates.
	OIDReaderAuth = asn1.ObjectIdentifier{1, 0, 18013, 5, 1, 6}

	// OIDReaderRegistration and OIDIssuerRegistration hold the JSON registration
	// metadata as a DER UTF8String.
	OIDReaderRegistration = asn1.ObjectIdentifier{2, 1, 123, 1}
	OIDIssuerRegistration = asn1.ObjectIdentifier{2, 1, 123, 2}

	oidExtKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
)

// Usage is the purpose of a certificate, taken from its extended key usage.
type Usage int

const (
	UsageMdl Usage = iota + 1
	UsageReaderAuth
)

func (u Usage) String() string {
	switch u {
	case UsageMdl:
		return "mdl"
	case UsageReaderAuth:
		return "reader_auth"
	default:
		return fmt.Sprintf("Usage(%d)", int(u))
	}
}

// OID returns the EKU object identifier of the usage.
func (u Usage) OID() asn1.ObjectIdentifier {
	switch u {
	case UsageMdl:
		return OIDMdl
	case UsageReaderAuth:
		return OIDReaderAuth
	default:
		return nil
	}
}

func (u Usage) registrationOID() asn1.ObjectIdentifier {
	if u == UsageMdl {
		return OIDIssuerRegistration
	}
	return OIDReaderRegistration
}

// UsageOf reads the usage from the EKU extension. Exactly one EKU entry outside the
// well-known set must be present and it must be one of the mdoc OIDs.
func UsageOf(c *Certificate) (Usage, error) {
	if count := len(c.cert.UnknownExtKeyUsage); count != 1 {
		return 0, &EKUCountError{Count: count}
	}

	oid := c.cert.UnknownExtKeyUsage[0]
	switch {
	case oid.Equal(OIDMdl):
		return UsageMdl, nil
	case oid.Equal(OIDReaderAuth):
		return UsageReaderAuth, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrIncorrectEKU, oid)
	}
}

// Type is a certificate usage paired with its optional registration metadata. At most
// the registration matching Usage is set.
type Type struct {
	Usage              Usage
	IssuerRegistration *IssuerRegistration
	ReaderRegistration *ReaderRegistration
}

// TypeOf determines the usage and decodes the registration extension, if present.
func TypeOf(c *Certificate) (Type, error) {
	usage, err := UsageOf(c)
	if err != nil {
		return Type{}, err
	}

	t := Type{Usage: usage}
	switch usage {
	case UsageMdl:
		var reg IssuerRegistration
		found, err := extractRegistration(c, OIDIssuerRegistration, &reg)
		if err != nil {
			return Type{}, err
		}
		if found {
			t.IssuerRegistration = &reg
		}
	case UsageReaderAuth:
		var reg ReaderRegistration
		found, err := extractRegistration(c, OIDReaderRegistration, &reg)
		if err != nil {
			return Type{}, err
		}
		if found {
			t.ReaderRegistration = &reg
		}
	}
	return t, nil
}

func extractRegistration(c *Certificate, oid asn1.ObjectIdentifier, v any) (bool, error) {
	value, ok := findExtension(c.cert, oid)
	if !ok {
		return false, nil
	}

	var text string
	rest, err := asn1.UnmarshalWithParams(value, &text, "utf8")
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	if len(rest) != 0 {
		return false, fmt.Errorf("%w: trailing data in extension", ErrMetadata)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	return true, nil
}

func marshalRegistration(v any) ([]byte, error) {
	text, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	return asn1.MarshalWithParams(string(text), "utf8")
}
