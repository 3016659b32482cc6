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

// Package certificate parses, verifies and generates the X.509 certificates used for
// mdoc issuer and reader authentication.
package certificate

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
)

const pemTypeCertificate = "CERTIFICATE"

var (
	ErrPEM                 = errors.New("PEM decoding failed")
	ErrUnexpectedPEMHeader = errors.New("unexpected PEM header")
	ErrParsing             = errors.New("certificate parsing failed")
	ErrVerification        = errors.New("certificate verification failed")
	ErrIncorrectEKUCount   = errors.New("incorrect EKU count")
	ErrIncorrectEKU        = errors.New("incorrect EKU")
	ErrMetadata            = errors.New("certificate registration metadata is malformed")
	ErrKeyParsing          = errors.New("certificate public key parsing failed")
	ErrGenerating          = errors.New("certificate generation failed")
)

// EKUCountError reports how many mdoc EKU entries a certificate carried.
type EKUCountError struct {
	Count int
}

func (e *EKUCountError) Error() string {
	return fmt.Sprintf("EKU count incorrect (%d)", e.Count)
}

func (e *EKUCountError) Is(target error) bool {
	return target == ErrIncorrectEKUCount
}

// Certificate is an immutable DER certificate together with its parsed form.
type Certificate struct {
	der  []byte
	cert *x509.Certificate
}

// Parse parses a DER encoded certificate.
func Parse(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsing, err)
	}
	stripRegistrationExtensions(cert)
	return &Certificate{der: bytes.Clone(der), cert: cert}, nil
}

// ParsePEM parses a single PEM block labelled CERTIFICATE.
func ParsePEM(data []byte) (*Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrPEM
	}
	if block.Type != pemTypeCertificate {
		return nil, fmt.Errorf("%w: found %s, expected %s", ErrUnexpectedPEMHeader, block.Type, pemTypeCertificate)
	}
	return Parse(block.Bytes)
}

// ParseAny accepts PEM or raw DER.
func ParseAny(data []byte) (*Certificate, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		return ParsePEM(data)
	}
	return Parse(data)
}

// DER returns the certificate bytes.
func (c *Certificate) DER() []byte {
	return c.der
}

// PEM returns the certificate PEM encoded.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: c.der})
}

// X509 returns the parsed certificate. Callers must not modify it.
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// Equal reports whether both certificates have the same DER encoding.
func (c *Certificate) Equal(other *Certificate) bool {
	if c == nil || other == nil {
		return c == other
	}
	return bytes.Equal(c.der, other.der)
}

// PublicKey returns the P-256 verifying key of the certificate.
func (c *Certificate) PublicKey() (*ecdsa.PublicKey, error) {
	pub, ok := c.cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected ECDSA key, got %T", ErrKeyParsing, c.cert.PublicKey)
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected P-256, got %s", ErrKeyParsing, pub.Curve.Params().Name)
	}
	return pub, nil
}

// SubjectAttribute is one attribute of the subject distinguished name.
type SubjectAttribute struct {
	Type  string
	Value string
}

var attributeAbbreviations = map[string]string{
	"2.5.4.3":  "CN",
	"2.5.4.5":  "serialNumber",
	"2.5.4.6":  "C",
	"2.5.4.7":  "L",
	"2.5.4.8":  "ST",
	"2.5.4.9":  "street",
	"2.5.4.10": "O",
	"2.5.4.11": "OU",
}

// Subject returns the subject attributes in certificate order. Attribute types without
// a common abbreviation are reported as dotted OIDs.
func (c *Certificate) Subject() ([]SubjectAttribute, error) {
	var attrs []SubjectAttribute
	for _, rdn := range c.cert.Subject.Names {
		value, ok := rdn.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: subject attribute %s is not a string", ErrParsing, rdn.Type)
		}
		typ := rdn.Type.String()
		if abbrev, ok := attributeAbbreviations[typ]; ok {
			typ = abbrev
		}
		attrs = append(attrs, SubjectAttribute{Type: typ, Value: value})
	}
	return attrs, nil
}

// CommonName returns the subject common name.
func (c *Certificate) CommonName() string {
	return c.cert.Subject.CommonName
}

// stripRegistrationExtensions removes the registration extensions from the unhandled
// critical list once they are recognised, so chain verification accepts them.
func stripRegistrationExtensions(cert *x509.Certificate) {
	kept := cert.UnhandledCriticalExtensions[:0]
	for _, oid := range cert.UnhandledCriticalExtensions {
		if oid.Equal(OIDReaderRegistration) || oid.Equal(OIDIssuerRegistration) {
			continue
		}
		kept = append(kept, oid)
	}
	cert.UnhandledCriticalExtensions = kept
}

func findExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) ([]byte, bool) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return ext.Value, true
		}
	}
	return nil, false
}
