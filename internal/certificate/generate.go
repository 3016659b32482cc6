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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// Validity of generated certificates.
const (
	CAValidity   = 5 * 365 * 24 * time.Hour
	LeafValidity = 365 * 24 * time.Hour
)

// NewCA generates a self-signed P-256 CA certificate that may only sign end-entity
// certificates.
func NewCA(commonName string) (*Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGenerating, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          randomSerial(),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(CAValidity),
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		SignatureAlgorithm:    x509.ECDSAWithSHA256,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGenerating, err)
	}
	cert, err := Parse(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// New generates an end-entity certificate signed by ca. The EKU extension is critical
// and holds the OID of typ.Usage; registration metadata goes into its own critical
// extension.
func New(ca *Certificate, caKey *ecdsa.PrivateKey, commonName string, typ Type) (*Certificate, *ecdsa.PrivateKey, error) {
	usageOID := typ.Usage.OID()
	if usageOID == nil {
		return nil, nil, fmt.Errorf("%w: unknown usage %s", ErrGenerating, typ.Usage)
	}
	exts, err := typeExtensions(typ, usageOID)
	if err != nil {
		return nil, nil, err
	}

	return issue(ca, caKey, commonName, exts)
}

func issue(ca *Certificate, caKey *ecdsa.PrivateKey, commonName string, exts []pkix.Extension) (*Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGenerating, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:       randomSerial(),
		Subject:            pkix.Name{CommonName: commonName},
		NotBefore:          now.Add(-time.Hour),
		NotAfter:           now.Add(LeafValidity),
		KeyUsage:           x509.KeyUsageDigitalSignature,
		ExtraExtensions:    exts,
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGenerating, err)
	}
	cert, err := Parse(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func typeExtensions(typ Type, usageOID asn1.ObjectIdentifier) ([]pkix.Extension, error) {
	ekuValue, err := asn1.Marshal([]asn1.ObjectIdentifier{usageOID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerating, err)
	}
	exts := []pkix.Extension{{Id: oidExtKeyUsage, Critical: true, Value: ekuValue}}

	var registration any
	switch {
	case typ.Usage == UsageReaderAuth && typ.ReaderRegistration != nil:
		registration = typ.ReaderRegistration
	case typ.Usage == UsageMdl && typ.IssuerRegistration != nil:
		registration = typ.IssuerRegistration
	}
	if registration != nil {
		value, err := marshalRegistration(registration)
		if err != nil {
			return nil, err
		}
		exts = append(exts, pkix.Extension{Id: typ.Usage.registrationOID(), Critical: true, Value: value})
	}
	return exts, nil
}

func randomSerial() *big.Int {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return serial
}
