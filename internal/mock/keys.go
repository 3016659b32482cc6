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

package mock

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
)

// GenerateKey creates an ephemeral P-256 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// Signer is a CA with one end-entity certificate and its key.
type Signer struct {
	CA          *certificate.Certificate
	CAKey       *ecdsa.PrivateKey
	Certificate *certificate.Certificate
	Key         *ecdsa.PrivateKey
}

// NewIssuer creates an issuing CA and a document signer certificate.
func NewIssuer(registration *certificate.IssuerRegistration) (*Signer, error) {
	return newSigner(IssuerCACommonName, IssuerCommonName, certificate.Type{
		Usage:              certificate.UsageMdl,
		IssuerRegistration: registration,
	})
}

// NewReader creates a reader CA and a reader authentication certificate.
func NewReader(registration *certificate.ReaderRegistration) (*Signer, error) {
	return newSigner(ReaderCACommonName, ReaderCommonName, certificate.Type{
		Usage:              certificate.UsageReaderAuth,
		ReaderRegistration: registration,
	})
}

func newSigner(caName, name string, typ certificate.Type) (*Signer, error) {
	ca, caKey, err := certificate.NewCA(caName)
	if err != nil {
		return nil, fmt.Errorf("generating CA: %w", err)
	}
	cert, key, err := certificate.New(ca, caKey, name, typ)
	if err != nil {
		return nil, fmt.Errorf("generating %s certificate: %w", typ.Usage, err)
	}
	return &Signer{CA: ca, CAKey: caKey, Certificate: cert, Key: key}, nil
}

// TrustAnchors returns the CA as the only trust anchor.
func (s *Signer) TrustAnchors() []*certificate.TrustAnchor {
	return []*certificate.TrustAnchor{certificate.NewTrustAnchor(s.CA)}
}

// Chain returns the x5chain for the signer, leaf only.
func (s *Signer) Chain() [][]byte {
	return [][]byte{s.Certificate.DER()}
}

// ExampleReaderRegistration authorizes all example mDL attributes.
func ExampleReaderRegistration() *certificate.ReaderRegistration {
	names := make(certificate.AuthorizedNamespace, len(ExampleAttributeNames))
	for _, n := range ExampleAttributeNames {
		names[n] = certificate.AuthorizedAttribute{}
	}
	return &certificate.ReaderRegistration{
		PurposeStatement: certificate.LocalizedStrings{"en": "Verify your driving licence"},
		RetentionPolicy:  certificate.RetentionPolicy{IntentToRetain: false},
		Organization: certificate.Organization{
			DisplayName: certificate.LocalizedStrings{"en": "Example RP"},
			LegalName:   certificate.LocalizedStrings{"en": "Example RP B.V."},
			WebURL:      "https://rp.example.com",
		},
		ReturnURLPrefix: ReturnURL,
		Attributes: map[string]certificate.AuthorizedMdoc{
			ExampleDocType: {ExampleNameSpace: names},
		},
	}
}
