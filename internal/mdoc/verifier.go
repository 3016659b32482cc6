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
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
)

var (
	ErrDocTypeMismatch = errors.New("doc type does not match MSO")
	ErrDigestMismatch  = errors.New("issuer signed item digest mismatch")
	ErrDigestAlgorithm = errors.New("unsupported digest algorithm")
	ErrNotValid        = errors.New("mdoc is not valid at this time")
)

// VerifyResult contains the issuer verification result.
type VerifyResult struct {
	DocType            string
	Issuer             *certificate.Certificate
	IssuerRegistration *certificate.IssuerRegistration
	ValidFrom          time.Time
	ValidUntil         time.Time
	Signed             time.Time
}

// Verify checks issuerAuth: the signer chain must reach one of anchors with usage Mdl,
// the COSE signature must be valid, the MSO must be for docType and valid at clock, and
// every included item must match its digest.
func (s *IssuerSigned) Verify(docType string, clock certificate.Clock, anchors []*certificate.TrustAnchor) (*VerifyResult, error) {
	if s.IssuerAuth == nil {
		return nil, ErrNoIssuerAuth
	}
	if clock == nil {
		clock = certificate.SystemClock
	}

	issuer, intermediates, err := SignerCertificate(s.IssuerAuth)
	if err != nil {
		return nil, err
	}
	if err := issuer.Verify(certificate.UsageMdl, intermediates, clock, anchors); err != nil {
		return nil, err
	}
	typ, err := certificate.TypeOf(issuer)
	if err != nil {
		return nil, err
	}

	pub, err := issuer.PublicKey()
	if err != nil {
		return nil, err
	}
	if err := VerifySign1(s.IssuerAuth, nil, pub); err != nil {
		return nil, err
	}

	mso, err := s.MSO()
	if err != nil {
		return nil, err
	}
	if mso.DocType != docType {
		return nil, fmt.Errorf("%w: %q != %q", ErrDocTypeMismatch, mso.DocType, docType)
	}
	if mso.DigestAlgorithm != DigestAlgorithmSHA256 {
		return nil, fmt.Errorf("%w: %s", ErrDigestAlgorithm, mso.DigestAlgorithm)
	}

	now := clock()
	if now.Before(mso.ValidityInfo.ValidFrom) || now.After(mso.ValidityInfo.ValidUntil) {
		return nil, fmt.Errorf("%w: valid from %s until %s", ErrNotValid,
			mso.ValidityInfo.ValidFrom.Format(time.RFC3339), mso.ValidityInfo.ValidUntil.Format(time.RFC3339))
	}

	for _, ns := range s.NameSpaces.Entries() {
		for _, item := range ns.Value {
			expected, ok := mso.ValueDigests[ns.Key][item.Value.DigestID]
			if !ok {
				return nil, fmt.Errorf("%w: no digest for %s/%s", ErrDigestMismatch, ns.Key, item.Value.ElementIdentifier)
			}
			actual, err := ItemDigest(item)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(expected, actual) {
				return nil, fmt.Errorf("%w: %s/%s", ErrDigestMismatch, ns.Key, item.Value.ElementIdentifier)
			}
		}
	}

	return &VerifyResult{
		DocType:            mso.DocType,
		Issuer:             issuer,
		IssuerRegistration: typ.IssuerRegistration,
		ValidFrom:          mso.ValidityInfo.ValidFrom,
		ValidUntil:         mso.ValidityInfo.ValidUntil,
		Signed:             mso.ValidityInfo.Signed,
	}, nil
}
