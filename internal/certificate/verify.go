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
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Clock supplies the time certificates are verified at.
type Clock func() time.Time

// SystemClock returns the wall clock time.
func SystemClock() time.Time {
	return time.Now()
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// TrustAnchor is a root certificate that chains are verified against.
type TrustAnchor struct {
	cert *Certificate
}

// NewTrustAnchor wraps a parsed root certificate.
func NewTrustAnchor(cert *Certificate) *TrustAnchor {
	return &TrustAnchor{cert: cert}
}

// ParseTrustAnchor parses a PEM or DER root certificate.
func ParseTrustAnchor(data []byte) (*TrustAnchor, error) {
	cert, err := ParseAny(data)
	if err != nil {
		return nil, err
	}
	return NewTrustAnchor(cert), nil
}

// Certificate returns the anchor certificate.
func (a *TrustAnchor) Certificate() *Certificate {
	return a.cert
}

// Verify builds a chain from c through intermediates to one of anchors at the time
// reported by clock. Every certificate in the chain must use ECDSA P-256 with SHA-256,
// and c must carry the EKU of usage.
func (c *Certificate) Verify(usage Usage, intermediates [][]byte, clock Clock, anchors []*TrustAnchor) error {
	if len(anchors) == 0 {
		return fmt.Errorf("%w: no trust anchors", ErrVerification)
	}
	if clock == nil {
		clock = SystemClock
	}

	actual, err := UsageOf(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	if actual != usage {
		return fmt.Errorf("%w: certificate usage is %s, expected %s", ErrVerification, actual, usage)
	}

	roots := x509.NewCertPool()
	for _, a := range anchors {
		roots.AddCert(a.cert.cert)
	}

	pool := x509.NewCertPool()
	for _, der := range intermediates {
		ic, err := Parse(der)
		if err != nil {
			return fmt.Errorf("%w: intermediate: %w", ErrVerification, err)
		}
		pool.AddCert(ic.cert)
	}

	chains, err := c.cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: pool,
		CurrentTime:   clock(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	var lastErr error
	for _, chain := range chains {
		if lastErr = checkChainAlgorithms(chain); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %w", ErrVerification, lastErr)
}

var errUnsupportedAlgorithm = errors.New("unsupported certificate algorithm")

func checkChainAlgorithms(chain []*x509.Certificate) error {
	for _, cert := range chain {
		if cert.SignatureAlgorithm != x509.ECDSAWithSHA256 {
			return fmt.Errorf("%w: %s signed with %s", errUnsupportedAlgorithm, cert.Subject.CommonName, cert.SignatureAlgorithm)
		}
		pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
		if !ok || pub.Curve != elliptic.P256() {
			return fmt.Errorf("%w: %s key is not P-256", errUnsupportedAlgorithm, cert.Subject.CommonName)
		}
	}
	return nil
}
