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
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/veraison/go-cose"
)

var (
	ErrNoX5Chain          = errors.New("COSE message has no x5chain header")
	ErrSignatureInvalid   = errors.New("COSE signature verification failed")
	ErrUnsupportedCOSEAlg = errors.New("unsupported COSE algorithm")
)

// PreparedSign1 is an ES256 COSE_Sign1 whose Sig_structure has been computed but
// which still needs a signature from an external key.
type PreparedSign1 struct {
	msg      *cose.Sign1Message
	detached bool
	// ToBeSigned is the Sig_structure the signature must cover.
	ToBeSigned []byte
}

// PrepareSign1 builds the message around payload. If x5chain is not empty it is put in
// the unprotected header (a single certificate as bstr, several as an array). A detached
// message omits the payload from its encoding.
func PrepareSign1(payload []byte, x5chain [][]byte, detached bool) (*PreparedSign1, error) {
	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	switch len(x5chain) {
	case 0:
	case 1:
		msg.Headers.Unprotected[cose.HeaderLabelX5Chain] = x5chain[0]
	default:
		chain := make([]any, len(x5chain))
		for i, der := range x5chain {
			chain[i] = der
		}
		msg.Headers.Unprotected[cose.HeaderLabelX5Chain] = chain
	}
	msg.Payload = payload

	capture := &toBeSignedCapture{}
	if err := msg.Sign(rand.Reader, nil, capture); err != nil {
		return nil, fmt.Errorf("computing Sig_structure: %w", err)
	}
	return &PreparedSign1{msg: msg, detached: detached, ToBeSigned: capture.content}, nil
}

// Finish attaches the signature, which must be in IEEE P1363 (r || s) form.
func (p *PreparedSign1) Finish(signature []byte) *cose.UntaggedSign1Message {
	msg := *p.msg
	msg.Signature = bytes.Clone(signature)
	if p.detached {
		msg.Payload = nil
	}
	untagged := cose.UntaggedSign1Message(msg)
	return &untagged
}

// toBeSignedCapture records the content go-cose asks it to sign.
type toBeSignedCapture struct {
	content []byte
}

func (c *toBeSignedCapture) Algorithm() cose.Algorithm {
	return cose.AlgorithmES256
}

func (c *toBeSignedCapture) Sign(_ io.Reader, content []byte) ([]byte, error) {
	c.content = bytes.Clone(content)
	return []byte{}, nil
}

// SignSign1 signs payload with a local key.
func SignSign1(payload []byte, x5chain [][]byte, detached bool, key crypto.Signer) (*cose.UntaggedSign1Message, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("creating COSE signer: %w", err)
	}
	prepared, err := PrepareSign1(payload, x5chain, detached)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(rand.Reader, prepared.ToBeSigned)
	if err != nil {
		return nil, fmt.Errorf("COSE signing: %w", err)
	}
	return prepared.Finish(sig), nil
}

// VerifySign1 verifies msg with pub. For detached messages the payload is passed in.
func VerifySign1(msg *cose.UntaggedSign1Message, detachedPayload []byte, pub *ecdsa.PublicKey) error {
	if msg == nil {
		return fmt.Errorf("%w: missing message", ErrSignatureInvalid)
	}
	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedCOSEAlg, err)
	}
	if alg != cose.AlgorithmES256 {
		return fmt.Errorf("%w: %s", ErrUnsupportedCOSEAlg, alg)
	}

	verifier, err := cose.NewVerifier(alg, pub)
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}

	m := cose.Sign1Message(*msg)
	if detachedPayload != nil {
		m.Payload = detachedPayload
	}
	if err := m.Verify(nil, verifier); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// X5Chain returns the DER certificates of the x5chain header, leaf first. The
// unprotected header is consulted first, then the protected one.
func X5Chain(msg *cose.UntaggedSign1Message) ([][]byte, error) {
	raw, ok := msg.Headers.Unprotected[cose.HeaderLabelX5Chain]
	if !ok {
		raw, ok = msg.Headers.Protected[cose.HeaderLabelX5Chain]
	}
	if !ok {
		return nil, ErrNoX5Chain
	}

	// x5chain can be a single cert ([]byte) or an array of certs
	var ders [][]byte
	switch v := raw.(type) {
	case []byte:
		ders = append(ders, v)
	case [][]byte:
		ders = v
	case []any:
		for _, entry := range v {
			b, ok := entry.([]byte)
			if !ok {
				return nil, fmt.Errorf("x5chain entry is %T, expected bstr", entry)
			}
			ders = append(ders, b)
		}
	default:
		return nil, fmt.Errorf("x5chain is %T", raw)
	}
	if len(ders) == 0 {
		return nil, ErrNoX5Chain
	}
	return ders, nil
}

// SignerCertificate parses the leaf of the x5chain and returns it with the remaining
// certificates as intermediates.
func SignerCertificate(msg *cose.UntaggedSign1Message) (*certificate.Certificate, [][]byte, error) {
	ders, err := X5Chain(msg)
	if err != nil {
		return nil, nil, err
	}
	leaf, err := certificate.Parse(ders[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing x5chain leaf: %w", err)
	}
	return leaf, ders[1:], nil
}
