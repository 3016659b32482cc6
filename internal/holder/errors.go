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

package holder

import (
	"errors"
	"fmt"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

var (
	ErrReaderAuthMissing       = errors.New("reader authentication is missing")
	ErrReaderAuthsInconsistent = errors.New("doc requests are signed by different readers")
	ErrSessionConsumed         = errors.New("session state was already used")
	ErrSignerContractViolation = errors.New("key factory returned an unexpected set of signatures")
	ErrDuplicateKeyIdentifier  = errors.New("more than one document uses the same device key")
	ErrNoDocRequests           = errors.New("device request has no doc requests")
)

// UnsatisfiableRequestError is returned when no stored mdoc can answer the request for DocType.
type UnsatisfiableRequestError struct {
	DocType string
	Missing [][]mdoc.AttributeIdentifier
}

func (e *UnsatisfiableRequestError) Error() string {
	return fmt.Sprintf("no stored mdoc satisfies the request for %s", e.DocType)
}

// UntrustedIssuerError is returned when the reader certificate does not chain to a trust anchor.
type UntrustedIssuerError struct {
	DocType string
	Err     error
}

func (e *UntrustedIssuerError) Error() string {
	return fmt.Sprintf("reader certificate for %s is not trusted: %v", e.DocType, e.Err)
}

func (e *UntrustedIssuerError) Unwrap() error {
	return e.Err
}

// PrivateKeyTypeMismatchError is returned when the resolved key handle does not match the
// device key the issuer bound the mdoc to.
type PrivateKeyTypeMismatchError struct {
	PrivateKeyID string
}

func (e *PrivateKeyTypeMismatchError) Error() string {
	return fmt.Sprintf("key %q does not match the mdoc device key", e.PrivateKeyID)
}

// SigningError wraps a failure of the key factory.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "signing documents: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure of the transport.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("posting to %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorCategory groups session failures by what the caller should tell the user.
type ErrorCategory int

const (
	CategoryNone ErrorCategory = iota
	// CategoryUnsatisfiable: the wallet cannot fulfil the request.
	CategoryUnsatisfiable
	// CategoryUntrustedReader: the reader is not authenticated or not trusted.
	CategoryUntrustedReader
	CategoryCertificate
	CategoryCrypto
	CategoryProtocol
	CategoryTransport
	CategorySigning
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryUnsatisfiable:
		return "unsatisfiable"
	case CategoryUntrustedReader:
		return "untrusted_reader"
	case CategoryCertificate:
		return "certificate"
	case CategoryCrypto:
		return "crypto"
	case CategoryProtocol:
		return "protocol"
	case CategoryTransport:
		return "transport"
	case CategorySigning:
		return "signing"
	default:
		return fmt.Sprintf("ErrorCategory(%d)", int(c))
	}
}

var (
	certificateErrors = []error{
		certificate.ErrPEM, certificate.ErrUnexpectedPEMHeader, certificate.ErrParsing,
		certificate.ErrVerification, certificate.ErrIncorrectEKUCount, certificate.ErrIncorrectEKU,
		certificate.ErrMetadata, certificate.ErrKeyParsing, certificate.ErrUnregisteredAttributes,
	}
	cryptoErrors = []error{
		mdoc.ErrHKDF, mdoc.ErrAEAD, mdoc.ErrNoSessionData, mdoc.ErrSessionKeyUsed,
		mdoc.ErrKeyMissingCoordinate, mdoc.ErrKeyWrongType, mdoc.ErrKeyUnexpectedLabel,
		mdoc.ErrKeyInvalidPoint, mdoc.ErrSignatureInvalid, mdoc.ErrUnsupportedCOSEAlg,
	}
)

// Category classifies err. Unclassified errors are reported as CategoryProtocol.
func Category(err error) ErrorCategory {
	if err == nil {
		return CategoryNone
	}

	var (
		unsatisfiable *UnsatisfiableRequestError
		untrusted     *UntrustedIssuerError
		transport     *TransportError
		signing       *SigningError
		mismatch      *PrivateKeyTypeMismatchError
	)
	switch {
	case errors.As(err, &unsatisfiable):
		return CategoryUnsatisfiable
	case errors.As(err, &untrusted),
		errors.Is(err, ErrReaderAuthMissing),
		errors.Is(err, ErrReaderAuthsInconsistent):
		return CategoryUntrustedReader
	case errors.As(err, &transport):
		return CategoryTransport
	case errors.As(err, &signing),
		errors.As(err, &mismatch),
		errors.Is(err, ErrSignerContractViolation):
		return CategorySigning
	}
	for _, target := range certificateErrors {
		if errors.Is(err, target) {
			return CategoryCertificate
		}
	}
	for _, target := range cryptoErrors {
		if errors.Is(err, target) {
			return CategoryCrypto
		}
	}
	return CategoryProtocol
}
