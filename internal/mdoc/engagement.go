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
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/dominikschlosser/mdoc-holder/internal/format"
)

const (
	EngagementVersion = "1.0"

	CipherSuiteIdentifier = 1

	ConnectionMethodRestAPI        = 4
	ConnectionMethodRestAPIVersion = 1

	// EngagementURIScheme prefixes the base64url engagement carried in a QR code.
	EngagementURIScheme = "mdoc:"
)

var (
	ErrEngagementVersion = errors.New("unsupported engagement version")
	ErrCipherSuite       = errors.New("unsupported cipher suite")
	ErrNoSessionURL      = errors.New("engagement has no REST API connection method")
	ErrEngagementURI     = errors.New("not an mdoc engagement URI")
)

// Engagement is a DeviceEngagement or ReaderEngagement structure. Both parties use the
// same layout; the reader names the URL the holder posts to, the holder names its origin.
type Engagement struct {
	Version                string             `cbor:"0,keyasint"`
	Security               Security           `cbor:"1,keyasint"`
	ConnectionMethods      []ConnectionMethod `cbor:"2,keyasint,omitempty"`
	ServerRetrievalMethods cbor.RawMessage    `cbor:"3,keyasint,omitempty"`
	ProtocolInfo           cbor.RawMessage    `cbor:"4,keyasint,omitempty"`

	raw []byte
}

// Security carries the cipher suite and the sender's ephemeral public key.
type Security struct {
	_               struct{} `cbor:",toarray"`
	CipherSuite     uint64
	EDeviceKeyBytes Tagged24[CoseKey]
}

// ConnectionMethod is a device retrieval method; only the REST API method is supported.
type ConnectionMethod struct {
	_       struct{} `cbor:",toarray"`
	Type    uint64
	Version uint64
	Options RestAPIOptions
}

// RestAPIOptions holds the URI of a REST API connection method.
type RestAPIOptions struct {
	_   struct{} `cbor:",toarray"`
	URI string
}

// NewReaderEngagement generates a fresh ephemeral key and an engagement pointing the
// holder at sessionURL.
func NewReaderEngagement(sessionURL string) (*Engagement, *ecdh.PrivateKey, error) {
	return newEngagement(sessionURL)
}

// NewDeviceEngagement generates a fresh ephemeral key and an engagement naming the
// holder's origin as transport hint.
func NewDeviceEngagement(originURL string) (*Engagement, *ecdh.PrivateKey, error) {
	return newEngagement(originURL)
}

func newEngagement(uri string) (*Engagement, *ecdh.PrivateKey, error) {
	if _, err := url.Parse(uri); err != nil {
		return nil, nil, fmt.Errorf("parsing engagement URL: %w", err)
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	coseKey, err := NewCoseKeyFromECDH(priv.PublicKey())
	if err != nil {
		return nil, nil, err
	}
	keyBytes, err := NewTagged24(coseKey)
	if err != nil {
		return nil, nil, err
	}

	e := &Engagement{
		Version: EngagementVersion,
		Security: Security{
			CipherSuite:     CipherSuiteIdentifier,
			EDeviceKeyBytes: keyBytes,
		},
		ConnectionMethods: []ConnectionMethod{{
			Type:    ConnectionMethodRestAPI,
			Version: ConnectionMethodRestAPIVersion,
			Options: RestAPIOptions{URI: uri},
		}},
	}
	if e.raw, err = cborEncMode.Marshal(e); err != nil {
		return nil, nil, fmt.Errorf("encoding engagement: %w", err)
	}
	return e, priv, nil
}

// ParseEngagement decodes and validates an engagement, keeping its exact bytes for the
// session transcript.
func ParseEngagement(data []byte) (*Engagement, error) {
	var e Engagement
	if err := cborDecMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding engagement: %w", err)
	}
	if e.Version != EngagementVersion {
		return nil, fmt.Errorf("%w: %q", ErrEngagementVersion, e.Version)
	}
	if e.Security.CipherSuite != CipherSuiteIdentifier {
		return nil, fmt.Errorf("%w: %d", ErrCipherSuite, e.Security.CipherSuite)
	}
	e.raw = bytes.Clone(data)
	return &e, nil
}

// Bytes returns the encoded engagement as it was created or received.
func (e *Engagement) Bytes() []byte {
	return e.raw
}

// PublicKey returns the sender's ephemeral key for key agreement.
func (e *Engagement) PublicKey() (*ecdh.PublicKey, error) {
	return e.Security.EDeviceKeyBytes.Value.ECDH()
}

// SessionURL returns the URI of the first REST API connection method.
func (e *Engagement) SessionURL() (string, error) {
	for _, m := range e.ConnectionMethods {
		if m.Type == ConnectionMethodRestAPI && m.Version == ConnectionMethodRestAPIVersion && m.Options.URI != "" {
			return m.Options.URI, nil
		}
	}
	return "", ErrNoSessionURL
}

// URI returns the engagement as an "mdoc:" URI for QR handover.
func (e *Engagement) URI() string {
	return EngagementURIScheme + format.EncodeBase64URL(e.raw)
}

// ParseEngagementURI decodes an "mdoc:" URI.
func ParseEngagementURI(uri string) (*Engagement, error) {
	encoded, ok := strings.CutPrefix(strings.TrimSpace(uri), EngagementURIScheme)
	if !ok {
		return nil, ErrEngagementURI
	}
	data, err := format.DecodeBase64URL(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngagementURI, err)
	}
	return ParseEngagement(data)
}
