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
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

type fakeKey struct {
	id  string
	key *ecdsa.PrivateKey
}

func (k *fakeKey) Identifier() string          { return k.id }
func (k *fakeKey) PublicKey() *ecdsa.PublicKey { return &k.key.PublicKey }

func (k *fakeKey) Sign(_ context.Context, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, k.key, digest[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// fakeKeys is a KeyFactory whose SignMultiple can be made to misbehave.
type fakeKeys struct {
	keys map[string]*ecdsa.PrivateKey

	signErr  error
	drop     string
	rename   string
	calls    int
	requests int
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: make(map[string]*ecdsa.PrivateKey)}
}

func (f *fakeKeys) add(t *testing.T, id string) *ecdsa.PrivateKey {
	t.Helper()
	key, err := mock.GenerateKey()
	require.NoError(t, err)
	f.keys[id] = key
	return key
}

func (f *fakeKeys) GenerateExisting(identifier string, _ *ecdsa.PublicKey) KeyHandle {
	key, ok := f.keys[identifier]
	if !ok {
		return nil
	}
	return &fakeKey{id: identifier, key: key}
}

func (f *fakeKeys) SignMultiple(ctx context.Context, requests []SignRequest) (map[string][]byte, error) {
	f.calls++
	f.requests += len(requests)
	if f.signErr != nil {
		return nil, f.signErr
	}
	out := make(map[string][]byte, len(requests))
	for _, req := range requests {
		id := req.Key.Identifier()
		if id == f.drop {
			continue
		}
		sig, err := req.Key.Sign(ctx, req.Message)
		if err != nil {
			return nil, err
		}
		if id == f.rename {
			id += "-renamed"
		}
		out[id] = sig
	}
	return out, nil
}

var errFakeSigner = errors.New("secure element unavailable")

// newTranscript builds a session transcript from fresh engagements.
func newTranscript(t *testing.T) *mdoc.SessionTranscript {
	t.Helper()
	reader, _, err := mdoc.NewReaderEngagement(mock.SessionURL)
	require.NoError(t, err)
	device, _, err := mdoc.NewDeviceEngagement("")
	require.NoError(t, err)
	transcript, err := mdoc.NewSessionTranscript(mdoc.CrossDevice, reader, device, mdoc.QRHandover())
	require.NoError(t, err)
	return transcript
}

func challengeFor(t *testing.T, transcript *mdoc.SessionTranscript, docType string) []byte {
	t.Helper()
	challenge, err := mdoc.DeviceAuthenticationBytes(transcript, docType)
	require.NoError(t, err)
	return challenge
}

// storedMdoc issues an example mDL with attrs bound to the key keyID of keys.
func storedMdoc(t *testing.T, issuer *mock.Signer, keys *fakeKeys, id, keyID string, attrs []mock.Attribute) StoredMdoc {
	t.Helper()
	key, ok := keys.keys[keyID]
	if !ok {
		key = keys.add(t, keyID)
	}
	m, err := mock.IssueMdoc(mock.MdocConfig{
		DocType:      mock.ExampleDocType,
		NameSpace:    mock.ExampleNameSpace,
		Attributes:   attrs,
		Issuer:       issuer,
		DeviceKey:    &key.PublicKey,
		PrivateKeyID: keyID,
	})
	require.NoError(t, err)
	return StoredMdoc{ID: id, Mdoc: *m}
}

func newIssuer(t *testing.T) *mock.Signer {
	t.Helper()
	issuer, err := mock.NewIssuer(nil)
	require.NoError(t, err)
	return issuer
}

func mdlAttributes(names ...string) []mdoc.AttributeIdentifier {
	ids := make([]mdoc.AttributeIdentifier, 0, len(names))
	for _, n := range names {
		ids = append(ids, mdoc.AttributeIdentifier{DocType: mock.ExampleDocType, NameSpace: mock.ExampleNameSpace, Attribute: n})
	}
	return ids
}

func keyID(i int) string {
	return fmt.Sprintf("key-%d", i)
}
