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
	"crypto/ecdh"
	"crypto/ecdsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
)

const testSessionURL = "http://example.com/disclosure"

type testSession struct {
	reader     *Engagement
	readerKey  *ecdh.PrivateKey
	device     *Engagement
	deviceKey  *ecdh.PrivateKey
	transcript *SessionTranscript
}

func newTestSession(t *testing.T) *testSession {
	t.Helper()
	reader, readerKey, err := NewReaderEngagement(testSessionURL)
	require.NoError(t, err)
	device, deviceKey, err := NewDeviceEngagement("https://wallet.example.com")
	require.NoError(t, err)
	transcript, err := NewSessionTranscript(CrossDevice, reader, device, QRHandover())
	require.NoError(t, err)
	return &testSession{
		reader:     reader,
		readerKey:  readerKey,
		device:     device,
		deviceKey:  deviceKey,
		transcript: transcript,
	}
}

func newTestReaderCertificate(t *testing.T) (*certificate.Certificate, *ecdsa.PrivateKey, *certificate.TrustAnchor) {
	t.Helper()
	ca, caKey, err := certificate.NewCA("ca.rp.example.com")
	require.NoError(t, err)
	cert, key, err := certificate.New(ca, caKey, "cert.rp.example.com", certificate.Type{Usage: certificate.UsageReaderAuth})
	require.NoError(t, err)
	return cert, key, certificate.NewTrustAnchor(ca)
}
