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

package verifier

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/format"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

type testPeers struct {
	issuer    *mock.Signer
	reader    *mock.Signer
	deviceKey *ecdsa.PrivateKey
	session   *Session
}

func newTestPeers(t *testing.T, items ...mdoc.ItemsRequest) *testPeers {
	t.Helper()
	issuer, err := mock.NewIssuer(nil)
	require.NoError(t, err)
	reader, err := mock.NewReader(mock.ExampleReaderRegistration())
	require.NoError(t, err)
	deviceKey, err := mock.GenerateKey()
	require.NoError(t, err)
	session, err := NewSession(Config{
		SessionURL:         mock.SessionURL,
		SessionType:        mdoc.CrossDevice,
		Handover:           mdoc.QRHandover(),
		Items:              items,
		ReaderKey:          reader.Key,
		ReaderChain:        reader.Chain(),
		IssuerTrustAnchors: issuer.TrustAnchors(),
	})
	require.NoError(t, err)
	return &testPeers{issuer: issuer, reader: reader, deviceKey: deviceKey, session: session}
}

// engage plays the holder's first step and returns the decrypted request together with
// the key for the response.
func (p *testPeers) engage(t *testing.T) (*mdoc.DeviceRequest, *mdoc.SessionTranscript, *mdoc.SessionKey) {
	t.Helper()
	device, ephemeral, err := mdoc.NewDeviceEngagement("")
	require.NoError(t, err)
	reply, err := p.session.HandleMessage(context.Background(), device.Bytes())
	require.NoError(t, err)

	transcript, err := mdoc.NewSessionTranscript(mdoc.CrossDevice, p.session.engagement, device, mdoc.QRHandover())
	require.NoError(t, err)
	readerPub, err := p.session.engagement.PublicKey()
	require.NoError(t, err)
	readerKey, err := mdoc.DeriveSessionKey(ephemeral, readerPub, transcript, mdoc.RoleReader)
	require.NoError(t, err)
	deviceKey, err := mdoc.DeriveSessionKey(ephemeral, readerPub, transcript, mdoc.RoleDevice)
	require.NoError(t, err)

	sessionData, err := mdoc.ParseSessionData(reply)
	require.NoError(t, err)
	var request mdoc.DeviceRequest
	require.NoError(t, mdoc.DecryptAndDeserialize(sessionData, readerKey, &request))
	return &request, transcript, deviceKey
}

func (p *testPeers) document(t *testing.T, transcript *mdoc.SessionTranscript, attrs []mock.Attribute) mdoc.Document {
	t.Helper()
	m, err := mock.IssueMdoc(mock.MdocConfig{
		DocType:    mock.ExampleDocType,
		NameSpace:  mock.ExampleNameSpace,
		Attributes: attrs,
		Issuer:     p.issuer,
		DeviceKey:  &p.deviceKey.PublicKey,
	})
	require.NoError(t, err)
	challenge, err := mdoc.DeviceAuthenticationBytes(transcript, mock.ExampleDocType)
	require.NoError(t, err)
	signature, err := mdoc.SignSign1(challenge, nil, true, p.deviceKey)
	require.NoError(t, err)
	deviceSigned, err := mdoc.NewDeviceSigned(signature)
	require.NoError(t, err)
	return mdoc.Document{DocType: m.DocType, IssuerSigned: m.IssuerSigned, DeviceSigned: deviceSigned}
}

func (p *testPeers) respond(t *testing.T, key *mdoc.SessionKey, response *mdoc.DeviceResponse) ([]byte, error) {
	t.Helper()
	sessionData, err := mdoc.SerializeAndEncrypt(response, key)
	require.NoError(t, err)
	body, err := mdoc.Marshal(sessionData)
	require.NoError(t, err)
	return p.session.HandleMessage(context.Background(), body)
}

func familyName() []mock.Attribute {
	return []mock.Attribute{{Name: "family_name", Value: "Doe"}}
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Config{SessionURL: mock.SessionURL})
	assert.Error(t, err)

	key, err := mock.GenerateKey()
	require.NoError(t, err)
	_, err = NewSession(Config{SessionURL: mock.SessionURL, Items: []mdoc.ItemsRequest{{DocType: "x"}}})
	assert.Error(t, err)
	_, err = NewSession(Config{SessionURL: mock.SessionURL, Items: []mdoc.ItemsRequest{{DocType: "x"}}, ReaderKey: key})
	assert.NoError(t, err)
}

func TestSession_EngagementURI(t *testing.T) {
	p := newTestPeers(t, mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"))

	uri := p.session.EngagementURI()
	require.True(t, strings.HasPrefix(uri, mdoc.EngagementURIScheme))
	raw, err := format.DecodeBase64URL(strings.TrimPrefix(uri, mdoc.EngagementURIScheme))
	require.NoError(t, err)
	assert.Equal(t, p.session.Engagement(), raw)

	parsed, err := mdoc.ParseEngagement(raw)
	require.NoError(t, err)
	url, err := parsed.SessionURL()
	require.NoError(t, err)
	assert.Equal(t, mock.SessionURL, url)
}

func TestSession_SendsSignedRequest(t *testing.T) {
	p := newTestPeers(t,
		mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"),
		mdoc.NewItemsRequest(mock.PIDDocType, mock.PIDNameSpace, "age_over_18"),
	)
	request, transcript, _ := p.engage(t)

	require.Len(t, request.DocRequests, 2)
	for _, dr := range request.DocRequests {
		cert, _, err := dr.VerifyReaderAuth(transcript)
		require.NoError(t, err)
		assert.True(t, cert.Equal(p.reader.Certificate))
	}
	assert.Equal(t, StatusAwaitingResponse, p.session.Result().Status)
	select {
	case <-p.session.Done():
		t.Fatal("session should not be done before the response")
	default:
	}
}

func TestSession_VerifiesResponse(t *testing.T) {
	p := newTestPeers(t, mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"))
	_, transcript, key := p.engage(t)

	reply, err := p.respond(t, key, mdoc.NewDeviceResponse([]mdoc.Document{p.document(t, transcript, familyName())}))
	require.NoError(t, err)

	sessionData, err := mdoc.ParseSessionData(reply)
	require.NoError(t, err)
	assert.True(t, sessionData.IsTermination())

	result := p.session.Result()
	assert.Equal(t, StatusDisclosed, result.Status)
	select {
	case <-p.session.Done():
	default:
		t.Fatal("session should be done once disclosed")
	}
	require.Len(t, result.Documents, 1)
	assert.Equal(t, mock.IssuerCommonName, result.Documents[0].Issuer.CommonName())

	_, err = p.session.HandleMessage(context.Background(), reply)
	assert.ErrorIs(t, err, ErrSessionDone)
}

func TestSession_RejectsResponse(t *testing.T) {
	tests := []struct {
		name     string
		response func(t *testing.T, p *testPeers, transcript *mdoc.SessionTranscript) *mdoc.DeviceResponse
		wantErr  error
	}{
		{
			name: "unrequested attribute",
			response: func(t *testing.T, p *testPeers, transcript *mdoc.SessionTranscript) *mdoc.DeviceResponse {
				return mdoc.NewDeviceResponse([]mdoc.Document{p.document(t, transcript, mock.ExampleAttributes())})
			},
			wantErr: ErrUnrequestedElement,
		},
		{
			name: "missing document",
			response: func(*testing.T, *testPeers, *mdoc.SessionTranscript) *mdoc.DeviceResponse {
				return mdoc.NewDeviceResponse(nil)
			},
			wantErr: ErrMissingDocument,
		},
		{
			name: "signed for another session",
			response: func(t *testing.T, p *testPeers, _ *mdoc.SessionTranscript) *mdoc.DeviceResponse {
				reader, _, err := mdoc.NewReaderEngagement(mock.SessionURL)
				require.NoError(t, err)
				device, _, err := mdoc.NewDeviceEngagement("")
				require.NoError(t, err)
				other, err := mdoc.NewSessionTranscript(mdoc.CrossDevice, reader, device, mdoc.QRHandover())
				require.NoError(t, err)
				return mdoc.NewDeviceResponse([]mdoc.Document{p.document(t, other, familyName())})
			},
			wantErr: mdoc.ErrSignatureInvalid,
		},
		{
			name: "untrusted issuer",
			response: func(t *testing.T, p *testPeers, transcript *mdoc.SessionTranscript) *mdoc.DeviceResponse {
				issuer, err := mock.NewIssuer(nil)
				require.NoError(t, err)
				p.issuer = issuer
				return mdoc.NewDeviceResponse([]mdoc.Document{p.document(t, transcript, familyName())})
			},
			wantErr: certificate.ErrVerification,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPeers(t, mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"))
			_, transcript, key := p.engage(t)

			_, err := p.respond(t, key, tt.response(t, p, transcript))
			assert.ErrorIs(t, err, tt.wantErr)

			result := p.session.Result()
			assert.Equal(t, StatusFailed, result.Status)
			assert.ErrorIs(t, result.Err, tt.wantErr)
		})
	}
}

func TestSession_HolderTermination(t *testing.T) {
	p := newTestPeers(t, mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"))
	p.engage(t)

	body, err := mdoc.Marshal(mdoc.NewTermination())
	require.NoError(t, err)
	_, err = p.session.HandleMessage(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, p.session.Result().Status)
}

func TestSession_HolderErrorStatus(t *testing.T) {
	p := newTestPeers(t, mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"))
	p.engage(t)

	body, err := mdoc.Marshal(mdoc.NewSessionStatus(mdoc.StatusSessionEncryptionError))
	require.NoError(t, err)
	_, err = p.session.HandleMessage(context.Background(), body)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, p.session.Result().Status)
}

func TestSession_MalformedEngagement(t *testing.T) {
	p := newTestPeers(t, mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name"))

	_, err := p.session.HandleMessage(context.Background(), []byte{0xff})
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, p.session.Result().Status)

	_, err = p.session.HandleMessage(context.Background(), []byte{0xff})
	assert.ErrorIs(t, err, ErrSessionDone)
}
