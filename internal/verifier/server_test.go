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

package verifier_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominikschlosser/mdoc-holder/internal/holder"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
	"github.com/dominikschlosser/mdoc-holder/internal/verifier"
	"github.com/dominikschlosser/mdoc-holder/internal/wallet"
)

const baseURL = "http://reader.example.com"

// appTransport posts holder messages to a fiber app without a network listener.
type appTransport struct {
	app *fiber.App
}

func (t appTransport) Post(_ context.Context, url string, body []byte) ([]byte, error) {
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", verifier.ContentTypeCBOR)
	resp, err := t.app.Test(req, -1)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

type serverFixture struct {
	issuer *mock.Signer
	reader *mock.Signer
	server *verifier.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	issuer, err := mock.NewIssuer(nil)
	require.NoError(t, err)
	reader, err := mock.NewReader(mock.ExampleReaderRegistration())
	require.NoError(t, err)
	server := verifier.NewServer(baseURL+"/", verifier.Config{
		SessionType:        mdoc.CrossDevice,
		Handover:           mdoc.QRHandover(),
		Items:              []mdoc.ItemsRequest{mdoc.NewItemsRequest(mock.ExampleDocType, mock.ExampleNameSpace, "family_name", "document_number")},
		ReaderKey:          reader.Key,
		ReaderChain:        reader.Chain(),
		IssuerTrustAnchors: issuer.TrustAnchors(),
	})
	return &serverFixture{issuer: issuer, reader: reader, server: server}
}

func (f *serverFixture) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.server.App().Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_CreateSession(t *testing.T) {
	f := newServerFixture(t)

	resp, body := f.do(t, http.MethodPost, "/sessions")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID         string `json:"id"`
		SessionURL string `json:"sessionUrl"`
		Engagement string `json:"engagement"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, baseURL+"/disclosure/"+created.ID, created.SessionURL)
	require.True(t, strings.HasPrefix(created.Engagement, mdoc.EngagementURIScheme))

	session, ok := f.server.Session(created.ID)
	require.True(t, ok)
	assert.Equal(t, created.Engagement, session.EngagementURI())

	resp, body = f.do(t, http.MethodGet, "/sessions/"+created.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), verifier.StatusAwaitingEngagement.String())
}

func TestServer_UnknownSession(t *testing.T) {
	f := newServerFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/sessions/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/disclosure/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ExpiredSessionsAreDropped(t *testing.T) {
	f := newServerFixture(t)
	f.server.SetSessionTTL(time.Nanosecond)

	first, _, err := f.server.NewSession()
	require.NoError(t, err)
	_, ok := f.server.Session(first)
	assert.False(t, ok)
	resp, _ := f.do(t, http.MethodGet, "/sessions/"+first)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for i := 0; i < 3; i++ {
		_, _, err := f.server.NewSession()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.server.SessionCount())
}

func TestServer_SessionsKeptWithinTTL(t *testing.T) {
	f := newServerFixture(t)

	ids := make([]string, 3)
	for i := range ids {
		id, _, err := f.server.NewSession()
		require.NoError(t, err)
		ids[i] = id
	}
	assert.Equal(t, len(ids), f.server.SessionCount())
	for _, id := range ids {
		_, ok := f.server.Session(id)
		assert.True(t, ok, id)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newServerFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := f.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMonitoringApp(t *testing.T) {
	app := verifier.NewMonitoringApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_DisclosureOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	w := wallet.New()
	_, err := w.Issue(f.issuer, mock.ExampleDocType, mock.ExampleNameSpace, mock.ExampleAttributes())
	require.NoError(t, err)

	id, session, err := f.server.NewSession()
	require.NoError(t, err)
	engagement, err := mdoc.ParseEngagementURI(session.EngagementURI())
	require.NoError(t, err)

	awaiting, err := holder.Start(context.Background(), holder.Config{
		SessionType:  mdoc.CrossDevice,
		Handover:     mdoc.QRHandover(),
		TrustAnchors: f.reader.TrustAnchors(),
		Storage:      w,
		Keys:         w.Keys(),
		Transport:    appTransport{app: f.server.App()},
	}, engagement.Bytes())
	require.NoError(t, err)
	matched, err := awaiting.MatchRequest(context.Background())
	require.NoError(t, err)
	terminated, err := matched.Disclose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, holder.OutcomeSuccess, terminated.Outcome)

	resp, body := f.do(t, http.MethodGet, "/sessions/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Status    string `json:"status"`
		Documents []struct {
			DocType    string                       `json:"docType"`
			Issuer     string                       `json:"issuer"`
			Attributes map[string]map[string]string `json:"attributes"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, verifier.StatusDisclosed.String(), result.Status)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, mock.IssuerCommonName, result.Documents[0].Issuer)
	assert.Equal(t, map[string]string{"family_name": "Doe", "document_number": "123456789"},
		result.Documents[0].Attributes[mock.ExampleNameSpace])

	_, err = appTransport{app: f.server.App()}.Post(context.Background(), session.SessionURL(), []byte{0xa0})
	assert.ErrorContains(t, err, "409")
}
