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

package config

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/trustlist"
)

func TestLoad_Defaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), settings)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"walletDir":"/tmp/w","logger":{"level":"debug"},"reader":{"baseUrl":"http://r"}}`), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/w", settings.WalletDir)
	assert.Equal(t, "debug", settings.Logger.Level)
	assert.Equal(t, "http://r", settings.Reader.BaseURL)
	assert.Equal(t, DefaultListenAddress, settings.Reader.ListenAddress)
	assert.Equal(t, DefaultAppName, settings.AppName)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadTrustAnchors(t *testing.T) {
	ca, _, err := certificate.NewCA("ca.rp.example.com")
	require.NoError(t, err)
	dir := t.TempDir()
	pemPath := filepath.Join(dir, "ca.pem")
	derPath := filepath.Join(dir, "ca.der")
	require.NoError(t, os.WriteFile(pemPath, ca.PEM(), 0o600))
	require.NoError(t, os.WriteFile(derPath, ca.DER(), 0o600))

	settings := Settings{TrustAnchors: []string{pemPath, derPath}}
	anchors, err := settings.LoadTrustAnchors(zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, anchors, 2)

	settings.IssuerTrustAnchors = []string{filepath.Join(dir, "none.pem")}
	_, err = settings.LoadIssuerTrustAnchors(zerolog.Nop())
	assert.Error(t, err)
}

func writeTrustList(t *testing.T, dir string, services map[string]*certificate.Certificate) string {
	t.Helper()
	var entityServices []any
	for serviceType, cert := range services {
		entityServices = append(entityServices, map[string]any{
			"ServiceInformation": map[string]any{
				"ServiceTypeIdentifier": serviceType,
				"ServiceDigitalIdentity": map[string]any{
					"X509Certificates": []any{map[string]any{"val": base64.StdEncoding.EncodeToString(cert.DER())}},
				},
			},
		})
	}
	payload, err := json.Marshal(map[string]any{
		"TrustedEntitiesList": []any{map[string]any{"TrustedEntityServices": entityServices}},
	})
	require.NoError(t, err)
	jwt := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`)) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "."
	path := filepath.Join(dir, "lote.jwt")
	require.NoError(t, os.WriteFile(path, []byte(jwt), 0o600))
	return path
}

func TestLoadTrustAnchors_TrustLists(t *testing.T) {
	readerCA, _, err := certificate.NewCA("ca.rp.example.com")
	require.NoError(t, err)
	issuerCA, _, err := certificate.NewCA("ca.issuer.example.com")
	require.NoError(t, err)
	path := writeTrustList(t, t.TempDir(), map[string]*certificate.Certificate{
		trustlist.ServiceTypeRelyingParty: readerCA,
		trustlist.ServiceTypeIssuance:     issuerCA,
	})

	settings := Settings{TrustLists: []string{path}}
	readers, err := settings.LoadTrustAnchors(zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.True(t, readers[0].Certificate().Equal(readerCA))

	issuers, err := settings.LoadIssuerTrustAnchors(zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, issuers, 1)
	assert.True(t, issuers[0].Certificate().Equal(issuerCA))

	settings.TrustLists = append(settings.TrustLists, filepath.Join(t.TempDir(), "missing.jwt"))
	_, err = settings.LoadTrustAnchors(zerolog.Nop())
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetLevel(DefaultLogger("test-app", &buf), "warn")
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test-app", line["app"])
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	_, err = SetLevel(logger, "loud")
	assert.Error(t, err)
}
