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

// Package config holds the settings of the mdoc-holder commands. Settings are read once at
// startup and passed down explicitly.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/trustlist"
)

const (
	DefaultAppName       = "mdoc-holder"
	DefaultListenAddress = ":8085"
	DefaultMetricsAddr   = ":8888"
)

// Settings is the configuration file format.
type Settings struct {
	// AppName is added to every log line.
	AppName string `json:"appName"`
	// WalletDir is where credentials and device keys are stored.
	WalletDir string `json:"walletDir"`
	// TrustAnchors are PEM or DER files of reader CAs the holder trusts.
	TrustAnchors []string `json:"trustAnchors"`
	// IssuerTrustAnchors are PEM or DER files of issuer CAs the reader trusts.
	IssuerTrustAnchors []string `json:"issuerTrustAnchors"`
	// TrustLists are ETSI TS 119 602 trust list JWTs. Relying party services add reader
	// trust anchors, issuance services add issuer trust anchors.
	TrustLists []string `json:"trustLists"`
	// Logger is the configuration for the logger.
	Logger LoggerSettings `json:"logger"`
	// Reader is the configuration for "reader serve".
	Reader ReaderSettings `json:"reader"`
}

// LoggerSettings is the configuration for setting up the logger.
type LoggerSettings struct {
	Level string `json:"level"`
}

// ReaderSettings configures the reader HTTP server.
type ReaderSettings struct {
	ListenAddress  string `json:"listenAddress"`
	BaseURL        string `json:"baseUrl"`
	MetricsAddress string `json:"metricsAddress"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		AppName: DefaultAppName,
		Logger:  LoggerSettings{Level: "info"},
		Reader: ReaderSettings{
			ListenAddress:  DefaultListenAddress,
			MetricsAddress: DefaultMetricsAddr,
		},
	}
}

// Load reads the settings file at path over the defaults. An empty path yields Default().
func Load(path string) (Settings, error) {
	settings := Default()
	if path == "" {
		return settings, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return settings, nil
}

// LoadTrustAnchors reads the reader trust anchors.
func (s Settings) LoadTrustAnchors(log zerolog.Logger) ([]*certificate.TrustAnchor, error) {
	return s.collectAnchors(s.TrustAnchors, trustlist.ServiceTypeRelyingParty, log)
}

// LoadIssuerTrustAnchors reads the issuer trust anchors.
func (s Settings) LoadIssuerTrustAnchors(log zerolog.Logger) ([]*certificate.TrustAnchor, error) {
	return s.collectAnchors(s.IssuerTrustAnchors, trustlist.ServiceTypeIssuance, log)
}

func (s Settings) collectAnchors(paths []string, serviceType string, log zerolog.Logger) ([]*certificate.TrustAnchor, error) {
	anchors, err := loadAnchors(paths)
	if err != nil {
		return nil, err
	}
	for _, p := range s.TrustLists {
		tl, err := trustlist.Load(p, log)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, tl.TrustAnchors(serviceType)...)
	}
	return anchors, nil
}

func loadAnchors(paths []string) ([]*certificate.TrustAnchor, error) {
	anchors := make([]*certificate.TrustAnchor, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading trust anchor: %w", err)
		}
		cert, err := certificate.ParseAny(data)
		if err != nil {
			return nil, fmt.Errorf("trust anchor %s: %w", p, err)
		}
		anchors = append(anchors, certificate.NewTrustAnchor(cert))
	}
	return anchors, nil
}
