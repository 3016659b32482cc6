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

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/keys"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

// Store handles file-based persistence for the wallet.
type Store struct {
	Dir string
	log zerolog.Logger
}

// walletJSON is the on-disk format of wallet.json.
type walletJSON struct {
	Credentials []StoredCredential `json:"credentials"`
}

// DefaultDir returns the default wallet storage directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mdoc-holder/wallet"
	}
	return filepath.Join(home, ".mdoc-holder", "wallet")
}

// NewStore creates a Store for dir, or for DefaultDir if dir is empty.
func NewStore(dir string, log zerolog.Logger) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{Dir: dir, log: log}
}

func (s *Store) walletPath() string {
	return filepath.Join(s.Dir, "wallet.json")
}

func (s *Store) keysDir() string {
	return filepath.Join(s.Dir, "keys")
}

func (s *Store) issuerDir() string {
	return filepath.Join(s.Dir, "issuer")
}

// Load reads the wallet from disk. A missing wallet.json yields an empty wallet.
func (s *Store) Load() (*Wallet, error) {
	w := New()
	if err := s.loadKeys(w); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.walletPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return w, nil
		}
		return nil, fmt.Errorf("reading wallet.json: %w", err)
	}

	var wj walletJSON
	if err := json.Unmarshal(data, &wj); err != nil {
		return nil, fmt.Errorf("parsing wallet.json: %w", err)
	}
	for i := range wj.Credentials {
		if err := wj.Credentials[i].Rehydrate(); err != nil {
			s.log.Warn().Err(err).Str("credential", wj.Credentials[i].ID).Msg("skipping undecodable credential")
		}
	}
	w.credentials = wj.Credentials
	return w, nil
}

func (s *Store) loadKeys(w *Wallet) error {
	entries, err := os.ReadDir(s.keysDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading keys directory: %w", err)
	}
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".pem")
		if e.IsDir() || !ok {
			continue
		}
		key, err := keys.LoadPrivateKey(filepath.Join(s.keysDir(), e.Name()))
		if err != nil {
			return fmt.Errorf("loading device key %s: %w", id, err)
		}
		w.AddDeviceKey(id, key)
	}
	return nil
}

// Save persists credentials and device keys.
func (s *Store) Save(w *Wallet) error {
	if err := os.MkdirAll(s.keysDir(), 0o700); err != nil {
		return fmt.Errorf("creating wallet directory: %w", err)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for id, key := range w.deviceKeys {
		data, err := keys.MarshalPrivateKeyPEM(key)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(s.keysDir(), id+".pem"), data, 0o600); err != nil {
			return fmt.Errorf("saving device key: %w", err)
		}
	}

	data, err := json.MarshalIndent(walletJSON{Credentials: w.credentials}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling wallet.json: %w", err)
	}
	return os.WriteFile(s.walletPath(), data, 0o600)
}

// LoadOrCreateIssuer loads the test issuer from disk, generating it on first use.
func (s *Store) LoadOrCreateIssuer() (*mock.Signer, error) {
	dir := s.issuerDir()
	paths := [4]string{
		filepath.Join(dir, "ca.pem"),
		filepath.Join(dir, "ca-key.pem"),
		filepath.Join(dir, "cert.pem"),
		filepath.Join(dir, "key.pem"),
	}

	if _, err := os.Stat(paths[0]); err == nil {
		return loadSigner(paths)
	}

	issuer, err := mock.NewIssuer(nil)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating issuer directory: %w", err)
	}
	caKey, err := keys.MarshalPrivateKeyPEM(issuer.CAKey)
	if err != nil {
		return nil, err
	}
	key, err := keys.MarshalPrivateKeyPEM(issuer.Key)
	if err != nil {
		return nil, err
	}
	for i, data := range [][]byte{issuer.CA.PEM(), caKey, issuer.Certificate.PEM(), key} {
		if err := os.WriteFile(paths[i], data, 0o600); err != nil {
			return nil, fmt.Errorf("saving issuer: %w", err)
		}
	}
	s.log.Info().Str("dir", dir).Msg("generated test issuer")
	return issuer, nil
}

func loadSigner(paths [4]string) (*mock.Signer, error) {
	var certs [2]*certificate.Certificate
	for i, p := range []string{paths[0], paths[2]} {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		if certs[i], err = certificate.ParsePEM(data); err != nil {
			return nil, err
		}
	}
	caKey, err := keys.LoadPrivateKey(paths[1])
	if err != nil {
		return nil, err
	}
	key, err := keys.LoadPrivateKey(paths[3])
	if err != nil {
		return nil, err
	}
	return &mock.Signer{CA: certs[0], CAKey: caKey, Certificate: certs[1], Key: key}, nil
}
