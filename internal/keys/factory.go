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

package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dominikschlosser/mdoc-holder/internal/holder"
)

var ErrUnknownKey = errors.New("unknown key identifier")

// SoftwareKeyFactory keeps device keys in memory.
type SoftwareKeyFactory struct {
	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

// NewSoftwareKeyFactory returns an empty factory.
func NewSoftwareKeyFactory() *SoftwareKeyFactory {
	return &SoftwareKeyFactory{keys: make(map[string]*ecdsa.PrivateKey)}
}

// Add registers key under identifier, replacing any previous key.
func (f *SoftwareKeyFactory) Add(identifier string, key *ecdsa.PrivateKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[identifier] = key
}

// Generate creates and registers a new P-256 key.
func (f *SoftwareKeyFactory) Generate(identifier string) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	f.Add(identifier, key)
	return key, nil
}

func (f *SoftwareKeyFactory) lookup(identifier string) (*ecdsa.PrivateKey, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	key, ok := f.keys[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, identifier)
	}
	return key, nil
}

// GenerateExisting returns a handle for a registered key. The handle reports the key's
// actual public key when the identifier is known, and publicKey otherwise.
func (f *SoftwareKeyFactory) GenerateExisting(identifier string, publicKey *ecdsa.PublicKey) holder.KeyHandle {
	pub := publicKey
	if key, err := f.lookup(identifier); err == nil {
		pub = &key.PublicKey
	}
	return &softwareKey{factory: f, identifier: identifier, publicKey: pub}
}

// SignMultiple signs every request concurrently.
func (f *SoftwareKeyFactory) SignMultiple(ctx context.Context, requests []holder.SignRequest) (map[string][]byte, error) {
	signatures := make([][]byte, len(requests))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		g.Go(func() error {
			sig, err := req.Key.Sign(ctx, req.Message)
			if err != nil {
				return fmt.Errorf("signing with %q: %w", req.Key.Identifier(), err)
			}
			signatures[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(requests))
	for i, req := range requests {
		result[req.Key.Identifier()] = signatures[i]
	}
	return result, nil
}

type softwareKey struct {
	factory    *SoftwareKeyFactory
	identifier string
	publicKey  *ecdsa.PublicKey
}

func (k *softwareKey) Identifier() string {
	return k.identifier
}

func (k *softwareKey) PublicKey() *ecdsa.PublicKey {
	return k.publicKey
}

func (k *softwareKey) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := k.factory.lookup(k.identifier)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}
