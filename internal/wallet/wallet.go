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

// Package wallet implements a file-backed mdoc wallet: stored credentials, their device
// keys, and a test issuer for example credentials.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dominikschlosser/mdoc-holder/internal/holder"
	"github.com/dominikschlosser/mdoc-holder/internal/keys"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

// StoredCredential is an mdoc stored in the wallet.
type StoredCredential struct {
	ID           string    `json:"id"`
	DocType      string    `json:"doctype"`
	PrivateKeyID string    `json:"private_key_id"`
	Raw          []byte    `json:"raw"` // CBOR-encoded mdoc
	AddedAt      time.Time `json:"added_at"`

	mdoc *mdoc.Mdoc
}

// Mdoc returns the decoded credential.
func (c *StoredCredential) Mdoc() *mdoc.Mdoc {
	return c.mdoc
}

// Rehydrate decodes Raw after loading from disk.
func (c *StoredCredential) Rehydrate() error {
	m, err := mdoc.ParseMdoc(c.Raw)
	if err != nil {
		return err
	}
	c.mdoc = m
	return nil
}

// Wallet holds credentials and the device keys they are bound to.
type Wallet struct {
	mu          sync.RWMutex
	credentials []StoredCredential
	deviceKeys  map[string]*ecdsa.PrivateKey
	keys        *keys.SoftwareKeyFactory
}

// New returns an empty wallet.
func New() *Wallet {
	return &Wallet{
		deviceKeys: make(map[string]*ecdsa.PrivateKey),
		keys:       keys.NewSoftwareKeyFactory(),
	}
}

// Keys returns the key factory holding the device keys.
func (w *Wallet) Keys() *keys.SoftwareKeyFactory {
	return w.keys
}

// AddDeviceKey registers a device key.
func (w *Wallet) AddDeviceKey(id string, key *ecdsa.PrivateKey) {
	w.mu.Lock()
	w.deviceKeys[id] = key
	w.mu.Unlock()
	w.keys.Add(id, key)
}

// NewDeviceKey generates and registers a device key with a fresh identifier.
func (w *Wallet) NewDeviceKey() (string, *ecdsa.PrivateKey, error) {
	key, err := mock.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating device key: %w", err)
	}
	id := uuid.NewString()
	w.AddDeviceKey(id, key)
	return id, key, nil
}

// Add stores m and returns its identifier.
func (w *Wallet) Add(m *mdoc.Mdoc) (string, error) {
	raw, err := mdoc.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding mdoc: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.deviceKeys[m.PrivateKeyID]; !ok {
		return "", fmt.Errorf("no device key %q for mdoc", m.PrivateKeyID)
	}
	cred := StoredCredential{
		ID:           uuid.NewString(),
		DocType:      m.DocType,
		PrivateKeyID: m.PrivateKeyID,
		Raw:          raw,
		AddedAt:      time.Now().UTC(),
		mdoc:         m,
	}
	w.credentials = append(w.credentials, cred)
	return cred.ID, nil
}

// Issue issues an mdoc from issuer, bound to a new device key, and stores it.
func (w *Wallet) Issue(issuer *mock.Signer, docType, nameSpace string, attrs []mock.Attribute) (string, error) {
	keyID, key, err := w.NewDeviceKey()
	if err != nil {
		return "", err
	}
	m, err := mock.IssueMdoc(mock.MdocConfig{
		DocType:      docType,
		NameSpace:    nameSpace,
		Attributes:   attrs,
		Issuer:       issuer,
		DeviceKey:    &key.PublicKey,
		PrivateKeyID: keyID,
	})
	if err != nil {
		return "", err
	}
	return w.Add(m)
}

// Credentials returns a copy of the stored credentials in insertion order.
func (w *Wallet) Credentials() []StoredCredential {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]StoredCredential, len(w.credentials))
	copy(out, w.credentials)
	return out
}

// Remove deletes the credential with id.
func (w *Wallet) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.credentials {
		if c.ID == id {
			w.credentials = append(w.credentials[:i], w.credentials[i+1:]...)
			return true
		}
	}
	return false
}

// MdocsByDocTypes returns the stored mdocs per doc type in insertion order.
func (w *Wallet) MdocsByDocTypes(ctx context.Context, docTypes []string) ([][]holder.StoredMdoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	result := make([][]holder.StoredMdoc, len(docTypes))
	for i, docType := range docTypes {
		for _, c := range w.credentials {
			if c.DocType != docType || c.mdoc == nil {
				continue
			}
			result[i] = append(result[i], holder.StoredMdoc{ID: c.ID, Mdoc: *c.mdoc})
		}
	}
	return result, nil
}
