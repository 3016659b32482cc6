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
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Role selects which party a session key belongs to.
type Role int

const (
	RoleReader Role = iota
	RoleDevice
)

func (r Role) info() string {
	if r == RoleReader {
		return "SKReader"
	}
	return "SKDevice"
}

func (r Role) String() string {
	if r == RoleReader {
		return "reader"
	}
	return "device"
}

const sessionKeySize = 32

var (
	ErrHKDF           = errors.New("session key derivation failed")
	ErrAEAD           = errors.New("session encryption failed")
	ErrNoSessionData  = errors.New("session data has no ciphertext")
	ErrSessionKeyUsed = errors.New("session key already used for encryption")
)

// SessionKey is a role-scoped AES-256-GCM key. The nonce is fixed per role with
// message counter 1, so each key encrypts at most one message.
type SessionKey struct {
	role Role
	key  []byte

	mu   sync.Mutex
	used bool
}

// DeriveSessionKey runs ECDH and HKDF-SHA256 with the transcript salt.
func DeriveSessionKey(own *ecdh.PrivateKey, peer *ecdh.PublicKey, transcript *SessionTranscript, role Role) (*SessionKey, error) {
	secret, err := own.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHKDF, err)
	}
	salt, err := transcript.Salt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHKDF, err)
	}

	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(role.info())), key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHKDF, err)
	}
	return &SessionKey{role: role, key: key}, nil
}

// Role returns the role the key was derived for.
func (k *SessionKey) Role() Role {
	return k.role
}

// Encrypt seals plaintext into SessionData. A second call fails with ErrSessionKeyUsed.
func (k *SessionKey) Encrypt(plaintext []byte) (*SessionData, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.used {
		return nil, ErrSessionKeyUsed
	}

	aead, err := k.aead()
	if err != nil {
		return nil, err
	}
	k.used = true
	return &SessionData{Data: aead.Seal(nil, k.nonce(), plaintext, nil)}, nil
}

// Decrypt opens the ciphertext in data.
func (k *SessionKey) Decrypt(data *SessionData) ([]byte, error) {
	if data == nil || len(data.Data) == 0 {
		return nil, ErrNoSessionData
	}
	aead, err := k.aead()
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, k.nonce(), data.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAEAD, err)
	}
	return plaintext, nil
}

func (k *SessionKey) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAEAD, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAEAD, err)
	}
	return aead, nil
}

// nonce is 8 bytes identifier (zero except byte 7 = role) followed by a 4 byte counter of 1.
func (k *SessionKey) nonce() []byte {
	nonce := make([]byte, 12)
	if k.role == RoleDevice {
		nonce[7] = 1
	}
	nonce[11] = 1
	return nonce
}

// Session status codes.
const (
	StatusSessionEncryptionError uint64 = 10
	StatusDecodingError          uint64 = 11
	StatusSessionTermination     uint64 = 20
)

// SessionData is the envelope of every message after engagement.
type SessionData struct {
	Data   []byte  `cbor:"data,omitempty"`
	Status *uint64 `cbor:"status,omitempty"`
}

// NewSessionStatus returns a SessionData carrying only a status code.
func NewSessionStatus(status uint64) *SessionData {
	return &SessionData{Status: &status}
}

// NewTermination returns the message that ends a session without a payload.
func NewTermination() *SessionData {
	return NewSessionStatus(StatusSessionTermination)
}

// ParseSessionData decodes a SessionData message.
func ParseSessionData(data []byte) (*SessionData, error) {
	var sd SessionData
	if err := cborDecMode.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("decoding session data: %w", err)
	}
	return &sd, nil
}

// IsTermination reports whether the message carries the termination status.
func (sd *SessionData) IsTermination() bool {
	return sd.Status != nil && *sd.Status == StatusSessionTermination
}

// SerializeAndEncrypt encodes v and encrypts it.
func SerializeAndEncrypt(v any, key *SessionKey) (*SessionData, error) {
	plaintext, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding session payload: %w", err)
	}
	return key.Encrypt(plaintext)
}

// DecryptAndDeserialize decrypts data and decodes the plaintext into v.
func DecryptAndDeserialize(data *SessionData, key *SessionKey, v any) error {
	plaintext, err := key.Decrypt(data)
	if err != nil {
		return err
	}
	if err := cborDecMode.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("decoding session payload: %w", err)
	}
	return nil
}
