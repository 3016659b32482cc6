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

// Package holder implements the holder side of an ISO 18013-5 disclosure session: matching a
// reader's request against stored mdocs, building the proposed documents and signing them
// with the device keys.
package holder

import (
	"context"
	"crypto/ecdsa"

	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

// StoredMdoc is an mdoc together with its storage identifier.
type StoredMdoc struct {
	ID   string
	Mdoc mdoc.Mdoc
}

// MdocDataSource looks up stored mdocs. The result has one list per requested doc type, in
// the order of docTypes.
type MdocDataSource interface {
	MdocsByDocTypes(ctx context.Context, docTypes []string) ([][]StoredMdoc, error)
}

// KeyHandle is a device key that can sign. Sign hashes msg with SHA-256 and returns the
// signature in IEEE P1363 (r || s) form.
type KeyHandle interface {
	Identifier() string
	PublicKey() *ecdsa.PublicKey
	Sign(ctx context.Context, msg []byte) ([]byte, error)
}

// SignRequest asks for one signature over Message with Key.
type SignRequest struct {
	Key     KeyHandle
	Message []byte
}

// KeyFactory resolves device keys and signs batches. SignMultiple must return exactly one
// signature per submitted key identifier.
type KeyFactory interface {
	GenerateExisting(identifier string, publicKey *ecdsa.PublicKey) KeyHandle
	SignMultiple(ctx context.Context, requests []SignRequest) (map[string][]byte, error)
}

// Transport delivers one message to the reader and returns its answer.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}
