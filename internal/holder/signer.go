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

package holder

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

// preparedDocument is a proposed document with its resolved key and Sig_structure.
type preparedDocument struct {
	doc      ProposedDocument
	key      KeyHandle
	prepared *mdoc.PreparedSign1
}

func (d ProposedDocument) prepare(keys KeyFactory) (*preparedDocument, error) {
	pub, err := d.IssuerSigned.PublicKey()
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("resolving device key of %s: %w", d.DocType, err)}
	}
	key := keys.GenerateExisting(d.PrivateKeyID, pub)
	if key == nil || !samePublicKey(key.PublicKey(), pub) {
		return nil, &PrivateKeyTypeMismatchError{PrivateKeyID: d.PrivateKeyID}
	}
	prepared, err := mdoc.PrepareDeviceSignature(d.DeviceSignedChallenge)
	if err != nil {
		return nil, err
	}
	return &preparedDocument{doc: d, key: key, prepared: prepared}, nil
}

func samePublicKey(a, b *ecdsa.PublicKey) bool {
	return a != nil && b != nil && a.Equal(b)
}

func (p *preparedDocument) finish(signature []byte) (*mdoc.Document, error) {
	deviceSigned, err := mdoc.NewDeviceSigned(p.prepared.Finish(signature))
	if err != nil {
		return nil, err
	}
	return &mdoc.Document{
		DocType:      p.doc.DocType,
		IssuerSigned: p.doc.IssuerSigned,
		DeviceSigned: deviceSigned,
	}, nil
}

// Sign signs the document with its own device key.
func (d ProposedDocument) Sign(ctx context.Context, keys KeyFactory) (*mdoc.Document, error) {
	p, err := d.prepare(keys)
	if err != nil {
		return nil, err
	}
	signature, err := p.key.Sign(ctx, p.prepared.ToBeSigned)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	return p.finish(signature)
}

// SignDocuments signs all documents in one SignMultiple call and returns them in input order.
// Either every document is signed or none is returned.
func SignDocuments(ctx context.Context, keys KeyFactory, docs []ProposedDocument) ([]mdoc.Document, error) {
	prepared := make([]*preparedDocument, 0, len(docs))
	requests := make([]SignRequest, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		p, err := d.prepare(keys)
		if err != nil {
			return nil, err
		}
		id := p.key.Identifier()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKeyIdentifier, id)
		}
		seen[id] = struct{}{}
		prepared = append(prepared, p)
		requests = append(requests, SignRequest{Key: p.key, Message: p.prepared.ToBeSigned})
	}
	if len(requests) == 0 {
		return nil, nil
	}

	signatures, err := keys.SignMultiple(ctx, requests)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	if len(signatures) != len(requests) {
		return nil, fmt.Errorf("%w: %d signatures for %d keys", ErrSignerContractViolation, len(signatures), len(requests))
	}

	documents := make([]mdoc.Document, 0, len(prepared))
	for _, p := range prepared {
		signature, ok := signatures[p.key.Identifier()]
		if !ok {
			return nil, fmt.Errorf("%w: no signature for key %q", ErrSignerContractViolation, p.key.Identifier())
		}
		doc, err := p.finish(signature)
		if err != nil {
			return nil, err
		}
		documents = append(documents, *doc)
	}
	return documents, nil
}
