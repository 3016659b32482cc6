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
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

// ProposedDocument is a stored mdoc reduced to the requested attributes, waiting for the
// user's approval and the device signature.
type ProposedDocument struct {
	SourceID     string
	PrivateKeyID string
	DocType      string
	// IssuerSigned keeps the original issuerAuth; the reader checks the disclosed items
	// against its digests.
	IssuerSigned mdoc.IssuerSigned
	// DeviceSignedChallenge is the DeviceAuthentication the device key signs.
	DeviceSignedChallenge []byte
}

type attributeSet map[mdoc.AttributeIdentifier]struct{}

func newAttributeSet(ids []mdoc.AttributeIdentifier) attributeSet {
	set := make(attributeSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s attributeSet) contains(id mdoc.AttributeIdentifier) bool {
	_, ok := s[id]
	return ok
}

// NewProposedDocument keeps the issuer-signed items of stored that are in requested. Name
// spaces left empty are dropped; source order is kept.
func NewProposedDocument(stored StoredMdoc, requested []mdoc.AttributeIdentifier, challenge []byte) ProposedDocument {
	wanted := newAttributeSet(requested)
	source := stored.Mdoc

	var nameSpaces mdoc.IssuerNameSpaces
	for _, ns := range source.IssuerSigned.NameSpaces.Entries() {
		var items []mdoc.IssuerSignedItemBytes
		for _, item := range ns.Value {
			id := mdoc.AttributeIdentifier{
				DocType:   source.DocType,
				NameSpace: ns.Key,
				Attribute: item.Value.ElementIdentifier,
			}
			if wanted.contains(id) {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			nameSpaces.Set(ns.Key, items)
		}
	}

	return ProposedDocument{
		SourceID:     stored.ID,
		PrivateKeyID: source.PrivateKeyID,
		DocType:      source.DocType,
		IssuerSigned: mdoc.IssuerSigned{
			NameSpaces: nameSpaces,
			IssuerAuth: source.IssuerSigned.IssuerAuth,
		},
		DeviceSignedChallenge: challenge,
	}
}

// AttributeIdentifiers lists the attributes the document would disclose, in source order.
func (d ProposedDocument) AttributeIdentifiers() []mdoc.AttributeIdentifier {
	m := mdoc.Mdoc{DocType: d.DocType, IssuerSigned: d.IssuerSigned}
	return m.AttributeIdentifiers()
}

// NameSpaces returns the disclosed attribute values per name space, for display.
func (d ProposedDocument) NameSpaces() mdoc.OrderedMap[mdoc.OrderedMap[any]] {
	return d.IssuerSigned.Attributes()
}

// MatchCandidates splits stored into mdocs that hold every requested attribute, returned as
// proposed documents, and the requested attributes each remaining mdoc lacks. Both lists keep
// the order of stored, and together they account for every stored mdoc exactly once.
func MatchCandidates(stored []StoredMdoc, requested []mdoc.AttributeIdentifier, challenge []byte) ([]ProposedDocument, [][]mdoc.AttributeIdentifier) {
	var (
		candidates []ProposedDocument
		missing    [][]mdoc.AttributeIdentifier
	)
	for _, s := range stored {
		available := newAttributeSet(s.Mdoc.AttributeIdentifiers())

		var lacking []mdoc.AttributeIdentifier
		for _, id := range requested {
			if !available.contains(id) {
				lacking = append(lacking, id)
			}
		}

		if len(lacking) == 0 {
			candidates = append(candidates, NewProposedDocument(s, requested, challenge))
		} else {
			missing = append(missing, lacking)
		}
	}
	return candidates, missing
}
