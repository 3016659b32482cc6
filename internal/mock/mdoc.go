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

package mock

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

// MdocConfig holds options for issuing a test mdoc.
type MdocConfig struct {
	DocType    string
	NameSpace  string
	Attributes []Attribute
	Issuer     *Signer
	// DeviceKey is the holder key the MSO binds the credential to.
	DeviceKey    *ecdsa.PublicKey
	PrivateKeyID string
	// ValidFrom defaults to now; ValidUntil defaults to ValidFrom plus 90 days.
	ValidFrom  time.Time
	ValidUntil time.Time
}

// IssueMdoc creates an mdoc whose attributes are digested into an MSO signed by the
// issuer's document signer key.
func IssueMdoc(cfg MdocConfig) (*mdoc.Mdoc, error) {
	if cfg.Issuer == nil {
		return nil, errors.New("issuer is required")
	}
	if cfg.DeviceKey == nil {
		return nil, errors.New("device key is required")
	}
	validFrom := cfg.ValidFrom
	if validFrom.IsZero() {
		validFrom = time.Now().UTC().Truncate(time.Second)
	}
	validUntil := cfg.ValidUntil
	if validUntil.IsZero() {
		validUntil = validFrom.Add(90 * 24 * time.Hour)
	}

	items := make([]mdoc.IssuerSignedItemBytes, 0, len(cfg.Attributes))
	digests := make(map[uint64][]byte, len(cfg.Attributes))
	for i, attr := range cfg.Attributes {
		random := make([]byte, 16)
		if _, err := rand.Read(random); err != nil {
			return nil, fmt.Errorf("generating random: %w", err)
		}
		item, err := mdoc.NewTagged24(mdoc.IssuerSignedItem{
			DigestID:          uint64(i),
			Random:            random,
			ElementIdentifier: attr.Name,
			ElementValue:      attr.Value,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding IssuerSignedItem %s: %w", attr.Name, err)
		}
		digest, err := mdoc.ItemDigest(item)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		digests[uint64(i)] = digest
	}

	deviceKey, err := mdoc.NewCoseKey(cfg.DeviceKey)
	if err != nil {
		return nil, fmt.Errorf("encoding device key: %w", err)
	}
	mso, err := mdoc.NewTagged24(mdoc.MobileSecurityObject{
		Version:         mdoc.MSOVersion,
		DigestAlgorithm: mdoc.DigestAlgorithmSHA256,
		ValueDigests:    map[string]map[uint64][]byte{cfg.NameSpace: digests},
		DeviceKeyInfo:   mdoc.DeviceKeyInfo{DeviceKey: deviceKey},
		DocType:         cfg.DocType,
		ValidityInfo: mdoc.ValidityInfo{
			Signed:     validFrom,
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding MSO: %w", err)
	}
	payload, err := mso.MarshalCBOR()
	if err != nil {
		return nil, err
	}

	issuerAuth, err := mdoc.SignSign1(payload, cfg.Issuer.Chain(), false, cfg.Issuer.Key)
	if err != nil {
		return nil, fmt.Errorf("signing MSO: %w", err)
	}

	var nameSpaces mdoc.IssuerNameSpaces
	nameSpaces.Set(cfg.NameSpace, items)
	return &mdoc.Mdoc{
		DocType: cfg.DocType,
		IssuerSigned: mdoc.IssuerSigned{
			NameSpaces: nameSpaces,
			IssuerAuth: issuerAuth,
		},
		PrivateKeyID: cfg.PrivateKeyID,
	}, nil
}

// ExampleMdoc issues the example mDL for deviceKey.
func ExampleMdoc(issuer *Signer, deviceKey *ecdsa.PublicKey, privateKeyID string) (*mdoc.Mdoc, error) {
	return IssueMdoc(MdocConfig{
		DocType:      ExampleDocType,
		NameSpace:    ExampleNameSpace,
		Attributes:   ExampleAttributes(),
		Issuer:       issuer,
		DeviceKey:    deviceKey,
		PrivateKeyID: privateKeyID,
	})
}
