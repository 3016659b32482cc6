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

package certificate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnregisteredAttributes is returned when a reader asks for attributes its
// registration does not cover.
var ErrUnregisteredAttributes = errors.New("requested attributes are not in the reader registration")

// LocalizedStrings maps a language code to text.
type LocalizedStrings map[string]string

// Organization describes the party a certificate was issued to.
type Organization struct {
	DisplayName      LocalizedStrings `json:"displayName"`
	LegalName        LocalizedStrings `json:"legalName"`
	Description      LocalizedStrings `json:"description,omitempty"`
	Category         LocalizedStrings `json:"category,omitempty"`
	WebURL           string           `json:"webUrl,omitempty"`
	City             LocalizedStrings `json:"city,omitempty"`
	CountryCode      string           `json:"countryCode,omitempty"`
	PrivacyPolicyURL string           `json:"privacyPolicyUrl,omitempty"`
}

// IssuerRegistration is embedded in document signer certificates.
type IssuerRegistration struct {
	Organization Organization `json:"organization"`
}

// RetentionPolicy states whether and how long a reader keeps disclosed attributes.
type RetentionPolicy struct {
	IntentToRetain       bool    `json:"intentToRetain"`
	MaxDurationInMinutes *uint64 `json:"maxDurationInMinutes,omitempty"`
}

// SharingPolicy states whether a reader shares disclosed attributes.
type SharingPolicy struct {
	IntentToShare bool `json:"intentToShare"`
}

// DeletionPolicy states whether the holder can ask for deletion.
type DeletionPolicy struct {
	Deleteable bool `json:"deleteable"`
}

// AuthorizedAttribute is a marker for an attribute the reader may request.
type AuthorizedAttribute struct{}

// AuthorizedNamespace maps attribute names to their authorization.
type AuthorizedNamespace map[string]AuthorizedAttribute

// AuthorizedMdoc maps name spaces to their authorized attributes.
type AuthorizedMdoc map[string]AuthorizedNamespace

// ReaderRegistration is embedded in reader authentication certificates and shown to the
// holder before disclosure.
type ReaderRegistration struct {
	PurposeStatement LocalizedStrings          `json:"purposeStatement"`
	RetentionPolicy  RetentionPolicy           `json:"retentionPolicy"`
	SharingPolicy    SharingPolicy             `json:"sharingPolicy"`
	DeletionPolicy   DeletionPolicy            `json:"deletionPolicy"`
	Organization     Organization              `json:"organization"`
	ReturnURLPrefix  string                    `json:"returnUrlPrefix,omitempty"`
	Attributes       map[string]AuthorizedMdoc `json:"attributes"`
}

// RequestedAttribute names one attribute of one document type.
type RequestedAttribute struct {
	DocType   string
	NameSpace string
	Attribute string
}

func (a RequestedAttribute) String() string {
	return a.DocType + "/" + a.NameSpace + "/" + a.Attribute
}

// VerifyRequestedAttributes checks that every requested attribute is authorized.
func (r *ReaderRegistration) VerifyRequestedAttributes(requested []RequestedAttribute) error {
	var unregistered []string
	for _, attr := range requested {
		if _, ok := r.Attributes[attr.DocType][attr.NameSpace][attr.Attribute]; !ok {
			unregistered = append(unregistered, attr.String())
		}
	}
	if len(unregistered) > 0 {
		return fmt.Errorf("%w: %s", ErrUnregisteredAttributes, strings.Join(unregistered, ", "))
	}
	return nil
}
