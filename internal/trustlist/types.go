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

// Package trustlist reads ETSI TS 119 602 lists of trusted entities and turns the listed
// certificates into trust anchors for reader and issuer verification.
package trustlist

import "github.com/dominikschlosser/mdoc-holder/internal/certificate"

// Service types of the lists this package understands.
const (
	ServiceTypeIssuance     = "http://uri.etsi.org/19602/SvcType/Issuance"
	ServiceTypeRelyingParty = "http://uri.etsi.org/19602/SvcType/RelyingPartyAccess"
)

// TrustList is a parsed trust list.
type TrustList struct {
	Header     map[string]any
	SchemeInfo SchemeInfo
	Entities   []TrustedEntity
}

// SchemeInfo contains list metadata.
type SchemeInfo struct {
	LoTEType           string
	SchemeOperatorName string
	ListIssueDatetime  string
}

// TrustedEntity is a single trusted entity with its services.
type TrustedEntity struct {
	Name     string
	Services []TrustedService
}

// TrustedService is a service of a trusted entity and the certificates that identify it.
type TrustedService struct {
	ServiceType  string
	Certificates []*certificate.Certificate
}

// wire format of the JWT payload

type localizedValue struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type payload struct {
	ListAndSchemeInformation *struct {
		LoTEType           string           `json:"LoTEType"`
		SchemeOperatorName []localizedValue `json:"SchemeOperatorName"`
		ListIssueDatetime  string           `json:"ListIssueDatetime"`
	} `json:"ListAndSchemeInformation"`
	TrustedEntitiesList []entityJSON `json:"TrustedEntitiesList"`
}

type entityJSON struct {
	TrustedEntityInformation struct {
		TEName []localizedValue `json:"TEName"`
	} `json:"TrustedEntityInformation"`
	TrustedEntityServices []struct {
		ServiceInformation *serviceJSON `json:"ServiceInformation"`
	} `json:"TrustedEntityServices"`
}

type serviceJSON struct {
	ServiceTypeIdentifier  string `json:"ServiceTypeIdentifier"`
	ServiceDigitalIdentity struct {
		X509Certificates []struct {
			Val string `json:"val"`
		} `json:"X509Certificates"`
	} `json:"ServiceDigitalIdentity"`
}

func firstValue(values []localizedValue) string {
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}
