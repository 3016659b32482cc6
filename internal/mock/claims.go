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

// Package mock issues test mdocs and certificates with example mDL and PID attributes.
package mock

import "github.com/fxamacker/cbor/v2"

const (
	ExampleDocType   = "org.iso.18013.5.1.mDL"
	ExampleNameSpace = "org.iso.18013.5.1"

	PIDDocType   = "eu.europa.ec.eudi.pid.1"
	PIDNameSpace = "eu.europa.ec.eudi.pid.1"

	ReaderCACommonName = "ca.rp.example.com"
	ReaderCommonName   = "cert.rp.example.com"
	IssuerCACommonName = "ca.issuer.example.com"
	IssuerCommonName   = "cert.issuer.example.com"

	SessionURL = "http://example.com/disclosure"
	ReturnURL  = "http://example.com/return"
)

// Attribute is one issuer-signed data element.
type Attribute struct {
	Name  string
	Value any
}

// fullDate encodes an ISO 18013-5 full-date (tag 1004).
func fullDate(date string) cbor.Tag {
	return cbor.Tag{Number: 1004, Content: date}
}

// ExampleAttributeNames lists the names of ExampleAttributes in order.
var ExampleAttributeNames = []string{
	"family_name",
	"issue_date",
	"expiry_date",
	"document_number",
	"driving_privileges",
}

// ExampleAttributes returns the mDL attributes of the example credential.
func ExampleAttributes() []Attribute {
	return []Attribute{
		{Name: "family_name", Value: "Doe"},
		{Name: "issue_date", Value: fullDate("2019-10-20")},
		{Name: "expiry_date", Value: fullDate("2024-10-20")},
		{Name: "document_number", Value: "123456789"},
		{Name: "driving_privileges", Value: []any{
			map[string]any{
				"vehicle_category_code": "A",
				"issue_date":            fullDate("2018-08-09"),
				"expiry_date":           fullDate("2024-10-20"),
			},
		}},
	}
}

// PIDAttributes returns EUDI PID data elements.
func PIDAttributes() []Attribute {
	return []Attribute{
		{Name: "family_name", Value: "MUSTERMANN"},
		{Name: "given_name", Value: "ERIKA"},
		{Name: "birth_date", Value: fullDate("1984-08-12")},
		{Name: "age_over_18", Value: true},
		{Name: "nationality", Value: "DE"},
		{Name: "issuing_country", Value: "DE"},
	}
}

// WithoutAttributes returns attrs minus the named attributes, keeping order.
func WithoutAttributes(attrs []Attribute, names ...string) []Attribute {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var out []Attribute
	for _, a := range attrs {
		if !drop[a.Name] {
			out = append(out, a)
		}
	}
	return out
}
