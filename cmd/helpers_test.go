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

package cmd

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

func TestExampleCredential(t *testing.T) {
	tests := []struct {
		kind    string
		docType string
		wantErr bool
	}{
		{"mdl", mock.ExampleDocType, false},
		{"PID", mock.PIDDocType, false},
		{"passport", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			docType, _, attrs, err := exampleCredential(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("exampleCredential(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if docType != tt.docType {
				t.Errorf("docType = %q, want %q", docType, tt.docType)
			}
			if !tt.wantErr && len(attrs) == 0 {
				t.Error("expected attributes")
			}
		})
	}
}

func TestOmitAttributes_TrimsWhitespace(t *testing.T) {
	attrs := omitAttributes(mock.ExampleAttributes(), []string{" family_name ", "", "expiry_date"})

	if len(attrs) != len(mock.ExampleAttributes())-2 {
		t.Fatalf("expected %d attributes, got %d", len(mock.ExampleAttributes())-2, len(attrs))
	}
	for _, a := range attrs {
		if a.Name == "family_name" || a.Name == "expiry_date" {
			t.Errorf("%s should have been omitted", a.Name)
		}
	}
}

func TestParseItems(t *testing.T) {
	items, err := parseItems(mock.ExampleDocType, mock.ExampleNameSpace, []string{
		"family_name",
		"org.iso.18013.5.1.aamva/DHS_compliance",
		" document_number ",
	})
	if err != nil {
		t.Fatalf("parseItems: %v", err)
	}

	if items.DocType != mock.ExampleDocType {
		t.Errorf("DocType = %q", items.DocType)
	}
	if got := items.NameSpaces.Keys(); len(got) != 2 || got[0] != mock.ExampleNameSpace {
		t.Fatalf("name spaces = %v", got)
	}
	ids := items.AttributeIdentifiers()
	if len(ids) != 3 {
		t.Fatalf("expected 3 attributes, got %v", ids)
	}
	if ids[1].Attribute != "document_number" {
		t.Errorf("attributes of a name space should stay together, got %v", ids)
	}
}

func TestParseItems_Invalid(t *testing.T) {
	for _, attrs := range [][]string{nil, {"ns/"}, {"/name"}} {
		if _, err := parseItems(mock.ExampleDocType, mock.ExampleNameSpace, attrs); err == nil {
			t.Errorf("parseItems(%v) should fail", attrs)
		}
	}
}

func TestBaseURLFor(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{":8085", "http://localhost:8085"},
		{"192.168.1.10:8085", "http://192.168.1.10:8085"},
	}
	for _, tt := range tests {
		if got := baseURLFor(tt.listen); got != tt.want {
			t.Errorf("baseURLFor(%q) = %q, want %q", tt.listen, got, tt.want)
		}
	}
}

func TestParseUsage(t *testing.T) {
	tests := []struct {
		in      string
		want    certificate.Usage
		wantErr bool
	}{
		{"reader", certificate.UsageReaderAuth, false},
		{"MDL", certificate.UsageMdl, false},
		{"ca", 0, true},
	}
	for _, tt := range tests {
		got, err := parseUsage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseUsage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseUsage(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCertificateType_ExampleRegistration(t *testing.T) {
	typ, err := certificateType(certificate.UsageReaderAuth, "", true)
	if err != nil {
		t.Fatalf("certificateType: %v", err)
	}
	if typ.ReaderRegistration == nil {
		t.Fatal("expected the example reader registration")
	}

	typ, err = certificateType(certificate.UsageMdl, "", true)
	if err != nil {
		t.Fatalf("certificateType: %v", err)
	}
	if typ.ReaderRegistration != nil || typ.IssuerRegistration != nil {
		t.Error("document signer certificates get no example registration")
	}
}

func TestParseEngagement(t *testing.T) {
	session := newReaderSession(t, nil, nil)

	fromURI, err := parseEngagement(session.EngagementURI())
	if err != nil {
		t.Fatalf("parsing URI: %v", err)
	}
	fromHex, err := parseEngagement(hex.EncodeToString(session.Engagement()))
	if err != nil {
		t.Fatalf("parsing hex: %v", err)
	}
	if !bytes.Equal(fromURI.Bytes(), fromHex.Bytes()) {
		t.Error("both encodings should yield the same engagement")
	}

	if _, err := parseEngagement("-----BEGIN CERTIFICATE-----"); err == nil {
		t.Error("PEM input is not an engagement")
	}
}

func TestAskConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := askConfirm(strings.NewReader(tt.input), &out, "Share?")
		if got != tt.want {
			t.Errorf("askConfirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Share? [y/N]") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}
