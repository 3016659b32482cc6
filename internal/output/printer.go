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

// Package output renders credentials, certificates and disclosure sessions for the terminal
// or as JSON.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fxamacker/cbor/v2"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/holder"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/verifier"
)

// Options controls how results are rendered.
type Options struct {
	JSON    bool
	Verbose bool
}

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	valueColor   = color.New(color.FgWhite)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)

	// timeNow is the function used to get the current time. Override in tests.
	timeNow = time.Now
)

// relativeTime returns a human-readable relative duration string for t.
// Future times return "in X units", past times return "X units ago".
func relativeTime(t time.Time) string {
	d := t.Sub(timeNow())
	if d < 0 {
		return formatDuration(-d) + " ago"
	}
	return "in " + formatDuration(d)
}

func formatDuration(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= 60*day:
		months := int(d / (30 * day))
		if months == 1 {
			return "1 month"
		}
		return fmt.Sprintf("%d months", months)
	case d >= 2*day:
		return fmt.Sprintf("%d days", int(d/day))
	case d >= day:
		return "1 day"
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= time.Hour:
		return "1 hour"
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "1 minute"
	}
}

// BuildMdocJSON returns the JSON-serializable map for a stored mdoc.
func BuildMdocJSON(id string, m *mdoc.Mdoc) map[string]any {
	out := map[string]any{
		"docType": m.DocType,
		"claims":  claimsJSON(m.IssuerSigned.Attributes()),
	}
	if id != "" {
		out["id"] = id
	}
	if m.PrivateKeyID != "" {
		out["privateKeyId"] = m.PrivateKeyID
	}
	if mso, err := m.IssuerSigned.MSO(); err == nil {
		out["mso"] = map[string]any{
			"version":         mso.Version,
			"digestAlgorithm": mso.DigestAlgorithm,
			"docType":         mso.DocType,
			"validityInfo": map[string]any{
				"signed":     mso.ValidityInfo.Signed.Format(time.RFC3339),
				"validFrom":  mso.ValidityInfo.ValidFrom.Format(time.RFC3339),
				"validUntil": mso.ValidityInfo.ValidUntil.Format(time.RFC3339),
			},
		}
	}
	return out
}

// PrintMdoc prints a stored mdoc to the terminal.
func PrintMdoc(id string, m *mdoc.Mdoc, opts Options) {
	if opts.JSON {
		PrintJSON(BuildMdocJSON(id, m))
		return
	}

	headerColor.Println("mdoc Credential")
	headerColor.Println(strings.Repeat("─", 50))

	printSection("Document Info")
	if id != "" {
		printKV("ID", id, 1)
	}
	printKV("DocType", m.DocType, 1)

	mso, err := m.IssuerSigned.MSO()
	if err != nil {
		warnColor.Printf("  ⚠ %v\n", err)
	} else {
		printKV("MSO Version", mso.Version, 1)
		printKV("Digest Algorithm", mso.DigestAlgorithm, 1)
		printKV("Signed", mso.ValidityInfo.Signed.Format(time.RFC3339), 1)
		printKV("Valid From", mso.ValidityInfo.ValidFrom.Format(time.RFC3339), 1)
		printKV("Valid Until", mso.ValidityInfo.ValidUntil.Format(time.RFC3339)+dimColor.Sprintf(" (%s)", relativeTime(mso.ValidityInfo.ValidUntil)), 1)
	}
	if opts.Verbose && m.PrivateKeyID != "" {
		printKV("Device Key", m.PrivateKeyID, 1)
	}

	printNameSpaces(m.IssuerSigned.Attributes())
	fmt.Println()
}

// PrintVerifyResult prints the issuer verification result of an mdoc.
func PrintVerifyResult(r *mdoc.VerifyResult, opts Options) {
	if opts.JSON {
		out := map[string]any{
			"docType":    r.DocType,
			"issuer":     r.Issuer.CommonName(),
			"signed":     r.Signed.Format(time.RFC3339),
			"validFrom":  r.ValidFrom.Format(time.RFC3339),
			"validUntil": r.ValidUntil.Format(time.RFC3339),
		}
		if r.IssuerRegistration != nil {
			out["issuerRegistration"] = r.IssuerRegistration
		}
		PrintJSON(out)
		return
	}

	printSection("Issuer Verification")
	successColor.Println("  ✓ Issuer signature valid")
	printKV("DocType", r.DocType, 1)
	printKV("Issuer", r.Issuer.CommonName(), 1)
	if r.IssuerRegistration != nil {
		printKV("Organization", localized(r.IssuerRegistration.Organization.DisplayName), 1)
	}
	printKV("Valid Until", r.ValidUntil.Format(time.RFC3339)+dimColor.Sprintf(" (%s)", relativeTime(r.ValidUntil)), 1)
}

// BuildCertificateJSON returns the JSON-serializable map for a certificate.
func BuildCertificateJSON(c *certificate.Certificate) map[string]any {
	x := c.X509()
	out := map[string]any{
		"subject":   x.Subject.String(),
		"issuer":    x.Issuer.String(),
		"notBefore": x.NotBefore.Format(time.RFC3339),
		"notAfter":  x.NotAfter.Format(time.RFC3339),
		"isCA":      x.IsCA,
	}
	if typ, err := certificate.TypeOf(c); err == nil {
		out["usage"] = typ.Usage.String()
		if typ.ReaderRegistration != nil {
			out["readerRegistration"] = typ.ReaderRegistration
		}
		if typ.IssuerRegistration != nil {
			out["issuerRegistration"] = typ.IssuerRegistration
		}
	}
	return out
}

// PrintCertificate prints a certificate and its registration extension.
func PrintCertificate(c *certificate.Certificate, opts Options) {
	if opts.JSON {
		PrintJSON(BuildCertificateJSON(c))
		return
	}

	x := c.X509()
	headerColor.Println("X.509 Certificate")
	headerColor.Println(strings.Repeat("─", 50))

	printSection("Subject")
	if attrs, err := c.Subject(); err == nil {
		for _, a := range attrs {
			printKV(a.Type, a.Value, 1)
		}
	}
	printKV("Issuer", x.Issuer.String(), 1)
	printKV("Not Before", x.NotBefore.Format(time.RFC3339), 1)
	printKV("Not After", x.NotAfter.Format(time.RFC3339)+dimColor.Sprintf(" (%s)", relativeTime(x.NotAfter)), 1)
	if x.IsCA {
		printKV("CA", "true", 1)
		fmt.Println()
		return
	}

	typ, err := certificate.TypeOf(c)
	if err != nil {
		warnColor.Printf("  ⚠ %v\n", err)
		fmt.Println()
		return
	}
	printKV("Usage", typ.Usage.String(), 1)

	if reg := typ.IssuerRegistration; reg != nil {
		printSection("Issuer Registration")
		printOrganization(reg.Organization)
	}
	if reg := typ.ReaderRegistration; reg != nil {
		printReaderRegistration(reg, opts.Verbose)
	}
	fmt.Println()
}

func printReaderRegistration(reg *certificate.ReaderRegistration, verbose bool) {
	printSection("Reader Registration")
	printOrganization(reg.Organization)
	if purpose := localized(reg.PurposeStatement); purpose != "" {
		printKV("Purpose", purpose, 1)
	}
	printKV("Retains Data", fmt.Sprint(reg.RetentionPolicy.IntentToRetain), 1)
	printKV("Shares Data", fmt.Sprint(reg.SharingPolicy.IntentToShare), 1)
	if reg.ReturnURLPrefix != "" {
		printKV("Return URL", reg.ReturnURLPrefix, 1)
	}

	authorized := authorizedAttributes(reg)
	if !verbose {
		dimColor.Printf("  authorized attributes: %d (use -v to show)\n", len(authorized))
		return
	}
	labelColor.Println("  Authorized Attributes:")
	for _, a := range authorized {
		valueColor.Printf("    %s\n", a)
	}
}

func printOrganization(org certificate.Organization) {
	printKV("Organization", localized(org.DisplayName), 1)
	if legal := localized(org.LegalName); legal != "" {
		printKV("Legal Name", legal, 1)
	}
	if org.WebURL != "" {
		printKV("Web", org.WebURL, 1)
	}
}

func authorizedAttributes(reg *certificate.ReaderRegistration) []string {
	var out []string
	for docType, nameSpaces := range reg.Attributes {
		for ns, attrs := range nameSpaces {
			for attr := range attrs {
				out = append(out, docType+"/"+ns+"/"+attr)
			}
		}
	}
	sort.Strings(out)
	return out
}

// BuildMatchJSON returns the JSON-serializable map for a matched disclosure request.
func BuildMatchJSON(reader *holder.Reader, matches []holder.DocTypeMatch) map[string]any {
	docs := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		doc := map[string]any{
			"docType":    m.DocType,
			"requested":  identifierStrings(m.Requested),
			"candidates": len(m.Candidates),
		}
		if len(m.Candidates) > 0 {
			selected := m.Candidates[len(m.Candidates)-1]
			doc["selected"] = selected.SourceID
			doc["disclosed"] = claimsJSON(selected.NameSpaces())
		}
		if len(m.Missing) > 0 {
			missing := make([][]string, len(m.Missing))
			for i, ids := range m.Missing {
				missing[i] = identifierStrings(ids)
			}
			doc["missing"] = missing
		}
		docs = append(docs, doc)
	}
	out := map[string]any{"documents": docs}
	if reader != nil {
		r := map[string]any{"commonName": reader.Certificate.CommonName()}
		if reader.Registration != nil {
			r["registration"] = reader.Registration
		}
		out["reader"] = r
	}
	return out
}

// PrintMatches prints who is asking for what and which stored credential would answer.
func PrintMatches(reader *holder.Reader, matches []holder.DocTypeMatch, opts Options) {
	if opts.JSON {
		PrintJSON(BuildMatchJSON(reader, matches))
		return
	}

	headerColor.Println("Disclosure Request")
	headerColor.Println(strings.Repeat("─", 50))

	printSection("Reader")
	if reader == nil {
		warnColor.Println("  ⚠ Reader is not authenticated")
	} else {
		printKV("Certificate", reader.Certificate.CommonName(), 1)
		if reg := reader.Registration; reg != nil {
			printKV("Organization", localized(reg.Organization.DisplayName), 1)
			if purpose := localized(reg.PurposeStatement); purpose != "" {
				printKV("Purpose", purpose, 1)
			}
			printKV("Retains Data", fmt.Sprint(reg.RetentionPolicy.IntentToRetain), 1)
		}
	}

	for _, m := range matches {
		printSection(fmt.Sprintf("Requested: %s (%d attributes)", m.DocType, len(m.Requested)))
		if len(m.Candidates) == 0 {
			errorColor.Println("  ✗ No stored credential holds every requested attribute")
			for _, ids := range m.Missing {
				dimColor.Printf("    missing: %s\n", strings.Join(attributeNames(ids), ", "))
			}
			continue
		}
		selected := m.Candidates[len(m.Candidates)-1]
		successColor.Printf("  ✓ %d matching credential(s), sharing %s\n", len(m.Candidates), selected.SourceID)
		for _, ns := range selected.NameSpaces().Entries() {
			for _, attr := range ns.Value.Entries() {
				labelColor.Printf("    %s: ", attr.Key)
				fmt.Println(formatValue(attr.Value))
			}
		}
		if opts.Verbose {
			for _, ids := range m.Missing {
				dimColor.Printf("    not eligible, missing: %s\n", strings.Join(attributeNames(ids), ", "))
			}
		}
	}
	fmt.Println()
}

// PrintTerminated prints the final state of a holder session.
func PrintTerminated(s *holder.TerminatedSession, opts Options) {
	if opts.JSON {
		docs := make([]map[string]any, 0, len(s.Documents))
		for _, d := range s.Documents {
			docs = append(docs, map[string]any{
				"docType": d.DocType,
				"claims":  claimsJSON(d.IssuerSigned.Attributes()),
			})
		}
		PrintJSON(map[string]any{"session": s.ID, "outcome": s.Outcome.String(), "documents": docs})
		return
	}

	switch s.Outcome {
	case holder.OutcomeSuccess:
		successColor.Printf("✓ Disclosed %d document(s)\n", len(s.Documents))
	case holder.OutcomeCancelled:
		warnColor.Println("⚠ Disclosure cancelled")
	default:
		errorColor.Println("✗ Disclosure failed")
	}
	for _, d := range s.Documents {
		printSection(d.DocType)
		for _, ns := range d.IssuerSigned.Attributes().Entries() {
			dimColor.Printf("  %s\n", ns.Key)
			for _, attr := range ns.Value.Entries() {
				labelColor.Printf("    %s: ", attr.Key)
				fmt.Println(formatValue(attr.Value))
			}
		}
	}
	if opts.Verbose {
		dimColor.Printf("session %s\n", s.ID)
	}
}

// BuildEngagementJSON returns the JSON-serializable map for an engagement.
func BuildEngagementJSON(e *mdoc.Engagement) map[string]any {
	out := map[string]any{
		"version":     e.Version,
		"cipherSuite": e.Security.CipherSuite,
	}
	if url, err := e.SessionURL(); err == nil {
		out["url"] = url
	}
	if pub, err := e.PublicKey(); err == nil {
		out["ephemeralKey"] = fmt.Sprintf("%x", pub.Bytes())
	}
	return out
}

// PrintEngagement prints a decoded reader or device engagement.
func PrintEngagement(e *mdoc.Engagement, opts Options) {
	if opts.JSON {
		PrintJSON(BuildEngagementJSON(e))
		return
	}

	headerColor.Println("Engagement")
	headerColor.Println(strings.Repeat("─", 50))

	printSection("Info")
	printKV("Version", e.Version, 1)
	printKV("Cipher Suite", fmt.Sprint(e.Security.CipherSuite), 1)
	if url, err := e.SessionURL(); err != nil {
		warnColor.Printf("  ⚠ %v\n", err)
	} else {
		printKV("URL", url, 1)
	}
	if pub, err := e.PublicKey(); err != nil {
		warnColor.Printf("  ⚠ %v\n", err)
	} else if opts.Verbose {
		printKV("Ephemeral Key", fmt.Sprintf("%x", pub.Bytes()), 1)
	}
	fmt.Println()
}

// BuildReaderResultJSON returns the JSON-serializable map for a reader session result.
func BuildReaderResultJSON(r verifier.Result) map[string]any {
	out := map[string]any{"status": r.Status.String()}
	if r.Err != nil {
		out["error"] = r.Err.Error()
	}
	docs := make([]map[string]any, 0, len(r.Documents))
	for _, d := range r.Documents {
		docs = append(docs, map[string]any{
			"docType": d.DocType,
			"issuer":  d.Issuer.CommonName(),
			"claims":  claimsJSON(d.Attributes),
		})
	}
	out["documents"] = docs
	return out
}

// PrintReaderResult prints what a reader session received.
func PrintReaderResult(r verifier.Result, opts Options) {
	if opts.JSON {
		PrintJSON(BuildReaderResultJSON(r))
		return
	}

	switch r.Status {
	case verifier.StatusDisclosed:
		successColor.Printf("✓ Received %d verified document(s)\n", len(r.Documents))
	case verifier.StatusTerminated:
		warnColor.Println("⚠ Holder ended the session without disclosing")
	case verifier.StatusFailed:
		errorColor.Printf("✗ Session failed: %v\n", r.Err)
	default:
		dimColor.Printf("session %s\n", r.Status)
	}
	for _, d := range r.Documents {
		printSection(d.DocType)
		printKV("Issuer", d.Issuer.CommonName(), 1)
		printNameSpaces(d.Attributes)
	}
	fmt.Println()
}

func printNameSpaces(nameSpaces mdoc.OrderedMap[mdoc.OrderedMap[any]]) {
	for _, ns := range nameSpaces.Entries() {
		printSection(fmt.Sprintf("Namespace: %s (%d attributes)", ns.Key, ns.Value.Len()))
		for _, attr := range ns.Value.Entries() {
			labelColor.Printf("  %s: ", attr.Key)
			fmt.Println(formatValue(attr.Value))
		}
	}
}

func printSection(title string) {
	fmt.Println()
	headerColor.Printf("┌ %s\n", title)
}

func printKV(key, value string, indent int) {
	prefix := strings.Repeat("  ", indent)
	labelColor.Printf("%s%s: ", prefix, key)
	valueColor.Println(value)
}

// localized prefers English and otherwise the first language in sort order.
func localized(s certificate.LocalizedStrings) string {
	if v, ok := s["en"]; ok {
		return v
	}
	langs := make([]string, 0, len(s))
	for k := range s {
		langs = append(langs, k)
	}
	if len(langs) == 0 {
		return ""
	}
	sort.Strings(langs)
	return s[langs[0]]
}

func identifierStrings(ids []mdoc.AttributeIdentifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func attributeNames(ids []mdoc.AttributeIdentifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Attribute
	}
	return out
}

func claimsJSON(nameSpaces mdoc.OrderedMap[mdoc.OrderedMap[any]]) map[string]any {
	claims := make(map[string]any, nameSpaces.Len())
	for _, ns := range nameSpaces.Entries() {
		nsClaims := make(map[string]any, ns.Value.Len())
		for _, attr := range ns.Value.Entries() {
			nsClaims[attr.Key] = normalize(attr.Value)
		}
		claims[ns.Key] = nsClaims
	}
	return claims
}

// normalize turns decoded CBOR into values encoding/json can marshal. Tagged dates become
// their text form and byte strings their length.
func normalize(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[fmt.Sprint(k)] = normalize(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = normalize(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalize(x)
		}
		return out
	case cbor.Tag:
		return normalize(val.Content)
	case []byte:
		return fmt.Sprintf("(%d bytes)", len(val))
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

func formatValue(v any) string {
	switch val := normalize(v).(type) {
	case string:
		return val
	case nil:
		return "null"
	case []any:
		if isSimpleArray(val) {
			b, _ := json.Marshal(val)
			return string(b)
		}
		b, _ := json.MarshalIndent(val, "    ", "  ")
		return string(b)
	case map[string]any:
		b, _ := json.MarshalIndent(val, "    ", "  ")
		return string(b)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func isSimpleArray(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorColor.Sprint("Error:"), msg)
}
