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
	"crypto/ecdh"
	"fmt"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/metrics"
)

// AwaitingRequestSession holds the reader's encrypted request until it is matched.
type AwaitingRequestSession struct {
	consumable
	core             *sessionCore
	sessionURL       string
	transcript       *mdoc.SessionTranscript
	deviceKey        *ecdh.PrivateKey
	readerKey        *ecdh.PublicKey
	deviceSessionKey *mdoc.SessionKey
	response         []byte
}

// Transcript returns the session transcript both parties derived.
func (s *AwaitingRequestSession) Transcript() *mdoc.SessionTranscript {
	return s.transcript
}

// Reader is the authenticated reader of a session.
type Reader struct {
	Certificate *certificate.Certificate
	// Registration is nil when the certificate carries none.
	Registration *certificate.ReaderRegistration
}

// DocTypeMatch is the matching result for one requested doc type.
type DocTypeMatch struct {
	DocType    string
	Requested  []mdoc.AttributeIdentifier
	Candidates []ProposedDocument
	// Missing lists, per stored mdoc that is not a candidate, the requested attributes it lacks.
	Missing [][]mdoc.AttributeIdentifier
}

// MatchRequest decrypts the DeviceRequest, authenticates the reader and matches every
// requested doc type against storage.
func (s *AwaitingRequestSession) MatchRequest(ctx context.Context) (*MatchedSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	core := s.core

	sessionData, err := mdoc.ParseSessionData(s.response)
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusDecodingError)
		return nil, core.fail(err)
	}
	if sessionData.IsTermination() {
		return nil, core.fail(ErrReaderTerminated)
	}

	readerSessionKey, err := mdoc.DeriveSessionKey(s.deviceKey, s.readerKey, s.transcript, mdoc.RoleReader)
	if err != nil {
		return nil, core.fail(err)
	}
	plaintext, err := readerSessionKey.Decrypt(sessionData)
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusSessionEncryptionError)
		return nil, core.fail(err)
	}
	request, err := mdoc.ParseDeviceRequest(plaintext)
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusDecodingError)
		return nil, core.fail(err)
	}

	matched, err := s.match(ctx, request)
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusSessionTermination)
		return nil, core.fail(err)
	}
	core.log.Info().
		Str("reader", matched.reader.Certificate.CommonName()).
		Int("doc_types", len(matched.matches)).
		Bool("satisfiable", matched.Satisfiable()).
		Msg("request matched")
	return matched, nil
}

func (s *AwaitingRequestSession) match(ctx context.Context, request *mdoc.DeviceRequest) (*MatchedSession, error) {
	core := s.core
	if len(request.DocRequests) == 0 {
		return nil, ErrNoDocRequests
	}

	reader, err := s.authenticateReader(request.DocRequests)
	if err != nil {
		return nil, err
	}

	docTypes, requested := groupRequests(request.DocRequests)
	if reader.Registration != nil {
		var attrs []certificate.RequestedAttribute
		for _, docType := range docTypes {
			for _, id := range requested[docType] {
				attrs = append(attrs, certificate.RequestedAttribute{
					DocType:   id.DocType,
					NameSpace: id.NameSpace,
					Attribute: id.Attribute,
				})
			}
		}
		if err := reader.Registration.VerifyRequestedAttributes(attrs); err != nil {
			return nil, err
		}
	}

	stored, err := core.cfg.Storage.MdocsByDocTypes(ctx, docTypes)
	if err != nil {
		return nil, fmt.Errorf("fetching mdocs: %w", err)
	}
	if len(stored) != len(docTypes) {
		return nil, fmt.Errorf("storage returned %d mdoc lists for %d doc types", len(stored), len(docTypes))
	}

	matches := make([]DocTypeMatch, 0, len(docTypes))
	for i, docType := range docTypes {
		challenge, err := mdoc.DeviceAuthenticationBytes(s.transcript, docType)
		if err != nil {
			return nil, err
		}
		match := DocTypeMatch{DocType: docType, Requested: requested[docType]}
		match.Candidates, match.Missing = MatchCandidates(stored[i], match.Requested, challenge)
		if len(stored[i]) == 0 {
			match.Missing = [][]mdoc.AttributeIdentifier{match.Requested}
		}
		matches = append(matches, match)
	}

	return &MatchedSession{
		core:             core,
		sessionURL:       s.sessionURL,
		deviceSessionKey: s.deviceSessionKey,
		reader:           reader,
		matches:          matches,
	}, nil
}

// authenticateReader checks every readerAuth signature, requires a single reader
// certificate and checks it against the trust anchors.
func (s *AwaitingRequestSession) authenticateReader(docRequests []mdoc.DocRequest) (*Reader, error) {
	var (
		leaf          *certificate.Certificate
		intermediates [][]byte
	)
	for i := range docRequests {
		dr := &docRequests[i]
		if dr.ReaderAuth == nil {
			return nil, ErrReaderAuthMissing
		}
		cert, chain, err := dr.VerifyReaderAuth(s.transcript)
		if err != nil {
			return nil, fmt.Errorf("verifying reader authentication: %w", err)
		}
		if leaf == nil {
			leaf, intermediates = cert, chain
		} else if !leaf.Equal(cert) {
			return nil, ErrReaderAuthsInconsistent
		}
	}

	docType := docRequests[0].ItemsRequest.Value.DocType
	if err := leaf.Verify(certificate.UsageReaderAuth, intermediates, s.core.cfg.Clock, s.core.cfg.TrustAnchors); err != nil {
		return nil, &UntrustedIssuerError{DocType: docType, Err: err}
	}
	typ, err := certificate.TypeOf(leaf)
	if err != nil {
		return nil, err
	}
	return &Reader{Certificate: leaf, Registration: typ.ReaderRegistration}, nil
}

// groupRequests unions the ItemsRequests per doc type, in order of first appearance.
func groupRequests(docRequests []mdoc.DocRequest) ([]string, map[string][]mdoc.AttributeIdentifier) {
	var docTypes []string
	requested := make(map[string][]mdoc.AttributeIdentifier)
	seen := make(map[mdoc.AttributeIdentifier]struct{})
	for _, dr := range docRequests {
		items := dr.ItemsRequest.Value
		if _, ok := requested[items.DocType]; !ok {
			docTypes = append(docTypes, items.DocType)
			requested[items.DocType] = nil
		}
		for _, id := range items.AttributeIdentifiers() {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			requested[items.DocType] = append(requested[items.DocType], id)
		}
	}
	return docTypes, requested
}

// Cancel tells the reader the session ends without a response.
func (s *AwaitingRequestSession) Cancel(ctx context.Context) (*TerminatedSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	return cancel(ctx, s.core, s.sessionURL)
}

// MatchedSession holds the matching result until the user approves or cancels.
type MatchedSession struct {
	consumable
	core             *sessionCore
	sessionURL       string
	deviceSessionKey *mdoc.SessionKey
	reader           *Reader
	matches          []DocTypeMatch
}

// Reader returns the authenticated reader.
func (s *MatchedSession) Reader() *Reader {
	return s.reader
}

// Matches returns the per doc type matching results in request order.
func (s *MatchedSession) Matches() []DocTypeMatch {
	return s.matches
}

// Satisfiable reports whether every requested doc type has a candidate.
func (s *MatchedSession) Satisfiable() bool {
	for _, m := range s.matches {
		if len(m.Candidates) == 0 {
			return false
		}
	}
	return true
}

// Selected returns the document Disclose would sign per doc type: the last candidate in
// storage order.
func (s *MatchedSession) Selected() ([]ProposedDocument, error) {
	selected := make([]ProposedDocument, 0, len(s.matches))
	for _, m := range s.matches {
		if len(m.Candidates) == 0 {
			return nil, &UnsatisfiableRequestError{DocType: m.DocType, Missing: m.Missing}
		}
		selected = append(selected, m.Candidates[len(m.Candidates)-1])
	}
	return selected, nil
}

// Disclose signs the selected documents and sends the encrypted DeviceResponse.
func (s *MatchedSession) Disclose(ctx context.Context) (*TerminatedSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	core := s.core

	selected, err := s.Selected()
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusSessionTermination)
		return nil, core.fail(err)
	}

	documents, err := SignDocuments(ctx, core.cfg.Keys, selected)
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusSessionTermination)
		return nil, core.fail(err)
	}
	metrics.AddHolderSignatures(len(documents))

	sessionData, err := mdoc.SerializeAndEncrypt(mdoc.NewDeviceResponse(documents), s.deviceSessionKey)
	if err != nil {
		core.notify(ctx, s.sessionURL, mdoc.StatusSessionEncryptionError)
		return nil, core.fail(err)
	}
	body, err := mdoc.Marshal(sessionData)
	if err != nil {
		return nil, core.fail(err)
	}
	resp, err := core.post(ctx, s.sessionURL, body)
	if err != nil {
		return nil, core.fail(err)
	}
	if reply, err := mdoc.ParseSessionData(resp); err != nil || !reply.IsTermination() {
		core.log.Debug().Err(err).Msg("reader did not confirm termination")
	}

	return core.terminate(OutcomeSuccess, documents), nil
}

// Cancel tells the reader the session ends without a response.
func (s *MatchedSession) Cancel(ctx context.Context) (*TerminatedSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	return cancel(ctx, s.core, s.sessionURL)
}

func cancel(ctx context.Context, core *sessionCore, url string) (*TerminatedSession, error) {
	body, err := mdoc.Marshal(mdoc.NewTermination())
	if err != nil {
		return nil, core.fail(err)
	}
	if _, err := core.post(ctx, url, body); err != nil {
		return nil, core.fail(err)
	}
	return core.terminate(OutcomeCancelled, nil), nil
}

// TerminatedSession is the final state of a session.
type TerminatedSession struct {
	ID      string
	Outcome Outcome
	// Documents holds what was disclosed on success.
	Documents []mdoc.Document
}
