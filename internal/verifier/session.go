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

// Package verifier implements the reader side of an mdoc disclosure session: it publishes a
// reader engagement, sends a signed DeviceRequest and verifies the DeviceResponse.
package verifier

import (
	"context"
	"crypto"
	"crypto/ecdh"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/metrics"
)

var (
	ErrSessionDone        = errors.New("reader session already finished")
	ErrUnrequestedElement = errors.New("response discloses an attribute that was not requested")
	ErrMissingDocument    = errors.New("response is missing a requested document")
)

// Status is the state of a reader session.
type Status int

const (
	StatusAwaitingEngagement Status = iota
	StatusAwaitingResponse
	StatusDisclosed
	StatusTerminated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingEngagement:
		return "awaiting_engagement"
	case StatusAwaitingResponse:
		return "awaiting_response"
	case StatusDisclosed:
		return "disclosed"
	case StatusTerminated:
		return "terminated"
	default:
		return "failed"
	}
}

// DocRequestBuilder creates the DocRequest for the i-th ItemsRequest.
type DocRequestBuilder func(i int, items mdoc.ItemsRequest, transcript *mdoc.SessionTranscript) (mdoc.DocRequest, error)

// Config configures a reader session.
type Config struct {
	SessionURL  string
	SessionType mdoc.SessionType
	Handover    mdoc.Handover
	Items       []mdoc.ItemsRequest
	// ReaderKey and ReaderChain sign every DocRequest unless BuildDocRequest is set.
	ReaderKey       crypto.Signer
	ReaderChain     [][]byte
	BuildDocRequest DocRequestBuilder
	// IssuerTrustAnchors verify the issuerAuth of disclosed documents.
	IssuerTrustAnchors []*certificate.TrustAnchor
	Clock              certificate.Clock
	Logger             zerolog.Logger
}

// DisclosedDocument is a verified document from the DeviceResponse.
type DisclosedDocument struct {
	DocType    string
	Issuer     *certificate.Certificate
	Attributes mdoc.OrderedMap[mdoc.OrderedMap[any]]
}

// Result is the outcome of a reader session.
type Result struct {
	Status    Status
	Documents []DisclosedDocument
	Err       error
}

// Session is one reader session. It is safe for concurrent use.
type Session struct {
	cfg          Config
	engagement   *mdoc.Engagement
	ephemeralKey *ecdh.PrivateKey

	mu         sync.Mutex
	status     Status
	transcript *mdoc.SessionTranscript
	deviceKey  *mdoc.SessionKey
	documents  []DisclosedDocument
	err        error
	done       chan struct{}
}

// NewSession creates the reader engagement for cfg.
func NewSession(cfg Config) (*Session, error) {
	if len(cfg.Items) == 0 {
		return nil, errors.New("at least one items request is required")
	}
	if cfg.BuildDocRequest == nil && cfg.ReaderKey == nil {
		return nil, errors.New("reader key is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = certificate.SystemClock
	}
	engagement, key, err := mdoc.NewReaderEngagement(cfg.SessionURL)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, engagement: engagement, ephemeralKey: key, done: make(chan struct{})}, nil
}

// Engagement returns the encoded reader engagement.
func (s *Session) Engagement() []byte {
	return s.engagement.Bytes()
}

// EngagementURI returns the engagement as an "mdoc:" URI for the QR code.
func (s *Session) EngagementURI() string {
	return s.engagement.URI()
}

// SessionURL returns the URL the holder posts to.
func (s *Session) SessionURL() string {
	return s.cfg.SessionURL
}

// Result returns the current state.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{Status: s.status, Documents: s.documents, Err: s.err}
}

// Done is closed once the session reaches Disclosed, Terminated or Failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandleMessage processes one message from the holder and returns the answer.
func (s *Session) HandleMessage(ctx context.Context, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusAwaitingEngagement:
		resp, err := s.handleEngagement(body)
		if err != nil {
			return nil, s.failLocked(err)
		}
		s.status = StatusAwaitingResponse
		return resp, nil
	case StatusAwaitingResponse:
		return s.handleResponse(ctx, body)
	default:
		return nil, ErrSessionDone
	}
}

func (s *Session) failLocked(err error) error {
	s.err = err
	s.cfg.Logger.Warn().Err(err).Msg("reader session failed")
	s.finishLocked(StatusFailed)
	return err
}

func (s *Session) finishLocked(status Status) {
	s.status = status
	metrics.IncVerifierSession(status.String())
	close(s.done)
}

func (s *Session) handleEngagement(body []byte) ([]byte, error) {
	device, err := mdoc.ParseEngagement(body)
	if err != nil {
		return nil, err
	}
	devicePub, err := device.PublicKey()
	if err != nil {
		return nil, err
	}
	transcript, err := mdoc.NewSessionTranscript(s.cfg.SessionType, s.engagement, device, s.cfg.Handover)
	if err != nil {
		return nil, err
	}
	readerKey, err := mdoc.DeriveSessionKey(s.ephemeralKey, devicePub, transcript, mdoc.RoleReader)
	if err != nil {
		return nil, err
	}
	deviceKey, err := mdoc.DeriveSessionKey(s.ephemeralKey, devicePub, transcript, mdoc.RoleDevice)
	if err != nil {
		return nil, err
	}

	request := mdoc.DeviceRequest{Version: mdoc.DeviceRequestVersion}
	for i, items := range s.cfg.Items {
		dr, err := s.buildDocRequest(i, items, transcript)
		if err != nil {
			return nil, fmt.Errorf("building doc request %d: %w", i, err)
		}
		request.DocRequests = append(request.DocRequests, dr)
	}

	sessionData, err := mdoc.SerializeAndEncrypt(request, readerKey)
	if err != nil {
		return nil, err
	}
	s.transcript = transcript
	s.deviceKey = deviceKey
	s.cfg.Logger.Debug().Int("doc_requests", len(request.DocRequests)).Msg("sending device request")
	return mdoc.Marshal(sessionData)
}

func (s *Session) buildDocRequest(i int, items mdoc.ItemsRequest, transcript *mdoc.SessionTranscript) (mdoc.DocRequest, error) {
	if s.cfg.BuildDocRequest != nil {
		return s.cfg.BuildDocRequest(i, items, transcript)
	}
	return mdoc.NewDocRequest(items, transcript, s.cfg.ReaderKey, s.cfg.ReaderChain)
}

func (s *Session) handleResponse(ctx context.Context, body []byte) ([]byte, error) {
	sessionData, err := mdoc.ParseSessionData(body)
	if err != nil {
		return nil, s.failLocked(err)
	}
	if sessionData.Status != nil && len(sessionData.Data) == 0 {
		if sessionData.IsTermination() {
			s.cfg.Logger.Info().Msg("holder terminated the session")
			s.finishLocked(StatusTerminated)
			return mdoc.Marshal(mdoc.NewTermination())
		}
		return nil, s.failLocked(fmt.Errorf("holder reported status %d", *sessionData.Status))
	}

	var response mdoc.DeviceResponse
	if err := mdoc.DecryptAndDeserialize(sessionData, s.deviceKey, &response); err != nil {
		return nil, s.failLocked(err)
	}
	documents, err := s.verifyResponse(ctx, &response)
	if err != nil {
		return nil, s.failLocked(err)
	}

	s.documents = documents
	s.cfg.Logger.Info().Int("documents", len(documents)).Msg("disclosure verified")
	s.finishLocked(StatusDisclosed)
	return mdoc.Marshal(mdoc.NewTermination())
}

func (s *Session) verifyResponse(ctx context.Context, response *mdoc.DeviceResponse) ([]DisclosedDocument, error) {
	if response.Status != mdoc.DeviceResponseStatusOK {
		return nil, fmt.Errorf("device response status %d", response.Status)
	}

	requested := make(map[mdoc.AttributeIdentifier]struct{})
	docTypes := make(map[string]bool)
	for _, items := range s.cfg.Items {
		docTypes[items.DocType] = false
		for _, id := range items.AttributeIdentifiers() {
			requested[id] = struct{}{}
		}
	}

	documents := make([]DisclosedDocument, 0, len(response.Documents))
	for i := range response.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := &response.Documents[i]
		result, err := doc.IssuerSigned.Verify(doc.DocType, s.cfg.Clock, s.cfg.IssuerTrustAnchors)
		if err != nil {
			return nil, fmt.Errorf("verifying %s: %w", doc.DocType, err)
		}
		if err := doc.VerifyDeviceSignature(s.transcript); err != nil {
			return nil, fmt.Errorf("verifying device signature of %s: %w", doc.DocType, err)
		}
		for _, ns := range doc.IssuerSigned.NameSpaces.Entries() {
			for _, item := range ns.Value {
				id := mdoc.AttributeIdentifier{DocType: doc.DocType, NameSpace: ns.Key, Attribute: item.Value.ElementIdentifier}
				if _, ok := requested[id]; !ok {
					return nil, fmt.Errorf("%w: %s", ErrUnrequestedElement, id)
				}
			}
		}
		docTypes[doc.DocType] = true
		documents = append(documents, DisclosedDocument{
			DocType:    doc.DocType,
			Issuer:     result.Issuer,
			Attributes: doc.IssuerSigned.Attributes(),
		})
	}
	for docType, seen := range docTypes {
		if !seen {
			return nil, fmt.Errorf("%w: %s", ErrMissingDocument, docType)
		}
	}
	return documents, nil
}
