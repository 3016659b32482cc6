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
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/metrics"
)

var ErrReaderTerminated = errors.New("reader terminated the session")

// Outcome is how a terminated session ended. A failed session never terminates: its
// transition returns the error instead.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
)

// failedLabel is the outcome label of sessions that ended with an error.
const failedLabel = "error"

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config holds the collaborators and settings of one disclosure session.
type Config struct {
	SessionType mdoc.SessionType
	Handover    mdoc.Handover
	// OriginURL is advertised in the device engagement.
	OriginURL    string
	TrustAnchors []*certificate.TrustAnchor
	// Clock defaults to certificate.SystemClock.
	Clock     certificate.Clock
	Storage   MdocDataSource
	Keys      KeyFactory
	Transport Transport
	Logger    zerolog.Logger
}

type sessionCore struct {
	cfg Config
	id  string
	log zerolog.Logger
}

func (c *sessionCore) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	resp, err := c.cfg.Transport.Post(ctx, url, body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	return resp, nil
}

// notify sends a status-only SessionData. Failures are logged and otherwise ignored.
func (c *sessionCore) notify(ctx context.Context, url string, status uint64) {
	body, err := mdoc.Marshal(mdoc.NewSessionStatus(status))
	if err == nil {
		_, err = c.cfg.Transport.Post(ctx, url, body)
	}
	if err != nil {
		c.log.Debug().Err(err).Uint64("status", status).Msg("notifying reader failed")
	}
}

func (c *sessionCore) fail(err error) error {
	c.log.Warn().Err(err).Stringer("category", Category(err)).Msg("session failed")
	metrics.IncHolderSession(failedLabel)
	return err
}

func (c *sessionCore) terminate(outcome Outcome, docs []mdoc.Document) *TerminatedSession {
	c.log.Info().Stringer("outcome", outcome).Msg("session terminated")
	metrics.IncHolderSession(outcome.String())
	return &TerminatedSession{ID: c.id, Outcome: outcome, Documents: docs}
}

// consumable makes a state usable for exactly one transition.
type consumable struct {
	used atomic.Bool
}

func (c *consumable) consume() error {
	if !c.used.CompareAndSwap(false, true) {
		return ErrSessionConsumed
	}
	return nil
}

// CreatedSession is a session that has not yet seen the reader engagement.
type CreatedSession struct {
	consumable
	core *sessionCore
}

// NewSession creates a session in the Created state.
func NewSession(cfg Config) *CreatedSession {
	if cfg.Clock == nil {
		cfg.Clock = certificate.SystemClock
	}
	id := uuid.NewString()
	return &CreatedSession{core: &sessionCore{
		cfg: cfg,
		id:  id,
		log: cfg.Logger.With().Str("session_id", id).Logger(),
	}}
}

// Start creates a session and engages with the reader.
func Start(ctx context.Context, cfg Config, readerEngagement []byte) (*AwaitingRequestSession, error) {
	return NewSession(cfg).Engage(ctx, readerEngagement)
}

// ID returns the identifier used in log lines.
func (s *CreatedSession) ID() string {
	return s.core.id
}

// Engage decodes the reader engagement, answers it with a fresh device engagement and
// receives the reader's encrypted request.
func (s *CreatedSession) Engage(ctx context.Context, readerEngagement []byte) (*AwaitingRequestSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	core := s.core

	reader, err := mdoc.ParseEngagement(readerEngagement)
	if err != nil {
		return nil, core.fail(err)
	}
	sessionURL, err := reader.SessionURL()
	if err != nil {
		return nil, core.fail(err)
	}
	readerKey, err := reader.PublicKey()
	if err != nil {
		return nil, core.fail(err)
	}

	device, deviceKey, err := mdoc.NewDeviceEngagement(core.cfg.OriginURL)
	if err != nil {
		return nil, core.fail(err)
	}
	transcript, err := mdoc.NewSessionTranscript(core.cfg.SessionType, reader, device, core.cfg.Handover)
	if err != nil {
		return nil, core.fail(err)
	}
	deviceSessionKey, err := mdoc.DeriveSessionKey(deviceKey, readerKey, transcript, mdoc.RoleDevice)
	if err != nil {
		return nil, core.fail(err)
	}

	core.log.Debug().Str("url", sessionURL).Stringer("session_type", core.cfg.SessionType).Msg("sending device engagement")
	resp, err := core.post(ctx, sessionURL, device.Bytes())
	if err != nil {
		return nil, core.fail(err)
	}

	return &AwaitingRequestSession{
		core:             core,
		sessionURL:       sessionURL,
		transcript:       transcript,
		deviceKey:        deviceKey,
		readerKey:        readerKey,
		deviceSessionKey: deviceSessionKey,
		response:         resp,
	}, nil
}
