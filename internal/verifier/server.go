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

package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ContentTypeCBOR is the media type of SessionData bodies.
const ContentTypeCBOR = "application/cbor"

// DefaultSessionTTL is how long a session stays registered after it was created.
const DefaultSessionTTL = 10 * time.Minute

// Server exposes reader sessions over HTTP. Each session is reachable at
// /disclosure/:id; the holder posts its engagement and its response there.
type Server struct {
	baseURL  string
	template Config
	log      zerolog.Logger
	app      *fiber.App

	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*serverSession
}

type serverSession struct {
	*Session
	created time.Time
}

func (e serverSession) expired(ttl time.Duration) bool {
	return time.Since(e.created) > ttl
}

// NewServer creates a server whose sessions are configured from template. baseURL is the
// externally reachable address of the server.
func NewServer(baseURL string, template Config) *Server {
	s := &Server{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		template: template,
		log:      template.Logger,
		ttl:      DefaultSessionTTL,
		sessions: make(map[string]*serverSession),
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return ErrorHandler(c, err, &s.log)
		},
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Get("/", HealthCheck)
	app.Post("/sessions", s.createSession)
	app.Get("/sessions/:id", s.sessionResult)
	app.Post("/disclosure/:id", s.disclose)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// NewSession starts a reader session and registers it with the server.
func (s *Server) NewSession() (string, *Session, error) {
	id := uuid.NewString()
	cfg := s.template
	cfg.SessionURL = s.baseURL + "/disclosure/" + id
	cfg.Logger = s.log.With().Str("reader_session", id).Logger()
	session, err := NewSession(cfg)
	if err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	s.sweepLocked()
	s.sessions[id] = &serverSession{Session: session, created: time.Now()}
	s.mu.Unlock()
	return id, session, nil
}

// SetSessionTTL changes how long sessions stay registered. Expired sessions are
// dropped when the next session is created.
func (s *Server) SetSessionTTL(ttl time.Duration) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *Server) sweepLocked() {
	for id, entry := range s.sessions {
		if entry.expired(s.ttl) {
			delete(s.sessions, id)
		}
	}
}

// Session returns a registered session that has not expired.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok || entry.expired(s.ttl) {
		return nil, false
	}
	return entry.Session, true
}

// SessionCount reports how many sessions are registered.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

type sessionResponse struct {
	ID         string `json:"id"`
	SessionURL string `json:"sessionUrl"`
	Engagement string `json:"engagement"`
}

type resultResponse struct {
	Status    string             `json:"status"`
	Error     string             `json:"error,omitempty"`
	Documents []disclosedSummary `json:"documents,omitempty"`
}

type disclosedSummary struct {
	DocType    string                    `json:"docType"`
	Issuer     string                    `json:"issuer,omitempty"`
	Attributes map[string]map[string]any `json:"attributes"`
}

func (s *Server) createSession(c *fiber.Ctx) error {
	id, session, err := s.NewSession()
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sessionResponse{
		ID:         id,
		SessionURL: session.SessionURL(),
		Engagement: session.EngagementURI(),
	})
}

func (s *Server) sessionResult(c *fiber.Ctx) error {
	session, ok := s.Session(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown session")
	}
	result := session.Result()
	resp := resultResponse{Status: result.Status.String()}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	for _, doc := range result.Documents {
		summary := disclosedSummary{DocType: doc.DocType, Attributes: make(map[string]map[string]any)}
		if doc.Issuer != nil {
			summary.Issuer = doc.Issuer.CommonName()
		}
		for _, ns := range doc.Attributes.Entries() {
			values := make(map[string]any, ns.Value.Len())
			for _, attr := range ns.Value.Entries() {
				values[attr.Key] = fmt.Sprint(attr.Value)
			}
			summary.Attributes[ns.Key] = values
		}
		resp.Documents = append(resp.Documents, summary)
	}
	return c.JSON(resp)
}

func (s *Server) disclose(c *fiber.Ctx) error {
	session, ok := s.Session(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown session")
	}
	body := append([]byte(nil), c.Body()...)
	reply, err := session.HandleMessage(c.UserContext(), body)
	if err != nil {
		if errors.Is(err, ErrSessionDone) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	c.Set(fiber.HeaderContentType, ContentTypeCBOR)
	return c.Send(reply)
}

// HealthCheck reports that the server is up.
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(map[string]any{"data": "Server is up and running"})
}

// ErrorHandler logs handler errors and answers with a JSON body.
func ErrorHandler(c *fiber.Ctx, err error, logger *zerolog.Logger) error {
	code := fiber.StatusInternalServerError
	message := "Internal error."
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	if code != fiber.StatusNotFound {
		logger.Err(err).Int("httpStatusCode", code).
			Str("httpPath", strings.TrimPrefix(c.Path(), "/")).
			Str("httpMethod", c.Method()).
			Msg("caught an error from http request")
	}
	return c.Status(code).JSON(codeResp{Code: code, Message: message})
}

type codeResp struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewMonitoringApp serves the health check and Prometheus metrics on their own port.
func NewMonitoringApp() *fiber.App {
	monApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	monApp.Get("/", HealthCheck)
	monApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	return monApp
}

// Run serves app on addr in group until ctx is cancelled.
func Run(ctx context.Context, app *fiber.App, addr string, group *errgroup.Group) {
	group.Go(func() error {
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})
}
