// Package server exposes notebook chat and cache inspection over HTTP.
//
// Information Hiding:
// - Route layout and JSON envelopes
// - Server-sent event framing of token streams
// - Mapping of classified provider errors to responses
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richinex/folio/completion"
	"github.com/richinex/folio/internal/logging"
	"github.com/richinex/folio/storage"
	"github.com/sirupsen/logrus"
)

// DefaultBodyLimit bounds request bodies, which carry base64 documents.
const DefaultBodyLimit = 64 << 20

// Chatter runs notebook completions.
type Chatter interface {
	Chat(ctx context.Context, ownerID string, req completion.Request) (*completion.Result, error)
}

// ResponseData is the JSON envelope for non-streaming responses.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// Server is the HTTP surface.
type Server struct {
	app     *fiber.App
	chat    Chatter
	records storage.CacheRecordStore
	log     logrus.FieldLogger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	log       logrus.FieldLogger
	bodyLimit int
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *serverOptions) {
		o.log = l
	}
}

// WithBodyLimit sets the maximum request body size in bytes.
func WithBodyLimit(n int) Option {
	return func(o *serverOptions) {
		o.bodyLimit = n
	}
}

// New builds the server and registers its routes.
func New(chat Chatter, records storage.CacheRecordStore, opts ...Option) *Server {
	o := serverOptions{bodyLimit: DefaultBodyLimit}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "folio",
			BodyLimit:             o.bodyLimit,
			DisableStartupMessage: true,
			ServerHeader:          "Hidden",
		}),
		chat:    chat,
		records: records,
		log:     logging.OrDiscard(o.log),
	}

	s.app.Use(requestid.New())
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Post("/notebooks/:id/chat", s.handleChat)
	api.Get("/notebooks/:id/caches", s.handleListCaches)
	api.Get("/cache/:fingerprint", s.handleGetCache)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("http server listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(ResponseData{Status: fiber.StatusOK, Code: "SUCCESS", Message: "ok"})
}

func (s *Server) handleGetCache(c *fiber.Ctx) error {
	record, err := s.records.GetCacheRecord(c.UserContext(), c.Params("fingerprint"))
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err)
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(ResponseData{
			Status:  fiber.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: "no live cache for this document",
		})
	}
	return c.JSON(ResponseData{Status: fiber.StatusOK, Code: "SUCCESS", Message: "cache found", Results: record})
}

func (s *Server) handleListCaches(c *fiber.Ctx) error {
	lister, ok := s.records.(storage.CacheRecordLister)
	if !ok {
		return s.fail(c, fiber.StatusNotImplemented, "NOT_IMPLEMENTED", errors.New("storage backend cannot list cache records"))
	}
	records, err := lister.ListCacheRecords(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err)
	}
	return c.JSON(ResponseData{Status: fiber.StatusOK, Code: "SUCCESS", Message: "cache records", Results: records})
}

func (s *Server) fail(c *fiber.Ctx, status int, code string, err error) error {
	s.log.WithError(err).WithField("path", c.Path()).Warn("request failed")
	return c.Status(status).JSON(ResponseData{Status: status, Code: code, Message: err.Error()})
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.log.WithFields(logrus.Fields{
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"elapsed":    time.Since(start).String(),
		}).Debug("http request")
		return err
	}
}
