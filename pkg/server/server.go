// Package server exposes a worker.Host over HTTP and WebSocket.
//
//	POST /v1/operations  one request per call; JSON, or MessagePack when the
//	                     body's Content-Type is application/msgpack
//	GET  /v1/ws          a socket carrying many requests; text frames are
//	                     JSON, binary frames MessagePack
//	GET  /healthz        liveness and cache statistics
//
// Over the socket the first message is READY. Responses are written as
// they complete, so they may arrive out of request order; clients match
// them by id. Each response uses the frame type of its request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/qutlas/cadmium/pkg/cache"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/logging"
	"github.com/qutlas/cadmium/pkg/worker"
)

// MIMEMsgpack selects the MessagePack encoding on /v1/operations.
const MIMEMsgpack = "application/msgpack"

// DefaultBodyLimit caps request bodies; LOAD_MESH payloads can be large.
const DefaultBodyLimit = "256M"

// Server routes HTTP and WebSocket traffic to a worker.Host.
type Server struct {
	echo   *echo.Echo
	host   *worker.Host
	cache  *cache.Cache
	logger *slog.Logger

	bodyLimit string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithBodyLimit sets the maximum request body, in echo's size syntax
// ("64M", "1G").
func WithBodyLimit(limit string) Option {
	return func(s *Server) { s.bodyLimit = limit }
}

// WithCache reports c's statistics on /healthz.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// New returns a Server dispatching to host.
func New(host *worker.Host, opts ...Option) *Server {
	s := &Server{host: host, logger: logging.Nop(), bodyLimit: DefaultBodyLimit}
	for _, o := range opts {
		o(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				s.logger.Warn("request", append(attrs, "err", v.Error)...)
				return nil
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	}))

	e.POST("/v1/operations", s.handleOperation, middleware.BodyLimit(s.bodyLimit))
	e.GET("/v1/ws", s.handleSocket)
	e.GET("/healthz", s.handleHealth)
	s.echo = e
	return s
}

// ServeHTTP makes the Server usable with net/http and httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight HTTP
// requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// statusFor maps an ERROR response's code to an HTTP status. RESULT and
// READY are 200.
func statusFor(resp worker.Response) int {
	if resp.Type != worker.TypeError {
		return http.StatusOK
	}
	switch resp.Code {
	case kernel.KindProtocol.Code():
		return http.StatusBadRequest
	case kernel.KindInvalidInput.Code(), kernel.KindDegenerate.Code():
		return http.StatusUnprocessableEntity
	case kernel.KindResourceExhausted.Code():
		return http.StatusInsufficientStorage
	case kernel.KindTimeout.Code():
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func isMsgpack(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), MIMEMsgpack)
}

func (s *Server) handleOperation(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	binary := isMsgpack(c.Request().Header.Get(echo.HeaderContentType))

	var resp worker.Response
	req, err := decodeRequest(body, binary)
	if err != nil {
		resp = worker.ErrorResponse(req.ID, err)
	} else {
		resp = s.host.Do(c.Request().Context(), req)
	}
	return writeResponse(c, resp, binary)
}

func decodeRequest(body []byte, binary bool) (worker.Request, error) {
	if binary {
		req, rest, err := worker.DecodeRequestMsgpack(body)
		if err == nil && len(rest) > 0 {
			err = kernel.Errorf(kernel.KindProtocol, "msgpack", "%d trailing bytes", len(rest))
		}
		return req, err
	}
	var req worker.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return req, kernel.Errorf(kernel.KindProtocol, "json", "decode request: %w", err)
	}
	return req, nil
}

func writeResponse(c echo.Context, resp worker.Response, binary bool) error {
	status := statusFor(resp)
	if !binary {
		return c.JSON(status, resp)
	}
	b, err := worker.EncodeResponseMsgpack(nil, resp)
	if err != nil {
		return err
	}
	return c.Blob(status, MIMEMsgpack, b)
}

type health struct {
	Status   string       `json:"status"`
	Time     time.Time    `json:"time"`
	Inflight int          `json:"inflight"`
	Cache    *cache.Stats `json:"cache,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	h := health{Status: "ok", Time: time.Now().UTC(), Inflight: s.host.Running()}
	if s.cache != nil {
		st := s.cache.Stats()
		h.Cache = &st
	}
	return c.JSON(http.StatusOK, h)
}
