// Package server exposes the service over an echo HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"webrag/internal/domain"
	"webrag/internal/logging"
	"webrag/internal/metrics"
	"webrag/internal/service"
)

// Backend is the part of service.Service the API calls.
type Backend interface {
	Ingest(ctx context.Context, docs []domain.Document) (domain.IngestReport, error)
	Retrieve(ctx context.Context, query string, k int) (domain.Retrieval, error)
	Search(ctx context.Context, query string, k int) ([]domain.QueryResult, error)
	Answer(ctx context.Context, query string, k int) (domain.Answer, error)
	Scrape(ctx context.Context, urls []string) ([]service.ScrapeResult, error)
	ScrapeAndStore(ctx context.Context, urls []string) (domain.IngestReport, error)
	Info(ctx context.Context) (service.Info, error)
}

type Options struct {
	AllowOrigins []string
	Metrics      *metrics.Metrics
	Logger       logrus.FieldLogger
}

type Server struct {
	backend Backend
	echo    *echo.Echo
	log     logrus.FieldLogger
}

func New(backend Backend, opts Options) *Server {
	s := &Server{backend: backend, echo: echo.New(), log: logging.Component(opts.Logger, "http")}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Debug("request")
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}
	e.POST("/scrape", s.scrape)
	e.POST("/ingest", s.ingest)
	e.POST("/scrape-and-store", s.scrapeAndStore)
	e.POST("/search-vector", s.searchVector)
	e.POST("/retrieve", s.retrieve)
	e.POST("/chatbot", s.chatbot)
	e.GET("/database-info", s.databaseInfo)
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errc <- s.echo.Start(addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrEmbeddingFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := StatusOf(err)
	body := errorResponse{Error: err.Error(), Field: domain.FieldOf(err)}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(he.Code)
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("request error")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		s.log.WithError(err).Warn("write error response")
	}
}
