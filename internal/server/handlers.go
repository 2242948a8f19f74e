package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"webrag/internal/domain"
	"webrag/internal/service"
)

type urlsRequest struct {
	URLs []string `json:"urls"`
}

type documentPayload struct {
	Origin     string    `json:"origin"`
	Text       string    `json:"text"`
	IngestedAt time.Time `json:"ingested_at"`
}

type ingestRequest struct {
	Documents []documentPayload `json:"documents"`
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type scrapeResponse struct {
	Results []service.ScrapeResult `json:"results"`
}

type searchResponse struct {
	Query      string               `json:"query"`
	Results    []domain.QueryResult `json:"results"`
	TotalFound int                  `json:"total_found"`
}

type chatbotResponse struct {
	domain.Answer
	NumSources int `json:"num_sources"`
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}

func (s *Server) scrape(c echo.Context) error {
	var req urlsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	results, err := s.backend.Scrape(c.Request().Context(), req.URLs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scrapeResponse{Results: results})
}

func (s *Server) ingest(c echo.Context) error {
	var req ingestRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	docs := make([]domain.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = domain.Document{Origin: d.Origin, Text: d.Text, IngestedAt: d.IngestedAt}
	}
	report, err := s.backend.Ingest(c.Request().Context(), docs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) scrapeAndStore(c echo.Context) error {
	var req urlsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	report, err := s.backend.ScrapeAndStore(c.Request().Context(), req.URLs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) searchVector(c echo.Context) error {
	var req queryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	results, err := s.backend.Search(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, searchResponse{Query: req.Query, Results: results, TotalFound: len(results)})
}

func (s *Server) retrieve(c echo.Context) error {
	var req queryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := s.backend.Retrieve(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) chatbot(c echo.Context) error {
	var req queryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := s.backend.Answer(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chatbotResponse{Answer: a, NumSources: len(a.Citations)})
}

func (s *Server) databaseInfo(c echo.Context) error {
	info, err := s.backend.Info(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}
