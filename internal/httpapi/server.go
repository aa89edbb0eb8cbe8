package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/service"
)

// Service is the part of the CRUD service the HTTP API exposes.
type Service interface {
	Read(ctx context.Context, req service.ReadRequest) (service.Result, error)
	Update(ctx context.Context, req service.UpdateRequest) (service.Result, error)
	Insert(ctx context.Context, req service.InsertRequest) (service.Result, error)
	Delete(ctx context.Context, req service.DeleteRequest) (service.Result, error)
	Search(ctx context.Context, req service.SearchRequest) service.SearchResult
	Predict(column, value string) domain.Prediction
	Info() service.Info
	History(limit int) ([]domain.Operation, error)
	ReloadDataset(ctx context.Context, key string) error
	ReloadAll(ctx context.Context) error
}

// Options configure the server.
type Options struct {
	RateLimit float64 // mutation requests per second per client IP; 0 disables
	Burst     int
	Quiet     bool // no request logging
}

// Server serves the CRUD API over HTTP.
type Server struct {
	svc  Service
	echo *echo.Echo
}

func New(svc Service, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	if !opts.Quiet {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	s := &Server{svc: svc, echo: e}

	e.GET("/", s.handleRoot)
	e.GET("/info", s.handleInfo)
	e.GET("/history", s.handleHistory)
	e.POST("/read", s.handleRead)
	e.POST("/search", s.handleSearch)
	e.POST("/predict", s.handlePredict)

	var limit []echo.MiddlewareFunc
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		limit = append(limit, middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(opts.RateLimit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			},
		)))
	}
	e.POST("/update", s.handleUpdate, limit...)
	e.POST("/insert", s.handleInsert, limit...)
	e.POST("/delete", s.handleDelete, limit...)
	e.POST("/reload", s.handleReload, limit...)

	return s
}

// ServeHTTP lets the server be mounted on any mux or used with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Printf("[HTTP] listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Sheet Locator",
		"status":  "running",
		"endpoints": map[string]string{
			"read":    "POST /read - Read data by column name and value",
			"update":  "POST /update - Update data",
			"insert":  "POST /insert - Insert new data",
			"delete":  "POST /delete - Delete data",
			"search":  "POST /search - Search text across all sheets",
			"predict": "POST /predict - Predict where a column lives",
			"reload":  "POST /reload - Reload datasets from their backing stores",
			"history": "GET /history - Recent operations",
			"info":    "GET /info - System information",
		},
	})
}

func (s *Server) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Info())
}

func (s *Server) handleHistory(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, fmt.Errorf("invalid limit %q", v))
		}
		limit = n
	}
	ops, err := s.svc.History(limit)
	if err != nil {
		return failure(c, "reading history", err)
	}
	return c.JSON(http.StatusOK, ops)
}

func (s *Server) handleRead(c echo.Context) error {
	var req service.ReadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := s.svc.Read(c.Request().Context(), req)
	if err != nil {
		return failure(c, "reading data", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleUpdate(c echo.Context) error {
	var req service.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := s.svc.Update(c.Request().Context(), req)
	if err != nil {
		return failure(c, "updating data", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleInsert(c echo.Context) error {
	var req service.InsertRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := s.svc.Insert(c.Request().Context(), req)
	if err != nil {
		return failure(c, "inserting data", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDelete(c echo.Context) error {
	var req service.DeleteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res, err := s.svc.Delete(c.Request().Context(), req)
	if err != nil {
		return failure(c, "deleting data", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req service.SearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(http.StatusOK, s.svc.Search(c.Request().Context(), req))
}

func (s *Server) handlePredict(c echo.Context) error {
	var req service.ReadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(http.StatusOK, s.svc.Predict(req.ColumnName, req.ColumnValue))
}

type reloadRequest struct {
	DatasetKey string `json:"dataset_key,omitempty"`
}

func (s *Server) handleReload(c echo.Context) error {
	var req reloadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	ctx := c.Request().Context()
	var err error
	if req.DatasetKey == "" {
		err = s.svc.ReloadAll(ctx)
	} else {
		err = s.svc.ReloadDataset(ctx, req.DatasetKey)
	}
	if err != nil {
		return failure(c, "reloading data", err)
	}
	return c.JSON(http.StatusOK, s.svc.Info())
}

// ── Errors ─────────────────────────────────────────────────

type errorBody struct {
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable,omitempty"`
}

func badRequest(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: fmt.Sprint(he.Message)})
	}
	return c.JSON(http.StatusBadRequest, errorBody{Detail: err.Error()})
}

// failure maps service errors: persist timeouts are retryable 503s, unknown
// datasets 404s and everything else a 500.
func failure(c echo.Context, doing string, err error) error {
	body := errorBody{Detail: fmt.Sprintf("Error %s: %v", doing, err)}
	switch {
	case domain.IsRetryable(err):
		body.Retryable = true
		return c.JSON(http.StatusServiceUnavailable, body)
	case errors.Is(err, domain.ErrUnknownDataset):
		return c.JSON(http.StatusNotFound, body)
	default:
		log.Printf("[HTTP] %s: %v", doing, err)
		return c.JSON(http.StatusInternalServerError, body)
	}
}
