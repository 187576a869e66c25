// Package server is the HTTP surface over the generation service.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loganrf/OpenGridGen/internal/generation"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/metrics"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/parts"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Submitter runs generation requests.
type Submitter interface {
	Submit(ctx context.Context, req generation.Request) outcome.Outcome
}

// SettingsStore reads and replaces the unit settings.
type SettingsStore interface {
	Current() scaling.UnitSettings
	Update(u scaling.UnitSettings) error
}

// maxParamsBytes bounds a request's parameter body.
const maxParamsBytes = 64 << 10

// Server holds the HTTP handlers.
type Server struct {
	svc       Submitter
	settings  SettingsStore
	exportDir string
	engine    *gin.Engine
}

// New builds the router. Export files are created in exportDir, or the
// system temp directory when it is empty.
func New(svc Submitter, settings SettingsStore, exportDir string) *Server {
	if exportDir == "" {
		exportDir = os.TempDir()
	}
	s := &Server{svc: svc, settings: settings, exportDir: exportDir}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	SetupRoutes(router, s)
	s.engine = router
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetupRoutes registers every route on router.
func SetupRoutes(router *gin.Engine, s *Server) {
	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/parts", s.ListParts)
		v1.POST("/parts/:kind/info", s.PartInfo)
		v1.POST("/parts/:kind/export", s.ExportPart)
		v1.GET("/settings", s.GetSettings)
		v1.POST("/settings", s.UpdateSettings)
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logging.API("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// requestLogger tags each request with an id and logs its result.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		start := time.Now()
		c.Next()
		logging.WithRequestID(logging.CategoryAPI, id).Info("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListParts lists every part kind with its default parameters.
func (s *Server) ListParts(c *gin.Context) {
	out := make(map[string]parts.Spec, len(parts.Kinds()))
	for _, k := range parts.Kinds() {
		spec, err := parts.Default(k)
		if err != nil {
			continue
		}
		out[string(k)] = spec
	}
	c.JSON(http.StatusOK, gin.H{"parts": out})
}

// PartInfo generates a part and returns its dimensions.
func (s *Server) PartInfo(c *gin.Context) {
	params, ok := readParams(c)
	if !ok {
		return
	}
	o := s.svc.Submit(c.Request.Context(), generation.Request{
		Kind:   parts.Kind(c.Param("kind")),
		Params: params,
	})
	if o.Status != outcome.StatusSuccess {
		writeFailure(c, o)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"dimensions": o.Result.Dims,
		"elapsed_ms": o.Elapsed.Milliseconds(),
	})
}

// ExportPart generates a part and streams the exported file. The file is
// removed once it has been sent.
func (s *Server) ExportPart(c *gin.Context) {
	format, err := generation.ParseFormat(c.DefaultQuery("format", "step"))
	if err != nil {
		writeFailure(c, outcome.FromError(err))
		return
	}
	params, ok := readParams(c)
	if !ok {
		return
	}

	kind := c.Param("kind")
	path := filepath.Join(s.exportDir, "opengridgen-"+uuid.NewString()+format.Extension())
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.APIError("remove export %s: %v", path, err)
		}
	}()

	o := s.svc.Submit(c.Request.Context(), generation.Request{
		Kind:       parts.Kind(kind),
		Params:     params,
		Format:     string(format),
		OutputPath: path,
	})
	if o.Status != outcome.StatusSuccess {
		writeFailure(c, o)
		return
	}
	c.Header("X-Dimensions", o.Result.Dims.String())
	c.FileAttachment(path, kind+format.Extension())
}

// GetSettings returns the current unit settings.
func (s *Server) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Current())
}

// UpdateSettings replaces the unit settings. Fields left out keep their
// current values.
func (s *Server) UpdateSettings(c *gin.Context) {
	u := s.settings.Current()
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := s.settings.Update(u); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
		return
	}
	metrics.SettingsUpdated("api")
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": s.settings.Current()})
}

// readParams reads the optional JSON parameter body.
func readParams(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxParamsBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return nil, false
	}
	if len(body) > maxParamsBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "parameter body too large"})
		return nil, false
	}
	return body, true
}

// writeFailure maps an outcome to its status code and error body.
func writeFailure(c *gin.Context, o outcome.Outcome) {
	if o.Status == outcome.StatusFault {
		logging.APIError("%s %s: %s", c.Request.Method, c.Request.URL.Path, o.Message)
	}
	body := gin.H{
		"success": false,
		"error":   o.Message,
		"status":  o.Status,
	}
	if o.Reason != "" {
		body["reason"] = o.Reason
	}
	c.JSON(o.Status.HTTPCode(), body)
}
