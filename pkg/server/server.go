// Package server exposes the extractor over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/plot2dataset"
	"github.com/menta2k/plot2dataset/pkg/response"
	"github.com/menta2k/plot2dataset/pkg/types"
)

// RequestIDHeader carries the id assigned to each request
const RequestIDHeader = "X-Request-ID"

// Extractor is the pipeline the handlers call into
type Extractor interface {
	Run(ctx context.Context, ref string) (plot2dataset.Outcome, error)
}

// ExtractHandler serves chart extraction requests
type ExtractHandler struct {
	extractor Extractor
}

// NewExtractHandler creates a handler that runs every request through extractor
func NewExtractHandler(extractor Extractor) *ExtractHandler {
	return &ExtractHandler{extractor: extractor}
}

// Extract handles POST /extract-data
func (h *ExtractHandler) Extract(c *gin.Context) {
	logger := zerolog.Ctx(c.Request.Context())

	var req types.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		logger.Warn().Err(err).Msg("missing image reference")
		c.JSON(http.StatusBadRequest, types.Result{Success: false, Error: "No image URL provided"})
		return
	}

	out, err := h.extractor.Run(c.Request.Context(), req.ImageURL)
	status := response.StatusCode(err)
	if err != nil {
		logger.Warn().Err(err).Int("status", status).Msg("extract data")
	} else {
		logger.Info().
			Str("mode", out.Table.Mode.String()).
			Int("records", len(out.Table.Records)).
			Msg("extract data")
	}
	c.JSON(status, response.Assemble(out.Table.Records, out.RawText, err))
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthStatus{Status: "healthy", Message: "API is running"})
}

// NewRouter wires the routes and middleware
func NewRouter(extractor Extractor) *gin.Engine {
	e := gin.New()
	e.Use(requestLogger(), gin.CustomRecovery(recoverJSON))

	h := NewExtractHandler(extractor)
	e.POST("/extract-data", h.Extract)
	e.GET("/health", Health)
	return e
}

// requestLogger attaches a request scoped logger and logs one line per request
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		logger := log.Logger.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

func recoverJSON(c *gin.Context, recovered any) {
	zerolog.Ctx(c.Request.Context()).Error().Interface("panic", recovered).Msg("handler panic")
	c.AbortWithStatusJSON(http.StatusInternalServerError, types.Result{Success: false, Error: "internal server error"})
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
