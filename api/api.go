// Package api exposes the cadence read model and job control over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/cadence/engine"
)

// API wires the cadence HTTP handlers to an Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API from a cadence Engine.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns a gin router with every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.requestLogger())
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the cadence routes on r.
func (a *API) RegisterRoutes(r gin.IRouter) {
	// GET /status - full processor snapshot
	r.GET("/status", a.status)

	// GET /healthcheck - live workers and due queue
	r.GET("/healthcheck", a.healthcheck)

	// GET /counters - lifecycle totals of this process
	r.GET("/counters", a.counters)

	jobs := r.Group("/jobs")
	{
		// GET /jobs/:id - job or cron task record
		jobs.GET("/:id", a.getJob)

		// POST /jobs/:id/kill - kill wherever it runs
		jobs.POST("/:id/kill", a.killJob)
	}
}

// requestLogger logs each HTTP request with slog.
func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		a.logger.Debug("http request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Duration("latency", time.Since(start)),
		)
		for _, e := range c.Errors {
			a.logger.Error("http request error", slog.String("error", e.Error()))
		}
	}
}
