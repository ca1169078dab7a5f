package extension

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/monitoring"
)

// RegisterRoutes registers the cadence routes under the configured base
// path of a Forge router, with OpenAPI metadata.
func (e *Extension) RegisterRoutes(router forge.Router) {
	if e.eng == nil {
		return
	}
	e.registerStatusRoutes(router)
	e.registerJobRoutes(router)
}

func (e *Extension) registerStatusRoutes(router forge.Router) {
	g := router.Group(e.config.BasePath, forge.WithGroupTags("status"))

	_ = g.GET("/status", e.status,
		forge.WithSummary("Processor status"),
		forge.WithDescription("Returns the job, cron task and worker snapshot of the store."),
		forge.WithOperationID("cadenceStatus"),
		forge.WithResponseSchema(http.StatusOK, "Processor status", &monitoring.ProcessorStatus{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/healthcheck", e.healthcheck,
		forge.WithSummary("Healthcheck"),
		forge.WithDescription("Returns live workers and the due queue."),
		forge.WithOperationID("cadenceHealthcheck"),
		forge.WithResponseSchema(http.StatusOK, "Healthcheck", &monitoring.Healthcheck{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/counters", e.counters,
		forge.WithSummary("Lifecycle counters"),
		forge.WithDescription("Returns the lifecycle totals of this process."),
		forge.WithOperationID("cadenceCounters"),
		forge.WithResponseSchema(http.StatusOK, "Counters", map[string]any{}),
		forge.WithErrorResponses(),
	)
}

func (e *Extension) registerJobRoutes(router forge.Router) {
	g := router.Group(e.config.BasePath, forge.WithGroupTags("jobs"))

	_ = g.GET("/jobs/:jobId", e.getJob,
		forge.WithSummary("Get job"),
		forge.WithDescription("Returns a job or cron task record."),
		forge.WithOperationID("cadenceGetJob"),
		forge.WithResponseSchema(http.StatusOK, "Job details", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/kill", e.killJob,
		forge.WithSummary("Kill job"),
		forge.WithDescription("Kills a job wherever it runs. Running jobs are killed asynchronously by their owner."),
		forge.WithOperationID("cadenceKillJob"),
		forge.WithResponseSchema(http.StatusAccepted, "Job after the kill request", &job.Job{}),
		forge.WithErrorResponses(),
	)
}

func (e *Extension) status(ctx forge.Context) error {
	st, err := e.eng.Status(ctx.Context())
	if err != nil {
		return forge.InternalError(err)
	}
	return ctx.JSON(http.StatusOK, st)
}

func (e *Extension) healthcheck(ctx forge.Context) error {
	hc, err := e.eng.Healthcheck(ctx.Context())
	if err != nil {
		return forge.InternalError(err)
	}
	return ctx.JSON(http.StatusOK, hc)
}

func (e *Extension) counters(ctx forge.Context) error {
	return ctx.JSON(http.StatusOK, e.eng.Counters().Snapshot())
}

func (e *Extension) getJob(ctx forge.Context) error {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := e.eng.GetJob(ctx.Context(), jobID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, j)
}

func (e *Extension) killJob(ctx forge.Context) error {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	if err := e.eng.KillJob(ctx.Context(), jobID); err != nil {
		return mapStoreError(err)
	}

	j, err := e.eng.GetJob(ctx.Context(), jobID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusAccepted, j)
}

// mapStoreError converts cadence sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if errors.Is(err, cadence.ErrJobNotFound) || errors.Is(err, cadence.ErrCronNotFound) {
		return forge.NotFound(err.Error())
	}
	return forge.InternalError(err)
}
