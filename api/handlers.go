package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

func (a *API) status(c *gin.Context) {
	st, err := a.eng.Status(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) healthcheck(c *gin.Context) {
	hc, err := a.eng.Healthcheck(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hc)
}

func (a *API) counters(c *gin.Context) {
	c.JSON(http.StatusOK, a.eng.Counters().Snapshot())
}

func (a *API) getJob(c *gin.Context) {
	jobID, err := id.ParseJobID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID: " + err.Error()})
		return
	}

	j, err := a.eng.GetJob(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) killJob(c *gin.Context) {
	jobID, err := id.ParseJobID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID: " + err.Error()})
		return
	}

	if err := a.eng.KillJob(c.Request.Context(), jobID); err != nil {
		a.fail(c, err)
		return
	}

	j, err := a.eng.GetJob(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	// A running job is killed asynchronously by its owner.
	c.JSON(http.StatusAccepted, j)
}

// fail writes the response of a store or engine error.
func (a *API) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(mapStoreError(err), gin.H{"error": err.Error()})
}

func mapStoreError(err error) int {
	switch {
	case isNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, cadence.ErrActiveConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, cadence.ErrJobNotFound) ||
		errors.Is(err, cadence.ErrCronNotFound) ||
		errors.Is(err, cadence.ErrWorkerNotFound) ||
		errors.Is(err, cadence.ErrSignalNotFound)
}
