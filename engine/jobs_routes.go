package engine

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/timaxleno1/planipro/database"
)

// GetJob retrieves a job by ID
// @Summary Get job by ID
// @Description Retrieve details of a specific job by its ID
// @Tags Jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID (ULID)"
// @Success 200 {object} database.Job "Job details"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/jobs/{id} [get]
func (serverHandler *ServerHandler) GetJob(c echo.Context) error {
	jobIDStr := c.Param("id")

	jobID, err := ulid.Parse(jobIDStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid job ID format",
		})
	}

	job, err := serverHandler.DB.GetJob(c.Request().Context(), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Job not found",
		})
	}
	if err != nil {
		Logger.Error("Failed to get job", "jobID", jobIDStr, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve job",
		})
	}

	return c.JSON(http.StatusOK, job)
}

// GetRecentJobs retrieves recent jobs with pagination
// @Summary Get recent jobs
// @Description Retrieve a list of recent jobs with pagination
// @Tags Jobs
// @Accept json
// @Produce json
// @Param limit query int false "Number of jobs to return (default: 20)"
// @Param offset query int false "Offset for pagination (default: 0)"
// @Success 200 {array} database.Job "List of jobs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/jobs [get]
func (serverHandler *ServerHandler) GetRecentJobs(c echo.Context) error {
	limit := 20
	offset := 0

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	jobs, err := serverHandler.DB.GetRecentJobs(c.Request().Context(), limit, offset)
	if err != nil {
		Logger.Error("Failed to get recent jobs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve jobs",
		})
	}

	if jobs == nil {
		jobs = []database.Job{}
	}

	return c.JSON(http.StatusOK, jobs)
}

// GetActiveJobs retrieves all currently running or pending jobs
// @Summary Get active jobs
// @Description Retrieve all jobs that are currently running or pending
// @Tags Jobs
// @Accept json
// @Produce json
// @Success 200 {array} database.Job "List of active jobs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/jobs/active [get]
func (serverHandler *ServerHandler) GetActiveJobs(c echo.Context) error {
	jobs, err := serverHandler.DB.GetActiveJobs(c.Request().Context())
	if err != nil {
		Logger.Error("Failed to get active jobs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve active jobs",
		})
	}

	if jobs == nil {
		jobs = []database.Job{}
	}

	return c.JSON(http.StatusOK, jobs)
}

// RunReconcileNow triggers the manifest reconcile manually
// @Summary Reconcile the manifest
// @Description Adopt converted pages found on disk and drop manifest entries whose files are gone
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Job created with job ID"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/reconcile [post]
func (serverHandler *ServerHandler) RunReconcileNow(c echo.Context) error {
	Logger.Info("Manual manifest reconcile triggered via API")

	job, err := serverHandler.startTrackedJob(database.JobTypeReconcile, "Starting manifest reconcile", serverHandler.reconcileJobFuncWithTracking)
	if err != nil {
		Logger.Error("Failed to create reconcile job", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create job",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Reconcile started",
		"jobId":   job.ID.String(),
	})
}

// CleanOldJobs deletes finished job records past the retention period
// @Summary Clean job records
// @Description Delete completed, failed and cancelled jobs older than the retention period
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Job created with jobId"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /api/clean [post]
func (serverHandler *ServerHandler) CleanOldJobs(c echo.Context) error {
	Logger.Info("Job cleanup triggered via API")

	job, err := serverHandler.startTrackedJob(database.JobTypeCleanup, "Starting job cleanup", serverHandler.cleanupJobFuncWithTracking)
	if err != nil {
		Logger.Error("Failed to create cleanup job", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create job",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Cleanup started",
		"jobId":   job.ID.String(),
	})
}

// GetHealth reports whether the database answers
// @Summary Health check
// @Description Report database reachability, the rasterizer in use and the number of pending uploads
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Failure 503 {object} map[string]interface{} "Database unreachable"
// @Router /api/health [get]
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	health := map[string]interface{}{
		"status":       "ok",
		"databaseType": serverHandler.ServerConfig.DatabaseType,
		"rasterizer":   serverHandler.RasterizerName,
	}
	if serverHandler.Registry != nil {
		health["pendingUploads"] = serverHandler.Registry.Len()
	}
	if err := serverHandler.DB.Ping(c.Request().Context()); err != nil {
		Logger.Warn("Health check failed", "error", err)
		health["status"] = "unavailable"
		health["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, health)
	}
	return c.JSON(http.StatusOK, health)
}
