package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/timaxleno1/planipro/artifact"
	"github.com/timaxleno1/planipro/database"
)

// jobRetention is how long finished job records are kept
const jobRetention = 7 * 24 * time.Hour

type pageKey struct {
	documentName string
	page         int
}

// ReconcileManifest brings the manifest in line with the files on disk. Pages
// with both a raster and a thumbnail but no manifest entry are adopted,
// entries whose files are gone are dropped. A raster without its thumbnail
// (or the reverse) is left alone, it may belong to a page still converting.
func (serverHandler *ServerHandler) ReconcileManifest(ctx context.Context) (database.ReconcileSummary, error) {
	var summary database.ReconcileSummary
	store := serverHandler.Store

	rasters, err := store.List(artifact.KindRaster)
	if err != nil {
		return summary, err
	}
	thumbnails, err := store.List(artifact.KindThumbnail)
	if err != nil {
		return summary, err
	}
	thumbPaths := make(map[pageKey]string, len(thumbnails))
	for _, ref := range thumbnails {
		thumbPaths[pageKey{ref.DocumentName, ref.Page}] = ref.Path
	}
	onDisk := make(map[pageKey]artifact.Ref, len(rasters))
	for _, ref := range rasters {
		key := pageKey{ref.DocumentName, ref.Page}
		if _, ok := thumbPaths[key]; ok {
			onDisk[key] = ref
		}
	}

	entries, err := serverHandler.DB.ListArtifacts(ctx)
	if err != nil {
		return summary, fmt.Errorf("unable to read manifest: %w", err)
	}
	tracked := make(map[pageKey]bool, len(entries))
	for _, entry := range entries {
		key := pageKey{entry.DocumentName, entry.Page}
		if _, ok := onDisk[key]; ok {
			tracked[key] = true
			summary.Kept++
			continue
		}
		if _, err := serverHandler.DB.DeleteArtifact(ctx, entry.DocumentName, entry.Page); err != nil {
			return summary, err
		}
		Logger.Info("Dropped manifest entry without files", "document", entry.DocumentName, "page", entry.Page)
		summary.Dropped++
	}

	for key, ref := range onDisk {
		if tracked[key] {
			continue
		}
		width, height := imageSize(store, key.documentName, key.page)
		err := serverHandler.DB.UpsertArtifact(ctx, database.ManifestEntry{
			DocumentName:  key.documentName,
			Page:          key.page,
			RasterPath:    ref.Path,
			ThumbnailPath: thumbPaths[key],
			Width:         width,
			Height:        height,
		})
		if err != nil {
			return summary, err
		}
		Logger.Info("Adopted untracked page", "document", key.documentName, "page", key.page)
		summary.Adopted++
	}
	return summary, nil
}

// imageSize reads the raster dimensions from the image header, zero when unreadable
func imageSize(store *artifact.Store, documentName string, page int) (int, int) {
	f, err := store.Open(artifact.KindRaster, documentName, page)
	if err != nil {
		Logger.Warn("Unable to open raster", "document", documentName, "page", page, "error", err)
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		Logger.Warn("Unable to read image header", "path", f.Name(), "error", err)
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// SweepSessions discards uploads that waited longer than the session TTL
// without being processed, and deletes their files
func (serverHandler *ServerHandler) SweepSessions(now time.Time) int {
	if serverHandler.ServerConfig.SessionTTL <= 0 {
		return 0
	}
	expired := serverHandler.Registry.Evict(now.Add(-serverHandler.ServerConfig.SessionTTL))
	for _, upload := range expired {
		Logger.Info("Upload expired before processing", "session", upload.SessionID, "file", upload.OriginalFileName)
		removeUpload(upload)
	}
	return len(expired)
}

// reconcileJobFuncWithTracking runs the manifest reconcile as a tracked job
func (serverHandler *ServerHandler) reconcileJobFuncWithTracking(jobID ulid.ULID) {
	ctx := context.Background()
	db := serverHandler.DB
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in reconcile job", "panic", r, "jobID", jobID)
			db.UpdateJobError(ctx, jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	if err := db.UpdateJobStatus(ctx, jobID, database.JobStatusRunning, "Scanning artifacts"); err != nil {
		Logger.Error("Failed to update job status", "error", err)
	}

	summary, err := serverHandler.ReconcileManifest(ctx)
	if err != nil {
		Logger.Error("Manifest reconcile failed", "error", err)
		db.UpdateJobError(ctx, jobID, err.Error())
		return
	}

	result, _ := json.Marshal(summary)
	if err := db.CompleteJob(ctx, jobID, string(result)); err != nil {
		Logger.Error("Failed to mark reconcile job as complete", "error", err)
	}
	Logger.Info("Manifest reconcile completed", "jobID", jobID,
		"adopted", summary.Adopted, "dropped", summary.Dropped, "kept", summary.Kept)
}

// cleanupJobFuncWithTracking deletes finished job records past the retention period
func (serverHandler *ServerHandler) cleanupJobFuncWithTracking(jobID ulid.ULID) {
	ctx := context.Background()
	db := serverHandler.DB
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in cleanup job", "panic", r, "jobID", jobID)
			db.UpdateJobError(ctx, jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	db.UpdateJobStatus(ctx, jobID, database.JobStatusRunning, "Deleting old job records")
	deleted, err := db.DeleteOldJobs(ctx, jobRetention)
	if err != nil {
		Logger.Error("Failed to delete old jobs", "error", err)
		db.UpdateJobError(ctx, jobID, fmt.Sprintf("Failed to delete old jobs: %v", err))
		return
	}

	result := fmt.Sprintf(`{"deleted": %d}`, deleted)
	if err := db.CompleteJob(ctx, jobID, result); err != nil {
		Logger.Error("Failed to mark cleanup job as complete", "error", err)
	}
	Logger.Info("Job cleanup completed", "jobID", jobID, "deleted", deleted)
}

// sweepJobFunc evicts expired uploads, recording a job only when something expired
func (serverHandler *ServerHandler) sweepJobFunc() {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in session sweep", "panic", r)
		}
	}()

	evicted := serverHandler.SweepSessions(time.Now())
	if evicted == 0 {
		return
	}
	ctx := context.Background()
	job, err := serverHandler.DB.CreateJob(ctx, database.JobTypeSweep, "Expired pending uploads")
	if err != nil {
		Logger.Error("Failed to create sweep job", "error", err)
		return
	}
	serverHandler.DB.CompleteJob(ctx, job.ID, fmt.Sprintf(`{"evicted": %d}`, evicted))
}

// startTrackedJob creates the job record and runs fn for it in the background
func (serverHandler *ServerHandler) startTrackedJob(jobType database.JobType, message string, fn func(ulid.ULID)) (*database.Job, error) {
	job, err := serverHandler.DB.CreateJob(context.Background(), jobType, message)
	if err != nil {
		return nil, err
	}
	go fn(job.ID)
	return job, nil
}

// runTrackedJob is startTrackedJob without the goroutine, for cron
func (serverHandler *ServerHandler) runTrackedJob(jobType database.JobType, message string, fn func(ulid.ULID)) {
	job, err := serverHandler.DB.CreateJob(context.Background(), jobType, message)
	if err != nil {
		Logger.Error("Unable to create job", "type", jobType, "error", err)
		return
	}
	fn(job.ID)
}
