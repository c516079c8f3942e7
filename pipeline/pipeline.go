// Package pipeline runs one conversion: claim the session's upload, split it,
// rasterize every page on a bounded pool and report progress as pages resolve.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/timaxleno1/planipro/database"
	"github.com/timaxleno1/planipro/progress"
	"github.com/timaxleno1/planipro/rasterizer"
	"github.com/timaxleno1/planipro/session"
	"github.com/timaxleno1/planipro/splitter"
	"golang.org/x/sync/errgroup"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrConversionFatal wraps failures that end a run before any page is converted
var ErrConversionFatal = errors.New("conversion failed")

// fatalMessage is what clients see; the detail only goes to the log
const fatalMessage = "Unable to process the uploaded document"

// State of a run
type State string

const (
	StatePending    State = "pending"
	StateSplitting  State = "splitting"
	StateConverting State = "converting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

type Splitter interface {
	Split(ctx context.Context, upload session.Upload) ([]splitter.Page, error)
}

type PageRasterizer interface {
	Rasterize(ctx context.Context, page splitter.Page) (rasterizer.Result, error)
}

// Manifest receives every successfully converted page
type Manifest interface {
	UpsertArtifact(ctx context.Context, entry database.ManifestEntry) error
}

// Jobs records each run as a job
type Jobs interface {
	CreateJob(ctx context.Context, jobType database.JobType, message string) (*database.Job, error)
	UpdateJobStatus(ctx context.Context, jobID ulid.ULID, status database.JobStatus, message string) error
	UpdateJobTotalSteps(ctx context.Context, jobID ulid.ULID, totalSteps int) error
	UpdateJobProgress(ctx context.Context, jobID ulid.ULID, progress int, currentStep string) error
	UpdateJobError(ctx context.Context, jobID ulid.ULID, errorMsg string) error
	CompleteJob(ctx context.Context, jobID ulid.ULID, result string) error
}

// Pipeline holds the collaborators of a run. Manifest and Jobs are optional.
type Pipeline struct {
	Registry    session.Registry
	Splitter    Splitter
	Rasterizer  PageRasterizer
	Broadcaster progress.Broadcaster
	Manifest    Manifest
	Jobs        Jobs
	Workers     int
	PageTimeout time.Duration
}

// PageFailure is one page that did not convert
type PageFailure struct {
	Page int
	Err  error
}

// Report describes a finished run
type Report struct {
	SessionID    string
	DocumentName string
	JobID        string
	State        State
	TotalPages   int
	Succeeded    []rasterizer.Result
	Failed       []PageFailure

	// Upload is the claimed source. Its file is left for the caller.
	Upload session.Upload
}

// run is the state shared by the page tasks of one conversion
type run struct {
	p      *Pipeline
	report *Report
	jobID  *ulid.ULID
	logCtx *slog.Logger
	// bookkeeping outlives cancellation so a cancelled run is still recorded
	bg context.Context

	mu   sync.Mutex
	done int
}

// Run converts the upload pending for sessionID and returns once every page
// has a terminal outcome. session.ErrSessionNotFound is returned untouched
// when nothing is pending; split failures come back wrapped in
// ErrConversionFatal. Page failures are not errors of the run.
func (p *Pipeline) Run(ctx context.Context, sessionID string) (*Report, error) {
	upload, err := p.Registry.Take(sessionID)
	if err != nil {
		return nil, err
	}

	r := &run{
		p: p,
		report: &Report{
			SessionID:    sessionID,
			DocumentName: upload.DocumentName(),
			Upload:       upload,
			State:        StatePending,
		},
		logCtx: Logger.With("session", sessionID, "document", upload.DocumentName()),
		bg:     context.WithoutCancel(ctx),
	}
	r.startJob(upload)

	r.setState(StateSplitting, "Splitting")
	pages, err := p.Splitter.Split(ctx, upload)
	if err != nil {
		r.logCtx.Error("Splitting failed", "source", upload.SourcePath, "error", err)
		r.report.State = StateFailed
		p.Broadcaster.Emit(sessionID, progress.EventError, progress.FatalError{Message: fatalMessage})
		if r.jobID != nil {
			if jerr := p.Jobs.UpdateJobError(r.bg, *r.jobID, err.Error()); jerr != nil {
				r.logCtx.Warn("Unable to record job failure", "error", jerr)
			}
		}
		return r.report, fmt.Errorf("%w: %w", ErrConversionFatal, err)
	}

	r.report.TotalPages = len(pages)
	if r.jobID != nil {
		if err := p.Jobs.UpdateJobTotalSteps(r.bg, *r.jobID, len(pages)); err != nil {
			r.logCtx.Warn("Unable to record page count", "error", err)
		}
	}
	r.setState(StateConverting, "Converting")
	p.Broadcaster.Emit(sessionID, progress.EventConversionStarted, progress.ConversionStarted{TotalPages: len(pages)})

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, page := range pages {
		eg.Go(func() error {
			r.convert(ctx, page)
			return nil
		})
	}
	// page tasks never return errors, a sibling failure must not cancel the rest
	_ = eg.Wait()

	sort.Slice(r.report.Succeeded, func(i, j int) bool {
		return r.report.Succeeded[i].Raster.PageNumber < r.report.Succeeded[j].Raster.PageNumber
	})
	sort.Slice(r.report.Failed, func(i, j int) bool { return r.report.Failed[i].Page < r.report.Failed[j].Page })
	r.report.State = StateCompleted
	r.completeJob()

	r.logCtx.Info("Conversion completed",
		"pages", r.report.TotalPages,
		"succeeded", len(r.report.Succeeded),
		"failed", len(r.report.Failed))
	return r.report, nil
}

// convert runs one page task. Whatever happens, including a panic in the
// engine, the page ends with exactly one terminal event.
func (r *run) convert(ctx context.Context, page splitter.Page) {
	pageCtx := ctx
	if r.p.PageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, r.p.PageTimeout)
		defer cancel()
	}

	result, err := r.rasterize(pageCtx, page)
	if err == nil && r.p.Manifest != nil {
		entry := database.ManifestEntry{
			DocumentName:  result.Raster.DocumentName,
			Page:          result.Raster.PageNumber,
			RasterPath:    result.Raster.Path,
			ThumbnailPath: result.Thumbnail.Path,
			Width:         result.Raster.Width,
			Height:        result.Raster.Height,
		}
		// the files exist, so the reconcile sweep picks the page up if this fails
		if merr := r.p.Manifest.UpsertArtifact(r.bg, entry); merr != nil {
			r.logCtx.Warn("Unable to record page in manifest", "page", page.PageNumber, "error", merr)
		}
	}
	r.resolve(page.PageNumber, result, err)
}

func (r *run) rasterize(ctx context.Context, page splitter.Page) (result rasterizer.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logCtx.Error("Page task panicked", "page", page.PageNumber, "panic", rec)
			err = &rasterizer.PageError{Page: page.PageNumber, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return r.p.Rasterizer.Rasterize(ctx, page)
}

// resolve emits the page's terminal event and the progress that follows it.
// Both happen under one lock together with the counter increment, so the
// progress sequence seen by the client never goes backwards.
func (r *run) resolve(pageNumber int, result rasterizer.Result, err error) {
	sessionID := r.report.SessionID

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.report.Failed = append(r.report.Failed, PageFailure{Page: pageNumber, Err: err})
		r.p.Broadcaster.Emit(sessionID, progress.EventPageConversionError, progress.PageConversionError{
			Page:  pageNumber,
			Error: err.Error(),
		})
	} else {
		r.report.Succeeded = append(r.report.Succeeded, result)
		r.p.Broadcaster.Emit(sessionID, progress.EventThumbnailGenerated, progress.ThumbnailGenerated{
			Page:         pageNumber,
			Thumbnail:    result.Thumbnail.URL,
			HighRes:      result.Raster.URL,
			DocumentName: result.Raster.DocumentName,
			Width:        result.Raster.Width,
			Height:       result.Raster.Height,
		})
	}

	r.done++
	percent := float64(r.done) / float64(r.report.TotalPages) * 100
	r.p.Broadcaster.Emit(sessionID, progress.EventOverallProgress, progress.OverallProgress{PercentComplete: percent})

	if r.jobID != nil {
		step := fmt.Sprintf("Page %d of %d resolved", r.done, r.report.TotalPages)
		if jerr := r.p.Jobs.UpdateJobProgress(r.bg, *r.jobID, int(percent), step); jerr != nil {
			r.logCtx.Debug("Unable to record job progress", "error", jerr)
		}
	}
}

func (r *run) startJob(upload session.Upload) {
	if r.p.Jobs == nil {
		return
	}
	job, err := r.p.Jobs.CreateJob(r.bg, database.JobTypeConversion, "Converting "+upload.OriginalFileName)
	if err != nil {
		r.logCtx.Warn("Unable to create conversion job", "error", err)
		return
	}
	r.jobID = &job.ID
	r.report.JobID = job.ID.String()
}

func (r *run) setState(state State, message string) {
	r.report.State = state
	r.logCtx.Debug("Conversion state", "state", state)
	if r.jobID == nil {
		return
	}
	if err := r.p.Jobs.UpdateJobStatus(r.bg, *r.jobID, database.JobStatusRunning, message); err != nil {
		r.logCtx.Warn("Unable to update job status", "error", err)
	}
}

func (r *run) completeJob() {
	if r.jobID == nil {
		return
	}
	summary := database.ConversionSummary{
		SessionID:    r.report.SessionID,
		DocumentName: r.report.DocumentName,
		TotalPages:   r.report.TotalPages,
		Succeeded:    len(r.report.Succeeded),
		Failed:       len(r.report.Failed),
	}
	for _, f := range r.report.Failed {
		summary.FailedPages = append(summary.FailedPages, f.Page)
	}
	result, _ := json.Marshal(summary)
	if err := r.p.Jobs.CompleteJob(r.bg, *r.jobID, string(result)); err != nil {
		r.logCtx.Warn("Unable to complete job", "error", err)
	}
}
