package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunArtifact represents the artifacts table for Bun ORM
type BunArtifact struct {
	bun.BaseModel `bun:"table:artifacts,alias:a"`

	DocumentName  string    `bun:"document_name,pk"`
	Page          int       `bun:"page,pk"`
	RasterPath    string    `bun:"raster_path,notnull"`
	ThumbnailPath string    `bun:"thumbnail_path,notnull"`
	Width         int       `bun:"width,default:0"`
	Height        int       `bun:"height,default:0"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToEntry converts BunArtifact to ManifestEntry
func (ba *BunArtifact) ToEntry() ManifestEntry {
	return ManifestEntry{
		DocumentName:  ba.DocumentName,
		Page:          ba.Page,
		RasterPath:    ba.RasterPath,
		ThumbnailPath: ba.ThumbnailPath,
		Width:         ba.Width,
		Height:        ba.Height,
		CreatedAt:     ba.CreatedAt,
	}
}

// FromEntry converts ManifestEntry to BunArtifact
func FromEntry(entry ManifestEntry) *BunArtifact {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &BunArtifact{
		DocumentName:  entry.DocumentName,
		Page:          entry.Page,
		RasterPath:    entry.RasterPath,
		ThumbnailPath: entry.ThumbnailPath,
		Width:         entry.Width,
		Height:        entry.Height,
		CreatedAt:     created,
		UpdatedAt:     time.Now().UTC(),
	}
}

// BunJob represents the jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Type        string     `bun:"type,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	Progress    int        `bun:"progress,default:0"`
	CurrentStep string     `bun:"current_step,default:''"`
	TotalSteps  int        `bun:"total_steps,default:0"`
	Message     string     `bun:"message,default:''"`
	Error       string     `bun:"error,nullzero"`
	Result      string     `bun:"result,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          parsedULID,
		Type:        JobType(bj.Type),
		Status:      JobStatus(bj.Status),
		Progress:    bj.Progress,
		CurrentStep: bj.CurrentStep,
		TotalSteps:  bj.TotalSteps,
		Message:     bj.Message,
		Error:       bj.Error,
		Result:      bj.Result,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		StartedAt:   bj.StartedAt,
		CompletedAt: bj.CompletedAt,
	}, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		TotalSteps:  job.TotalSteps,
		Message:     job.Message,
		Error:       job.Error,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
