package database

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ManifestEntry is the record of one converted page. The manifest is the
// authoritative list of what the service can show; the files on disk follow
// the naming convention so the manifest can always be rebuilt from them.
type ManifestEntry struct {
	DocumentName  string    `json:"documentName"`
	Page          int       `json:"page"`
	RasterPath    string    `json:"rasterPath"`
	ThumbnailPath string    `json:"thumbnailPath"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Repository defines database operations
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	// Manifest methods
	UpsertArtifact(ctx context.Context, entry ManifestEntry) error
	GetArtifact(ctx context.Context, documentName string, page int) (*ManifestEntry, error)
	ListArtifacts(ctx context.Context) ([]ManifestEntry, error)
	DeleteArtifact(ctx context.Context, documentName string, page int) (bool, error)
	// Job tracking methods
	CreateJob(ctx context.Context, jobType JobType, message string) (*Job, error)
	UpdateJobProgress(ctx context.Context, jobID ulid.ULID, progress int, currentStep string) error
	UpdateJobStatus(ctx context.Context, jobID ulid.ULID, status JobStatus, message string) error
	UpdateJobTotalSteps(ctx context.Context, jobID ulid.ULID, totalSteps int) error
	UpdateJobError(ctx context.Context, jobID ulid.ULID, errorMsg string) error
	CompleteJob(ctx context.Context, jobID ulid.ULID, result string) error
	GetJob(ctx context.Context, jobID ulid.ULID) (*Job, error)
	GetRecentJobs(ctx context.Context, limit, offset int) ([]Job, error)
	GetActiveJobs(ctx context.Context) ([]Job, error)
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// CalculateUUID builds a ULID for the given time
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
