package database

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeConversion JobType = "conversion"
	JobTypeSweep      JobType = "session_sweep"
	JobTypeReconcile  JobType = "manifest_reconcile"
	JobTypeCleanup    JobType = "cleanup"
)

// Job represents one pipeline run or background operation
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`         // 0-100
	CurrentStep string     `json:"currentStep"`      // Human-readable current step
	TotalSteps  int        `json:"totalSteps"`       // pages, for conversions
	Message     string     `json:"message"`          // Status message
	Error       string     `json:"error,omitempty"`  // Error message if failed
	Result      string     `json:"result,omitempty"` // JSON result data
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ConversionSummary is stored as the result of a conversion job
type ConversionSummary struct {
	SessionID    string `json:"sessionId"`
	DocumentName string `json:"documentName"`
	TotalPages   int    `json:"totalPages"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	FailedPages  []int  `json:"failedPages,omitempty"`
}

// ReconcileSummary is stored as the result of a manifest reconcile job
type ReconcileSummary struct {
	Adopted int `json:"adopted"`
	Dropped int `json:"dropped"`
	Kept    int `json:"kept"`
}
