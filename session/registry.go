package session

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrSessionNotFound is returned when no upload is pending for a session
var ErrSessionNotFound = errors.New("no pending upload for session")

// Upload is a source document waiting to be converted on behalf of one session
type Upload struct {
	SessionID        string    `json:"sessionId"`
	SourcePath       string    `json:"sourcePath"`
	OriginalFileName string    `json:"originalFileName"`
	RegisteredAt     time.Time `json:"registeredAt"`
}

// DocumentName is the base name of the stored source without its extension.
// All artifacts of the document are named after it.
func (u Upload) DocumentName() string {
	base := filepath.Base(u.SourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Registry maps a session id to at most one pending upload
type Registry interface {
	// Register stores the upload, returning the upload it displaced if there was one
	Register(sessionID string, upload Upload) (replaced *Upload)
	// Take removes and returns the pending upload in one step
	Take(sessionID string) (Upload, error)
	// Peek returns the pending upload without removing it
	Peek(sessionID string) (Upload, bool)
	// Evict drops uploads registered before the cutoff and returns them
	Evict(olderThan time.Time) []Upload
	// Len is the number of pending uploads
	Len() int
}

// MemoryRegistry is the in-process Registry. State is lost on restart.
type MemoryRegistry struct {
	mu      sync.Mutex
	pending map[string]Upload
	now     func() time.Time
}

// NewMemoryRegistry returns an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		pending: make(map[string]Upload),
		now:     time.Now,
	}
}

// Register stores upload for sessionID. A second registration for the same
// session replaces the first; the caller owns the displaced upload's file.
func (r *MemoryRegistry) Register(sessionID string, upload Upload) *Upload {
	upload.SessionID = sessionID
	if upload.RegisteredAt.IsZero() {
		upload.RegisteredAt = r.now()
	}

	r.mu.Lock()
	previous, existed := r.pending[sessionID]
	r.pending[sessionID] = upload
	r.mu.Unlock()

	if existed {
		Logger.Info("Replaced pending upload", "session", sessionID,
			"previous", previous.OriginalFileName, "current", upload.OriginalFileName)
		return &previous
	}
	Logger.Debug("Registered upload", "session", sessionID, "file", upload.OriginalFileName)
	return nil
}

// Take removes and returns the pending upload. Of two concurrent calls for
// the same session at most one succeeds.
func (r *MemoryRegistry) Take(sessionID string) (Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.pending[sessionID]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(r.pending, sessionID)
	return upload, nil
}

func (r *MemoryRegistry) Peek(sessionID string) (Upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.pending[sessionID]
	return upload, ok
}

func (r *MemoryRegistry) Evict(olderThan time.Time) []Upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []Upload
	for id, upload := range r.pending {
		if upload.RegisteredAt.Before(olderThan) {
			evicted = append(evicted, upload)
			delete(r.pending, id)
		}
	}
	return evicted
}

func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
