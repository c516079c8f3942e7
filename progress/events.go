// Package progress delivers conversion events to the session that asked for
// the work. The pipeline only sees the Broadcaster interface; the websocket
// Hub and the Recorder are the two implementations.
package progress

import "log/slog"

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Event names as seen by clients
const (
	EventSession             = "session"
	EventConversionStarted   = "conversionStarted"
	EventThumbnailGenerated  = "thumbnailGenerated"
	EventPageConversionError = "pageConversionError"
	EventOverallProgress     = "overallProgress"
	EventError               = "error"
)

// Broadcaster sends an event to every listener of one session. Emit must not
// block the caller on slow listeners.
type Broadcaster interface {
	Emit(sessionID, event string, payload any)
}

// Event is the frame written to the realtime channel
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type SessionAssigned struct {
	SessionID string `json:"sessionId"`
}

type ConversionStarted struct {
	TotalPages int `json:"totalPages"`
}

// ThumbnailGenerated reports one successfully converted page
type ThumbnailGenerated struct {
	Page         int    `json:"page"`
	Thumbnail    string `json:"thumbnail"`
	HighRes      string `json:"highRes"`
	DocumentName string `json:"documentName"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type PageConversionError struct {
	Page  int    `json:"page"`
	Error string `json:"error"`
}

type OverallProgress struct {
	PercentComplete float64 `json:"percentComplete"`
}

// FatalError ends a run before any page was converted
type FatalError struct {
	Message string `json:"message"`
}
