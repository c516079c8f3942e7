package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/timaxleno1/planipro/artifact"
	"github.com/timaxleno1/planipro/config"
	"github.com/timaxleno1/planipro/database"
	"github.com/timaxleno1/planipro/pipeline"
	"github.com/timaxleno1/planipro/progress"
	"github.com/timaxleno1/planipro/session"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Registry     session.Registry
	Store        *artifact.Store
	Pipeline     *pipeline.Pipeline
	Hub          *progress.Hub
	// RasterizerName is reported by the health endpoint
	RasterizerName string
}

type processRequest struct {
	SessionID string `json:"sessionId" form:"sessionId"`
}

type deleteThumbnailRequest struct {
	Page         int    `json:"page" form:"page"`
	DocumentName string `json:"documentName" form:"documentName"`
}

type thumbnailEntry struct {
	Page         int    `json:"page"`
	Thumbnail    string `json:"thumbnail"`
	HighRes      string `json:"highRes"`
	DocumentName string `json:"documentName"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

// RegisterRoutes adds every route of the service to the echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	e.POST("/upload", serverHandler.UploadDocument)
	e.POST("/process", serverHandler.ProcessDocument)
	e.GET("/thumbnails", serverHandler.GetThumbnails)
	e.POST("/delete-thumbnail", serverHandler.DeleteThumbnail)
	if serverHandler.Hub != nil {
		e.GET("/ws", echo.WrapHandler(serverHandler.Hub))
	}

	// Artifact files, served straight from the store
	e.Static("/highres/", serverHandler.Store.Dir(artifact.KindRaster))
	e.Static("/thumbnails/", serverHandler.Store.Dir(artifact.KindThumbnail))

	// Job tracking and admin API routes
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)
	e.POST("/api/reconcile", serverHandler.RunReconcileNow)
	e.POST("/api/clean", serverHandler.CleanOldJobs)
	e.GET("/api/health", serverHandler.GetHealth)
}

// UploadDocument accepts a PDF and parks it for the session until /process is called
// @Summary Upload a document
// @Description Store a PDF in the uploads folder and register it as the session's pending upload. A second upload for the same session replaces the first.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param pdfFile formData file true "PDF document to convert"
// @Param sessionId formData string true "Realtime session the progress events go to"
// @Success 200 {object} map[string]interface{} "File received"
// @Failure 400 {object} map[string]interface{} "Missing file or session id"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /upload [post]
func (serverHandler *ServerHandler) UploadDocument(c echo.Context) error {
	sessionID := c.FormValue("sessionId")
	fileHeader, err := c.FormFile("pdfFile")
	if err != nil {
		Logger.Debug("Upload without a file", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "No file was uploaded",
		})
	}
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "A sessionId is required",
		})
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "Only PDF documents are accepted",
		})
	}

	path, err := serverHandler.saveUpload(fileHeader.Filename, func() (io.ReadCloser, error) { return fileHeader.Open() })
	if err != nil {
		Logger.Error("Unable to store upload", "file", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Unable to store the uploaded file",
		})
	}

	displaced := serverHandler.Registry.Register(sessionID, session.Upload{
		SourcePath:       path,
		OriginalFileName: fileHeader.Filename,
	})
	if displaced != nil {
		removeUpload(*displaced)
	}

	Logger.Info("File received", "session", sessionID, "file", fileHeader.Filename, "path", path)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "File received and ready for processing",
		"sessionId": sessionID,
	})
}

// saveUpload copies the upload into the uploads folder under a fresh ULID name
func (serverHandler *ServerHandler) saveUpload(originalName string, open func() (io.ReadCloser, error)) (string, error) {
	src, err := open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(serverHandler.ServerConfig.UploadPath, os.ModePerm); err != nil {
		return "", fmt.Errorf("unable to create uploads folder: %w", err)
	}
	path := filepath.Join(serverHandler.ServerConfig.UploadPath, ulid.Make().String()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("unable to write %s: %w", originalName, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// removeUpload deletes the stored source of an upload once it was processed,
// replaced or expired
func removeUpload(upload session.Upload) {
	if err := os.Remove(upload.SourcePath); err != nil && !os.IsNotExist(err) {
		Logger.Warn("Unable to remove upload", "path", upload.SourcePath, "error", err)
		return
	}
	Logger.Debug("Removed upload", "session", upload.SessionID, "path", upload.SourcePath)
}

// ProcessDocument converts the session's pending upload and answers once every page is resolved
// @Summary Convert the pending upload
// @Description Claim the pending upload of the session, split it into pages and rasterize each page. Progress is pushed on the session's websocket. Responds once every page has succeeded or failed.
// @Tags Documents
// @Accept json
// @Produce json
// @Param request body processRequest true "Session to process"
// @Success 200 {object} map[string]interface{} "Conversion finished"
// @Failure 404 {object} map[string]interface{} "Nothing pending for the session"
// @Failure 500 {object} map[string]interface{} "The document could not be processed"
// @Router /process [post]
func (serverHandler *ServerHandler) ProcessDocument(c echo.Context) error {
	var request processRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "Invalid request body",
		})
	}
	Logger.Info("Processing requested", "session", request.SessionID)

	report, err := serverHandler.Pipeline.Run(c.Request().Context(), request.SessionID)
	if report != nil {
		// the artifacts outlive the source, nothing reads the upload after the run
		removeUpload(report.Upload)
	}
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			Logger.Info("No pending file for session", "session", request.SessionID)
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"success": false,
				"message": "No file pending for this session",
			})
		}
		Logger.Error("Processing failed", "session", request.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Unable to process the uploaded document",
		})
	}

	failed := make([]int, 0, len(report.Failed))
	for _, f := range report.Failed {
		failed = append(failed, f.Page)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "Processing finished",
		"documentName": report.DocumentName,
		"totalPages":   report.TotalPages,
		"failedPages":  failed,
		"jobId":        report.JobID,
	})
}

// GetThumbnails lists every converted page known to the manifest
// @Summary List thumbnails
// @Description List the converted pages ordered by document then page
// @Tags Thumbnails
// @Produce json
// @Success 200 {object} map[string]interface{} "Thumbnails"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /thumbnails [get]
func (serverHandler *ServerHandler) GetThumbnails(c echo.Context) error {
	entries, err := serverHandler.DB.ListArtifacts(c.Request().Context())
	if err != nil {
		Logger.Error("Unable to read manifest", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Unable to list thumbnails",
		})
	}

	thumbnails := make([]thumbnailEntry, 0, len(entries))
	for _, entry := range entries {
		thumbnails = append(thumbnails, thumbnailEntry{
			Page:         entry.Page,
			Thumbnail:    artifact.URL(artifact.KindThumbnail, entry.DocumentName, entry.Page),
			HighRes:      artifact.URL(artifact.KindRaster, entry.DocumentName, entry.Page),
			DocumentName: entry.DocumentName,
			Width:        entry.Width,
			Height:       entry.Height,
		})
	}
	Logger.Debug("Thumbnails listed", "count", len(thumbnails))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"thumbnails": thumbnails,
	})
}

// DeleteThumbnail removes a page's thumbnail, its raster and its manifest entry
// @Summary Delete a converted page
// @Description Delete the thumbnail and high resolution image of a page. Succeeds when nothing existed.
// @Tags Thumbnails
// @Accept json
// @Produce json
// @Param request body deleteThumbnailRequest true "Page to delete"
// @Success 200 {object} map[string]interface{} "Deleted; deleted reports whether the manifest knew the page"
// @Failure 400 {object} map[string]interface{} "Invalid page or document name"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /delete-thumbnail [post]
func (serverHandler *ServerHandler) DeleteThumbnail(c echo.Context) error {
	var request deleteThumbnailRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if request.Page < 1 || artifact.ValidateDocumentName(request.DocumentName) != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "A page number and a valid document name are required",
		})
	}
	ctx := c.Request().Context()
	logCtx := Logger.With("document", request.DocumentName, "page", request.Page)

	tracked := true
	entry, err := serverHandler.DB.GetArtifact(ctx, request.DocumentName, request.Page)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		tracked = false
	case err != nil:
		logCtx.Error("Unable to read manifest entry", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	default:
		logCtx = logCtx.With("raster", entry.RasterPath, "thumbnail", entry.ThumbnailPath)
	}

	for _, kind := range []artifact.Kind{artifact.KindThumbnail, artifact.KindRaster} {
		if err := serverHandler.Store.Delete(kind, request.DocumentName, request.Page); err != nil {
			logCtx.Error("Unable to delete artifact", "kind", kind, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		}
	}
	if _, err := serverHandler.DB.DeleteArtifact(ctx, request.DocumentName, request.Page); err != nil {
		logCtx.Error("Unable to delete manifest entry", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}

	logCtx.Info("Page deleted", "tracked", tracked)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": tracked,
	})
}
