package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"

	config "github.com/timaxleno1/planipro/config"
	engine "github.com/timaxleno1/planipro/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestInjectGlobals(t *testing.T) {
	logger := testLogger()
	injectGlobals(logger)
	if Logger != logger || engine.Logger != logger || config.Logger != logger {
		t.Error("Expected the logger to be injected into every package")
	}
}

func TestAPINotFoundIsJSON(t *testing.T) {
	injectGlobals(testLogger())
	e := newEcho(config.ServerConfig{MaxUploadMB: 1})

	req := httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected a JSON body, got %q", rec.Body.String())
	}
	if body["path"] != "/api/does-not-exist" {
		t.Errorf("Expected the path in the body, got %v", body)
	}
}

func TestBodyLimit(t *testing.T) {
	injectGlobals(testLogger())
	e := newEcho(config.ServerConfig{MaxUploadMB: 1})
	e.POST("/upload", func(c echo.Context) error {
		if _, err := c.FormFile("pdfFile"); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
	})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("pdfFile", "big.pdf")
	part.Write(bytes.Repeat([]byte("x"), 2<<20))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for an upload over the limit, got %d", rec.Code)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	injectGlobals(testLogger())
	e := newEcho(config.ServerConfig{MaxUploadMB: 1})
	e.GET("/boom", func(c echo.Context) error {
		panic("handler exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 from a recovered panic, got %d", rec.Code)
	}
}
