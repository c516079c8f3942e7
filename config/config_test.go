package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckExecutable_ValidPath(t *testing.T) {
	tempDir := t.TempDir()
	validExe := filepath.Join(tempDir, "pdftoppm")

	file, err := os.Create(validExe)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	file.Close()

	err = os.Chmod(validExe, 0755)
	if err != nil {
		t.Fatalf("Failed to chmod file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	err = checkExecutable(validExe, logger)
	if err != nil {
		t.Errorf("Expected no error with valid path, got: %v", err)
	}
}

func TestCheckExecutable_InvalidPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	err := checkExecutable("/nonexistent/path/to/pdftoppm", logger)
	if err == nil {
		t.Error("Expected error with invalid path, got nil")
	}
	t.Logf("Correctly returned error for invalid path: %v", err)
}

func TestCheckExecutable_Directory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := checkExecutable(t.TempDir(), logger); err == nil {
		t.Error("Expected error when executable path is a directory")
	}
}

func TestSetupServer_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("CONVERSION_WORKERS", "0")

	cfg, logger := SetupServer()
	if logger == nil {
		t.Fatal("Expected a logger")
	}

	if cfg.ListenAddrPort != "3000" {
		t.Errorf("Expected default port 3000, got %s", cfg.ListenAddrPort)
	}
	if cfg.Rasterizer != RasterizerFitz {
		t.Errorf("Expected fitz rasterizer by default, got %s", cfg.Rasterizer)
	}
	if cfg.RasterDPI != 144 {
		t.Errorf("Expected 144 dpi, got %v", cfg.RasterDPI)
	}
	if cfg.ThumbnailMaxDim != 200 {
		t.Errorf("Expected thumbnail max dimension 200, got %d", cfg.ThumbnailMaxDim)
	}
	if cfg.ConversionWorkers != 1 {
		t.Errorf("Expected worker count clamped to 1, got %d", cfg.ConversionWorkers)
	}
	if cfg.PageTimeout != 120*time.Second {
		t.Errorf("Expected 120s page timeout, got %v", cfg.PageTimeout)
	}
	if !filepath.IsAbs(cfg.HighResPath) || filepath.Base(cfg.HighResPath) != "highres" {
		t.Errorf("Expected absolute highres path, got %s", cfg.HighResPath)
	}
	if filepath.Base(cfg.ThumbnailPath) != "thumbnails" {
		t.Errorf("Expected thumbnails dir, got %s", cfg.ThumbnailPath)
	}
}

func TestSetupServer_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("RASTERIZER", RasterizerPDFium)
	t.Setenv("RASTER_DPI", "300")
	t.Setenv("CONVERSION_WORKERS", "3")
	t.Setenv("PAGE_TIMEOUT_SECONDS", "not-a-number")

	cfg, _ := SetupServer()

	if cfg.ListenAddrPort != "9100" {
		t.Errorf("Expected port 9100, got %s", cfg.ListenAddrPort)
	}
	if cfg.Rasterizer != RasterizerPDFium {
		t.Errorf("Expected pdfium rasterizer, got %s", cfg.Rasterizer)
	}
	if cfg.RasterDPI != 300 {
		t.Errorf("Expected 300 dpi, got %v", cfg.RasterDPI)
	}
	if cfg.ConversionWorkers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.ConversionWorkers)
	}
	if cfg.PageTimeout != 120*time.Second {
		t.Errorf("Expected invalid timeout to fall back to default, got %v", cfg.PageTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := ServerConfig{Rasterizer: RasterizerFitz, RasterDPI: 144, ThumbnailMaxDim: 200}

	if err := base.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	unknown := base
	unknown.Rasterizer = "ghostscript"
	if err := unknown.Validate(); err == nil {
		t.Error("Expected error for unknown rasterizer")
	}

	missingTool := base
	missingTool.Rasterizer = RasterizerPdftoppm
	missingTool.PdftoppmPath = "/nonexistent/pdftoppm"
	if err := missingTool.Validate(); err == nil {
		t.Error("Expected error for missing pdftoppm executable")
	}

	badDPI := base
	badDPI.RasterDPI = 0
	if err := badDPI.Validate(); err == nil {
		t.Error("Expected error for zero dpi")
	}
}
