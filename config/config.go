package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Rasterizer engine names accepted by RASTERIZER
const (
	RasterizerFitz     = "fitz"
	RasterizerPDFium   = "pdfium"
	RasterizerPdftoppm = "pdftoppm"
	RasterizerService  = "service"
)

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP      string
	ListenAddrPort    string
	DatabaseType      string
	DatabaseHost      string
	DatabasePort      string
	DatabaseUser      string
	DatabasePassword  string `json:"-"`
	DatabaseDbname    string
	DatabaseSslmode   string
	UploadPath        string // absolute path where the blob intake drops source documents
	TempPDFPath       string // absolute path for single page sub-documents
	HighResPath       string
	ThumbnailPath     string
	Rasterizer        string
	RasterDPI         float64
	ThumbnailMaxDim   int
	PdftoppmPath      string
	RasterServiceURL  string
	ConversionWorkers int
	PageTimeout       time.Duration
	SessionTTL        time.Duration
	SweepInterval     int // minutes
	MaxUploadMB       int
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// absPath resolves a configured directory, falling back to the raw value if it can't be made absolute
func absPath(logger *slog.Logger, key, defaultValue string) string {
	rel := filepath.ToSlash(getEnv(key, defaultValue))
	abs, err := filepath.Abs(rel)
	if err != nil {
		logger.Error("Failed creating absolute path", "key", key, "path", rel, "error", err)
		return rel
	}
	return abs
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "3000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "planipro")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "databases/planipro.sqlite")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")
	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	serverConfigLive.UploadPath = absPath(logger, "UPLOAD_PATH", "uploads")
	serverConfigLive.TempPDFPath = absPath(logger, "TEMP_PDF_PATH", "tempPDFs")
	serverConfigLive.HighResPath = absPath(logger, "HIGHRES_PATH", "highres")
	serverConfigLive.ThumbnailPath = absPath(logger, "THUMBNAIL_PATH", "thumbnails")

	serverConfigLive.Rasterizer = getEnv("RASTERIZER", RasterizerFitz)
	serverConfigLive.RasterDPI = getEnvFloat("RASTER_DPI", 144) // poppler scale 2.0
	serverConfigLive.ThumbnailMaxDim = getEnvInt("THUMBNAIL_MAX_DIMENSION", 200)
	serverConfigLive.PdftoppmPath = getEnv("PDFTOPPM_PATH", "/usr/bin/pdftoppm")
	serverConfigLive.RasterServiceURL = getEnv("RASTER_SERVICE_URL", "http://localhost:8002")

	serverConfigLive.ConversionWorkers = getEnvInt("CONVERSION_WORKERS", runtime.NumCPU())
	if serverConfigLive.ConversionWorkers < 1 {
		serverConfigLive.ConversionWorkers = 1
	}
	serverConfigLive.PageTimeout = time.Duration(getEnvInt("PAGE_TIMEOUT_SECONDS", 120)) * time.Second
	serverConfigLive.SessionTTL = time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)) * time.Minute
	serverConfigLive.SweepInterval = getEnvInt("SWEEP_INTERVAL_MINUTES", 10)
	serverConfigLive.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", 64)

	logger.Info("Rasterizer configured",
		"engine", serverConfigLive.Rasterizer,
		"dpi", serverConfigLive.RasterDPI,
		"workers", serverConfigLive.ConversionWorkers,
		"pageTimeout", serverConfigLive.PageTimeout)

	fmt.Println("\n========================================")
	fmt.Println("   planipro - plan page converter")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "planipro.log"))

	return serverConfigLive, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	var level slog.Level
	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	var logWriter io.Writer = os.Stdout
	if getEnv("LOG_OUTPUT", "stdout") == "file" {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "planipro.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	return slog.New(slog.NewTextHandler(logWriter, handlerOptions))
}

// checkExecutable verifies that an executable exists at the given path
func checkExecutable(path string, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		logger.Error("Cannot find executable at location specified", "path", path)
		return err
	}
	if info.IsDir() {
		logger.Error("Executable path is a directory", "path", path)
		return fmt.Errorf("%s is a directory", path)
	}
	logger.Debug("Executable found", "path", path)
	return nil
}

// Validate checks settings that would otherwise only fail on the first conversion
func (c ServerConfig) Validate() error {
	switch c.Rasterizer {
	case RasterizerFitz, RasterizerPDFium:
	case RasterizerPdftoppm:
		if err := checkExecutable(c.PdftoppmPath, Logger); err != nil {
			return fmt.Errorf("pdftoppm rasterizer selected: %w", err)
		}
	case RasterizerService:
		if c.RasterServiceURL == "" {
			return fmt.Errorf("service rasterizer selected but RASTER_SERVICE_URL is empty")
		}
	default:
		return fmt.Errorf("unknown rasterizer %q (supported: fitz, pdfium, pdftoppm, service)", c.Rasterizer)
	}
	if c.RasterDPI <= 0 {
		return fmt.Errorf("raster dpi must be positive, got %v", c.RasterDPI)
	}
	if c.ThumbnailMaxDim <= 0 {
		return fmt.Errorf("thumbnail max dimension must be positive, got %d", c.ThumbnailMaxDim)
	}
	return nil
}
