// Command convert runs the conversion pipeline on local PDF files without the
// HTTP server. Artifacts land in the configured directories and manifest, so
// the server lists them like any uploaded document.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/timaxleno1/planipro/artifact"
	config "github.com/timaxleno1/planipro/config"
	database "github.com/timaxleno1/planipro/database"
	engine "github.com/timaxleno1/planipro/engine"
	"github.com/timaxleno1/planipro/pipeline"
	"github.com/timaxleno1/planipro/progress"
	"github.com/timaxleno1/planipro/rasterizer"
	"github.com/timaxleno1/planipro/session"
	"github.com/timaxleno1/planipro/splitter"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	database.Logger = Logger
	engine.Logger = Logger
	artifact.Logger = Logger
	session.Logger = Logger
	progress.Logger = Logger
	splitter.Logger = Logger
	rasterizer.Logger = Logger
	pipeline.Logger = Logger
}

// consoleBroadcaster prints the pipeline's events as they happen
type consoleBroadcaster struct{}

func (consoleBroadcaster) Emit(sessionID, event string, payload any) {
	switch p := payload.(type) {
	case progress.ConversionStarted:
		fmt.Printf("%s: %d pages\n", sessionID, p.TotalPages)
	case progress.ThumbnailGenerated:
		fmt.Printf("%s: page %d -> %s (%dx%d)\n", sessionID, p.Page, p.HighRes, p.Width, p.Height)
	case progress.PageConversionError:
		fmt.Printf("%s: page %d failed: %s\n", sessionID, p.Page, p.Error)
	case progress.OverallProgress:
		fmt.Printf("%s: %.0f%%\n", sessionID, p.PercentComplete)
	case progress.FatalError:
		fmt.Printf("%s: %s\n", sessionID, p.Message)
	default:
		fmt.Printf("%s: %s\n", sessionID, event)
	}
}

func main() {
	workers := flag.Int("workers", 0, "Pages converted at once (default CONVERSION_WORKERS)")
	engineName := flag.String("rasterizer", "", "Rasterizer engine: fitz, pdfium, pdftoppm or service (default RASTERIZER)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] file.pdf [file.pdf ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger)
	if *workers > 0 {
		serverConfig.ConversionWorkers = *workers
	}
	if *engineName != "" {
		serverConfig.Rasterizer = *engineName
	}
	if err := serverConfig.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Unable to set up database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := engine.NewArtifactStore(serverConfig)
	if err != nil {
		Logger.Error("Unable to open artifact store", "error", err)
		os.Exit(1)
	}
	registry := session.NewMemoryRegistry()
	conversion, pageRasterizer, _, err := engine.NewPipeline(serverConfig, store, registry, consoleBroadcaster{}, db)
	if err != nil {
		Logger.Error("Unable to set up conversion pipeline", "error", err)
		os.Exit(1)
	}
	defer pageRasterizer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failures := 0
	for _, path := range flag.Args() {
		if err := convertFile(ctx, conversion, registry, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failures++
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

// convertFile runs one local file through the pipeline under its own session
func convertFile(ctx context.Context, conversion *pipeline.Pipeline, registry session.Registry, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}
	upload := session.Upload{SourcePath: abs, OriginalFileName: filepath.Base(abs)}
	if err := artifact.ValidateDocumentName(upload.DocumentName()); err != nil {
		return err
	}

	sessionID := strings.TrimSuffix(upload.OriginalFileName, filepath.Ext(upload.OriginalFileName))
	registry.Register(sessionID, upload)
	report, err := conversion.Run(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pipeline.ErrConversionFatal) {
			return fmt.Errorf("not converted: %w", err)
		}
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d pages failed", len(report.Failed), report.TotalPages)
	}
	return nil
}
