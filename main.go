package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

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

// newEcho builds the echo instance with the middleware every deployment uses
func newEcho(serverConfig config.ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// JSON 404s for the API, default handling for everything else
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", serverConfig.MaxUploadMB)))
	return e
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Unable to set up database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	e := newEcho(serverConfig)
	serverHandler := &engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig}
	if err := serverHandler.StartupChecks(); err != nil { //Run all the sanity checks
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}

	store, err := engine.NewArtifactStore(serverConfig)
	if err != nil {
		Logger.Error("Unable to open artifact store", "error", err)
		os.Exit(1)
	}
	registry := session.NewMemoryRegistry()
	hub := progress.NewHub()
	conversion, pageRasterizer, rasterizerName, err := engine.NewPipeline(serverConfig, store, registry, hub, db)
	if err != nil {
		Logger.Error("Unable to set up conversion pipeline", "error", err)
		os.Exit(1)
	}
	defer pageRasterizer.Close()

	serverHandler.Registry = registry
	serverHandler.Store = store
	serverHandler.Pipeline = conversion
	serverHandler.Hub = hub
	serverHandler.RasterizerName = rasterizerName
	serverHandler.RegisterRoutes()

	scheduler := serverHandler.InitializeSchedules() //initialize all the cron jobs
	Logger.Info("Schedules initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}
	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	go func() {
		Logger.Info("Starting HTTP server", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	Logger.Info("Shutting down")
	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.PageTimeout+10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		Logger.Error("Server shutdown failed", "error", err)
	}
}
