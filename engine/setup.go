package engine

import (
	"fmt"

	"github.com/timaxleno1/planipro/artifact"
	"github.com/timaxleno1/planipro/config"
	"github.com/timaxleno1/planipro/database"
	"github.com/timaxleno1/planipro/pipeline"
	"github.com/timaxleno1/planipro/progress"
	"github.com/timaxleno1/planipro/rasterizer"
	"github.com/timaxleno1/planipro/session"
	"github.com/timaxleno1/planipro/splitter"
)

// NewArtifactStore opens the artifact store over the configured directories
func NewArtifactStore(serverConfig config.ServerConfig) (*artifact.Store, error) {
	return artifact.NewStore(artifact.Layout{
		PageDir:      serverConfig.TempPDFPath,
		RasterDir:    serverConfig.HighResPath,
		ThumbnailDir: serverConfig.ThumbnailPath,
	})
}

// NewPipeline assembles a conversion pipeline around the configured
// rasterizer engine. The caller closes the returned rasterizer.
func NewPipeline(serverConfig config.ServerConfig, store *artifact.Store, registry session.Registry,
	broadcaster progress.Broadcaster, repo database.Repository) (*pipeline.Pipeline, *rasterizer.Rasterizer, string, error) {
	rasterEngine, err := rasterizer.NewEngine(serverConfig)
	if err != nil {
		return nil, nil, "", fmt.Errorf("unable to start rasterizer: %w", err)
	}
	pageRasterizer := rasterizer.New(rasterEngine, store, rasterizer.Options{
		DPI:             serverConfig.RasterDPI,
		ThumbnailMaxDim: serverConfig.ThumbnailMaxDim,
	})
	Logger.Info("Rasterizer ready", "engine", rasterEngine.Name(), "dpi", serverConfig.RasterDPI,
		"workers", serverConfig.ConversionWorkers)

	return &pipeline.Pipeline{
		Registry:    registry,
		Splitter:    splitter.New(store),
		Rasterizer:  pageRasterizer,
		Broadcaster: broadcaster,
		Manifest:    repo,
		Jobs:        repo,
		Workers:     serverConfig.ConversionWorkers,
		PageTimeout: serverConfig.PageTimeout,
	}, pageRasterizer, rasterEngine.Name(), nil
}
