package rasterizer

import (
	"context"
	"fmt"

	"github.com/timaxleno1/planipro/config"
)

// Engine renders the first page of a single-page PDF to a PNG at outPath.
// Implementations must write exactly outPath; nothing else is looked at.
type Engine interface {
	Name() string
	Render(ctx context.Context, srcPDF, outPath string, dpi float64) error
	// Close cleans up any resources used by the engine
	Close() error
}

// NewEngine builds the engine selected by RASTERIZER
func NewEngine(cfg config.ServerConfig) (Engine, error) {
	switch cfg.Rasterizer {
	case config.RasterizerFitz, "":
		return NewFitzEngine(), nil
	case config.RasterizerPDFium:
		return NewPDFiumEngine(cfg.ConversionWorkers)
	case config.RasterizerPdftoppm:
		return NewPdftoppmEngine(cfg.PdftoppmPath), nil
	case config.RasterizerService:
		return NewServiceEngine(cfg.RasterServiceURL, cfg.PageTimeout), nil
	default:
		return nil, fmt.Errorf("unknown rasterizer %q", cfg.Rasterizer)
	}
}
