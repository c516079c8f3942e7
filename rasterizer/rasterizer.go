// Package rasterizer turns one single-page sub-document into a high
// resolution PNG and a thumbnail through a pluggable Engine.
package rasterizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/timaxleno1/planipro/artifact"
	"github.com/timaxleno1/planipro/splitter"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

var (
	// ErrPageConversionFailed matches every *PageError
	ErrPageConversionFailed = errors.New("page conversion failed")
	// ErrExternalToolOutputMissing means the engine returned without writing its declared output
	ErrExternalToolOutputMissing = errors.New("external tool produced no output")
)

// DefaultDPI matches a render scale of 2.0
const DefaultDPI = 144

// DefaultThumbnailMaxDim bounds the longer side of a thumbnail
const DefaultThumbnailMaxDim = 200

// PageError reports the failure of a single page
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

func (e *PageError) Is(target error) bool { return target == ErrPageConversionFailed }

// Raster is the high resolution image of a page
type Raster struct {
	DocumentName string
	PageNumber   int
	Path         string
	URL          string
	Width        int
	Height       int
}

type Thumbnail struct {
	DocumentName string
	PageNumber   int
	Path         string
	URL          string
}

// Result is what one successful page conversion leaves behind
type Result struct {
	Raster    Raster
	Thumbnail Thumbnail
}

type Options struct {
	DPI             float64
	ThumbnailMaxDim int
}

// Rasterizer converts pages one at a time; it is safe to call Rasterize
// concurrently for different pages.
type Rasterizer struct {
	engine   Engine
	store    *artifact.Store
	dpi      float64
	thumbMax int
}

func New(engine Engine, store *artifact.Store, opts Options) *Rasterizer {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.ThumbnailMaxDim <= 0 {
		opts.ThumbnailMaxDim = DefaultThumbnailMaxDim
	}
	return &Rasterizer{engine: engine, store: store, dpi: opts.DPI, thumbMax: opts.ThumbnailMaxDim}
}

// Rasterize renders the page into its deterministic raster and thumbnail
// paths. The sub-document and the scratch directory are gone when it
// returns, whatever the outcome. Running it again for the same page
// overwrites the previous artifacts.
func (r *Rasterizer) Rasterize(ctx context.Context, page splitter.Page) (Result, error) {
	doc, n := page.DocumentName, page.PageNumber
	logCtx := Logger.With("document", doc, "page", n, "engine", r.engine.Name())

	defer func() {
		if err := r.store.Delete(artifact.KindPage, doc, n); err != nil {
			logCtx.Warn("Unable to remove page sub-document", "error", err)
		}
	}()

	fail := func(err error) (Result, error) {
		logCtx.Warn("Page conversion failed", "error", err)
		return Result{}, &PageError{Page: n, Err: err}
	}

	scratch, err := r.store.ScratchDir(doc, n)
	if err != nil {
		return fail(err)
	}
	defer os.RemoveAll(scratch)

	declared := filepath.Join(scratch, "render.png")
	if err := r.engine.Render(ctx, page.SourcePagePath, declared, r.dpi); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if info, err := os.Stat(declared); err != nil || info.IsDir() {
		return fail(fmt.Errorf("%w: %s", ErrExternalToolOutputMissing, declared))
	}

	img, err := imaging.Open(declared)
	if err != nil {
		return fail(fmt.Errorf("unable to decode rendered page: %w", err))
	}
	bounds := img.Bounds()

	rasterPath, err := r.store.Adopt(artifact.KindRaster, doc, n, declared)
	if err != nil {
		return fail(err)
	}

	thumb := imaging.Fit(img, r.thumbMax, r.thumbMax, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		r.discard(logCtx, artifact.KindRaster, doc, n)
		return fail(fmt.Errorf("unable to encode thumbnail: %w", err))
	}
	thumbPath, err := r.store.Write(artifact.KindThumbnail, doc, n, &buf)
	if err != nil {
		r.discard(logCtx, artifact.KindRaster, doc, n)
		return fail(err)
	}

	logCtx.Debug("Page rasterized", "width", bounds.Dx(), "height", bounds.Dy())
	return Result{
		Raster: Raster{
			DocumentName: doc,
			PageNumber:   n,
			Path:         rasterPath,
			URL:          artifact.URL(artifact.KindRaster, doc, n),
			Width:        bounds.Dx(),
			Height:       bounds.Dy(),
		},
		Thumbnail: Thumbnail{
			DocumentName: doc,
			PageNumber:   n,
			Path:         thumbPath,
			URL:          artifact.URL(artifact.KindThumbnail, doc, n),
		},
	}, nil
}

// discard removes an artifact of a page that is being rolled back
func (r *Rasterizer) discard(logCtx *slog.Logger, kind artifact.Kind, doc string, n int) {
	if err := r.store.Delete(kind, doc, n); err != nil {
		logCtx.Warn("Unable to roll back artifact", "kind", kind, "error", err)
	}
}

// Close releases the engine
func (r *Rasterizer) Close() error {
	return r.engine.Close()
}
