package rasterizer

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// FitzEngine renders in process with go-fitz (requires CGo and MuPDF)
type FitzEngine struct {
}

func NewFitzEngine() *FitzEngine {
	return &FitzEngine{}
}

func (e *FitzEngine) Name() string { return "fitz" }

func (e *FitzEngine) Render(ctx context.Context, srcPDF, outPath string, dpi float64) error {
	doc, err := fitz.New(srcPDF)
	if err != nil {
		return fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return fmt.Errorf("%s has no pages", srcPDF)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return fmt.Errorf("unable to render page: %w", err)
	}
	if err := imaging.Save(img, outPath); err != nil {
		return fmt.Errorf("unable to save rendered page: %w", err)
	}
	return nil
}

// Close is a no-op as the document is closed per render
func (e *FitzEngine) Close() error {
	return nil
}
