package rasterizer

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumEngine renders with go-pdfium on WebAssembly (pure Go, no CGo).
// The pool holds one instance per conversion worker.
type PDFiumEngine struct {
	pool pdfium.Pool
}

func NewPDFiumEngine(workers int) (*PDFiumEngine, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  workers,
		MaxTotal: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}
	return &PDFiumEngine{pool: pool}, nil
}

func (e *PDFiumEngine) Name() string { return "pdfium" }

func (e *PDFiumEngine) Render(ctx context.Context, srcPDF, outPath string, dpi float64) error {
	pdfBytes, err := os.ReadFile(srcPDF)
	if err != nil {
		return fmt.Errorf("unable to read PDF file: %w", err)
	}

	wait := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	instance, err := e.pool.GetInstance(wait)
	if err != nil {
		return fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{File: &pdfBytes})
	if err != nil {
		return fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	pageRender, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: int(math.Round(dpi)),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: doc.Document,
				Index:    0,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to render page: %w", err)
	}
	defer pageRender.Cleanup()

	if err := imaging.Save(pageRender.Result.Image, outPath); err != nil {
		return fmt.Errorf("unable to save rendered page: %w", err)
	}
	return nil
}

func (e *PDFiumEngine) Close() error {
	if e.pool != nil {
		err := e.pool.Close()
		e.pool = nil
		return err
	}
	return nil
}
