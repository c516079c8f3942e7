package pdftest

import (
	"context"
	"fmt"
	"image/color"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

var markerPattern = regexp.MustCompile(`MARKER-(\d+)`)

// MarkerEngine is a rasterizer engine for tests. It reads the marker of the
// page it is given and writes a PNG that is 100*k pixels wide for MARKER-k,
// so a raster can be traced back to the exact source page.
type MarkerEngine struct {
	// Fail makes Render return the error for pages carrying the marker
	Fail map[string]error
	// NoOutput makes Render succeed without writing anything
	NoOutput map[string]bool
	// Panic makes Render panic for pages carrying the marker
	Panic map[string]bool
	// Delay is waited before writing, honouring ctx
	Delay time.Duration

	mu        sync.Mutex
	active    int
	maxActive int
	calls     int
}

const MarkerHeight = 50

// WidthFor is the raster width MarkerEngine produces for MARKER-k
func WidthFor(k int) int { return 100 * k }

func (e *MarkerEngine) Name() string { return "marker" }

func (e *MarkerEngine) Render(ctx context.Context, srcPDF, outPath string, dpi float64) error {
	e.mu.Lock()
	e.calls++
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	texts, err := PageTexts(srcPDF)
	if err != nil {
		return err
	}
	if len(texts) != 1 {
		return fmt.Errorf("expected a single page document, got %d pages", len(texts))
	}
	match := markerPattern.FindStringSubmatch(texts[0])
	if match == nil {
		return fmt.Errorf("no marker on page")
	}
	marker := match[0]
	k, _ := strconv.Atoi(match[1])

	if e.Panic[marker] {
		panic("marker engine asked to panic on " + marker)
	}
	if err := e.Fail[marker]; err != nil {
		return err
	}

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.NoOutput[marker] {
		return nil
	}

	img := imaging.New(WidthFor(k), MarkerHeight, color.NRGBA{R: uint8(k), A: 255})
	return imaging.Save(img, outPath)
}

func (e *MarkerEngine) Close() error { return nil }

// MaxConcurrent is the highest number of overlapping Render calls seen
func (e *MarkerEngine) MaxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxActive
}

// Calls is the number of Render calls made
func (e *MarkerEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
