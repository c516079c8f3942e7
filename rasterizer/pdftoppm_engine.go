package rasterizer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// PdftoppmEngine shells out to poppler's pdftoppm
type PdftoppmEngine struct {
	Path string
}

func NewPdftoppmEngine(path string) *PdftoppmEngine {
	return &PdftoppmEngine{Path: path}
}

func (e *PdftoppmEngine) Name() string { return "pdftoppm" }

// Render asks pdftoppm for exactly one file. With -singlefile the tool
// appends ".png" to the prefix it is given, so the prefix is outPath minus
// its extension.
func (e *PdftoppmEngine) Render(ctx context.Context, srcPDF, outPath string, dpi float64) error {
	if !strings.HasSuffix(outPath, ".png") {
		return fmt.Errorf("pdftoppm output must end in .png: %s", outPath)
	}
	prefix := strings.TrimSuffix(outPath, ".png")

	cmd := exec.CommandContext(ctx, e.Path,
		"-png",
		"-singlefile",
		"-f", "1", "-l", "1",
		"-r", strconv.FormatFloat(dpi, 'f', -1, 64),
		srcPDF, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	Logger.Debug("Running pdftoppm", "args", cmd.Args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (e *PdftoppmEngine) Close() error {
	return nil
}
