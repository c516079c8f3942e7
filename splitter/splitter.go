package splitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/timaxleno1/planipro/artifact"
	"github.com/timaxleno1/planipro/session"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

var (
	ErrSourceDocumentCorrupt = errors.New("source document is not a readable PDF")
	ErrEmptyDocument         = errors.New("source document has no pages")
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home
	api.DisableConfigDir()
}

// Page is one single-page sub-document cut from an upload. It is temporary:
// whoever rasterizes it deletes it.
type Page struct {
	DocumentName   string
	PageNumber     int
	SourcePagePath string
}

// Splitter cuts a source PDF into one sub-document per page
type Splitter struct {
	store *artifact.Store
	conf  *model.Configuration
}

// New returns a splitter writing its pages into the store's page directory
func New(store *artifact.Store) *Splitter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return &Splitter{store: store, conf: conf}
}

func checkPageCount(n int) error {
	if n < 1 {
		return ErrEmptyDocument
	}
	return nil
}

// Split writes <doc>-page-<n>.pdf for every page of the upload and returns
// them in page order. Pages are written one at a time. When anything fails
// part way, the pages already written are removed again.
func (s *Splitter) Split(ctx context.Context, upload session.Upload) ([]Page, error) {
	documentName := upload.DocumentName()
	logCtx := Logger.With("document", documentName)

	src, err := os.ReadFile(upload.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("unable to read source %s: %w", upload.SourcePath, err)
	}

	count, err := api.PageCount(bytes.NewReader(src), s.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceDocumentCorrupt, err)
	}
	if err := checkPageCount(count); err != nil {
		return nil, err
	}
	logCtx.Info("Splitting document", "pages", count)

	pages := make([]Page, 0, count)
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			s.removePages(pages)
			return nil, err
		}

		var out bytes.Buffer
		if err := api.Trim(bytes.NewReader(src), &out, []string{strconv.Itoa(n)}, s.conf); err != nil {
			s.removePages(pages)
			return nil, fmt.Errorf("%w: page %d: %v", ErrSourceDocumentCorrupt, n, err)
		}

		path, err := s.store.Write(artifact.KindPage, documentName, n, &out)
		if err != nil {
			s.removePages(pages)
			return nil, fmt.Errorf("unable to store page %d: %w", n, err)
		}
		pages = append(pages, Page{DocumentName: documentName, PageNumber: n, SourcePagePath: path})
	}

	logCtx.Debug("Document split", "pages", len(pages))
	return pages, nil
}

func (s *Splitter) removePages(pages []Page) {
	for _, p := range pages {
		if err := s.store.Delete(artifact.KindPage, p.DocumentName, p.PageNumber); err != nil {
			Logger.Warn("Unable to remove split page", "path", p.SourcePagePath, "error", err)
		}
	}
}
