// Package artifact owns the on-disk layout of everything the conversion
// pipeline produces: single page sub-documents, high resolution rasters and
// thumbnails. Every file name is a pure function of (document name, page
// number), so any component can recompute where an artifact lives.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Kind identifies one family of artifacts
type Kind string

const (
	KindPage      Kind = "page"
	KindRaster    Kind = "raster"
	KindThumbnail Kind = "thumbnail"
)

// ThumbnailPrefix marks a file as a thumbnail
const ThumbnailPrefix = "THUMB_"

var (
	// ErrArtifactNotFound is returned by lookups; Delete never surfaces it
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for document names that can't be used as a file name
	ErrInvalidName = errors.New("invalid document name")
	// ErrUnknownKind is returned for kinds the store has no directory for
	ErrUnknownKind = errors.New("unknown artifact kind")
)

var fileNamePatterns = map[Kind]*regexp.Regexp{
	KindPage:      regexp.MustCompile(`^(.+)-page-(\d+)\.pdf$`),
	KindRaster:    regexp.MustCompile(`^(.+)-page-(\d+)\.png$`),
	KindThumbnail: regexp.MustCompile(`^` + ThumbnailPrefix + `(.+)-page-(\d+)\.png$`),
}

// Layout lists the directories of each artifact kind
type Layout struct {
	PageDir      string
	RasterDir    string
	ThumbnailDir string
}

// Ref identifies one stored artifact
type Ref struct {
	Kind         Kind
	DocumentName string
	Page         int
	Path         string
}

// Store reads and writes artifacts below the configured layout
type Store struct {
	dirs map[Kind]string
}

// NewStore creates the layout directories when missing
func NewStore(layout Layout) (*Store, error) {
	dirs := map[Kind]string{
		KindPage:      layout.PageDir,
		KindRaster:    layout.RasterDir,
		KindThumbnail: layout.ThumbnailDir,
	}
	for kind, dir := range dirs {
		if dir == "" {
			return nil, fmt.Errorf("no directory configured for %s artifacts", kind)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("unable to create %s directory %s: %w", kind, dir, err)
		}
	}
	return &Store{dirs: dirs}, nil
}

// ValidateDocumentName rejects names that would escape the artifact directories
func ValidateDocumentName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileName returns the deterministic file name of an artifact
func FileName(kind Kind, documentName string, page int) string {
	switch kind {
	case KindPage:
		return fmt.Sprintf("%s-page-%d.pdf", documentName, page)
	case KindThumbnail:
		return fmt.Sprintf("%s%s-page-%d.png", ThumbnailPrefix, documentName, page)
	default:
		return fmt.Sprintf("%s-page-%d.png", documentName, page)
	}
}

// ParseFileName recovers the document name and page from a file name of the given kind
func ParseFileName(kind Kind, name string) (documentName string, page int, ok bool) {
	pattern, found := fileNamePatterns[kind]
	if !found {
		return "", 0, false
	}
	match := pattern.FindStringSubmatch(name)
	if match == nil {
		return "", 0, false
	}
	page, err := strconv.Atoi(match[2])
	if err != nil || page < 1 {
		return "", 0, false
	}
	return match[1], page, true
}

func (s *Store) dir(kind Kind) (string, error) {
	dir, ok := s.dirs[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return dir, nil
}

// Dir returns the directory holding artifacts of a kind
func (s *Store) Dir(kind Kind) string {
	return s.dirs[kind]
}

// Path returns where the artifact lives, whether or not it exists yet
func (s *Store) Path(kind Kind, documentName string, page int) (string, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return "", err
	}
	if err := ValidateDocumentName(documentName); err != nil {
		return "", err
	}
	if page < 1 {
		return "", fmt.Errorf("invalid page number %d", page)
	}
	return filepath.Join(dir, FileName(kind, documentName, page)), nil
}

// URL returns the public path an artifact is served under
func URL(kind Kind, documentName string, page int) string {
	switch kind {
	case KindRaster:
		return "/highres/" + FileName(kind, documentName, page)
	case KindThumbnail:
		return "/thumbnails/" + FileName(kind, documentName, page)
	default:
		return ""
	}
}

// Write stores r as the artifact. The content lands under a temporary name
// first so readers never observe a partial file.
func (s *Store) Write(kind Kind, documentName string, page int, r io.Reader) (string, error) {
	target, err := s.Path(kind, documentName, page)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("unable to create temp file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to flush %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to move %s into place: %w", target, err)
	}
	return target, nil
}

// Adopt moves an existing file into the artifact's deterministic location,
// copying when a rename is not possible (different filesystems).
func (s *Store) Adopt(kind Kind, documentName string, page int, srcPath string) (string, error) {
	target, err := s.Path(kind, documentName, page)
	if err != nil {
		return "", err
	}
	if err := os.Rename(srcPath, target); err == nil {
		return target, nil
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("unable to open %s: %w", srcPath, err)
	}
	defer src.Close()
	if _, err := s.Write(kind, documentName, page, src); err != nil {
		return "", err
	}
	if err := os.Remove(srcPath); err != nil {
		Logger.Warn("Unable to remove source after copying artifact", "path", srcPath, "error", err)
	}
	return target, nil
}

// Open opens an artifact for reading
func (s *Store) Open(kind Kind, documentName string, page int) (*os.File, error) {
	path, err := s.Path(kind, documentName, page)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	return f, err
}

// Exists reports whether the artifact is present on disk
func (s *Store) Exists(kind Kind, documentName string, page int) bool {
	path, err := s.Path(kind, documentName, page)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Delete removes the artifact. Deleting something that isn't there succeeds.
func (s *Store) Delete(kind Kind, documentName string, page int) error {
	path, err := s.Path(kind, documentName, page)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err == nil {
		Logger.Debug("Deleted artifact", "kind", kind, "path", path)
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		Logger.Debug("Artifact already absent", "kind", kind, "path", path)
		return nil
	}
	return fmt.Errorf("unable to delete %s: %w", path, err)
}

// List scans the directory of a kind and returns every artifact whose file
// name follows the naming convention, ordered by document name then page.
// Anything else in the directory is skipped.
func (s *Store) List(kind Kind) ([]Ref, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s directory: %w", kind, err)
	}
	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		documentName, page, ok := ParseFileName(kind, entry.Name())
		if !ok {
			Logger.Debug("Skipping file outside naming convention", "kind", kind, "file", entry.Name())
			continue
		}
		refs = append(refs, Ref{
			Kind:         kind,
			DocumentName: documentName,
			Page:         page,
			Path:         filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].DocumentName != refs[j].DocumentName {
			return refs[i].DocumentName < refs[j].DocumentName
		}
		return refs[i].Page < refs[j].Page
	})
	return refs, nil
}

// ScratchDir creates a private working directory for one page conversion.
// Each call gets a fresh directory so retries never see stale output.
func (s *Store) ScratchDir(documentName string, page int) (string, error) {
	if err := ValidateDocumentName(documentName); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(s.dirs[KindPage], fmt.Sprintf(".scratch-%s-page-%d-*", documentName, page))
	if err != nil {
		return "", fmt.Errorf("unable to create scratch directory: %w", err)
	}
	return dir, nil
}
