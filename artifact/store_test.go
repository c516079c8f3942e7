package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(Layout{
		PageDir:      filepath.Join(root, "tempPDFs"),
		RasterDir:    filepath.Join(root, "highres"),
		ThumbnailDir: filepath.Join(root, "thumbnails"),
	})
	require.NoError(t, err)
	return store
}

func TestFileNameConvention(t *testing.T) {
	assert.Equal(t, "plan-page-3.pdf", FileName(KindPage, "plan", 3))
	assert.Equal(t, "plan-page-3.png", FileName(KindRaster, "plan", 3))
	assert.Equal(t, "THUMB_plan-page-3.png", FileName(KindThumbnail, "plan", 3))

	assert.Equal(t, "/highres/plan-page-3.png", URL(KindRaster, "plan", 3))
	assert.Equal(t, "/thumbnails/THUMB_plan-page-3.png", URL(KindThumbnail, "plan", 3))
	assert.Empty(t, URL(KindPage, "plan", 3))
}

func TestParseFileNameRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindPage, KindRaster, KindThumbnail} {
		for _, doc := range []string{"plan", "01HZX3", "my-page-doc"} {
			name, page, ok := ParseFileName(kind, FileName(kind, doc, 12))
			require.True(t, ok, "kind %s doc %s", kind, doc)
			assert.Equal(t, doc, name)
			assert.Equal(t, 12, page)
		}
	}
}

func TestParseFileNameRejectsForeignNames(t *testing.T) {
	cases := map[Kind][]string{
		KindThumbnail: {"plan-page-1.png", "THUMB_plan-page-x.png", "THUMB_plan-page-0.png", "THUMB_plan.png", ".tmp-123"},
		KindRaster:    {"plan-page-1.jpg", "plan.png", "notes.txt"},
		KindPage:      {"plan-page-1.png", "plan.pdf"},
	}
	for kind, names := range cases {
		for _, name := range names {
			_, _, ok := ParseFileName(kind, name)
			assert.False(t, ok, "kind %s should reject %s", kind, name)
		}
	}
}

func TestPathRejectsUnsafeDocumentNames(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"", ".", "..", "../escape", `a\b`} {
		_, err := store.Path(KindRaster, name, 1)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}

	_, err := store.Path(KindRaster, "plan", 0)
	assert.Error(t, err)

	_, err = store.Path(Kind("video"), "plan", 1)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestWriteOpenDelete(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Write(KindRaster, "plan", 2, strings.NewReader("raster-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(KindRaster), "plan-page-2.png"), path)
	assert.True(t, store.Exists(KindRaster, "plan", 2))

	f, err := store.Open(KindRaster, "plan", 2)
	require.NoError(t, err)
	data := make([]byte, 64)
	n, _ := f.Read(data)
	f.Close()
	assert.Equal(t, "raster-bytes", string(data[:n]))

	// overwrite is deterministic, no second file appears
	_, err = store.Write(KindRaster, "plan", 2, strings.NewReader("again"))
	require.NoError(t, err)
	refs, err := store.List(KindRaster)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	require.NoError(t, store.Delete(KindRaster, "plan", 2))
	assert.False(t, store.Exists(KindRaster, "plan", 2))

	_, err = store.Open(KindRaster, "plan", 2)
	assert.True(t, errors.Is(err, ErrArtifactNotFound))
}

func TestDeleteMissingIsSuccess(t *testing.T) {
	store := newTestStore(t)

	before, err := os.ReadDir(store.Dir(KindThumbnail))
	require.NoError(t, err)

	assert.NoError(t, store.Delete(KindThumbnail, "plan", 1))
	assert.NoError(t, store.Delete(KindThumbnail, "plan", 1))

	after, err := os.ReadDir(store.Dir(KindThumbnail))
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestListSkipsNonMatchingEntries(t *testing.T) {
	store := newTestStore(t)
	dir := store.Dir(KindThumbnail)

	for _, page := range []int{3, 1, 2} {
		_, err := store.Write(KindThumbnail, "plan", page, strings.NewReader("x"))
		require.NoError(t, err)
	}
	_, err := store.Write(KindThumbnail, "annex", 1, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan-page-9.png"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "THUMB_dir-page-1.png"), 0755))

	refs, err := store.List(KindThumbnail)
	require.NoError(t, err)
	require.Len(t, refs, 4)

	assert.Equal(t, "annex", refs[0].DocumentName)
	for i, page := range []int{1, 2, 3} {
		assert.Equal(t, "plan", refs[i+1].DocumentName)
		assert.Equal(t, page, refs[i+1].Page)
	}
}

func TestAdoptMovesFileIntoPlace(t *testing.T) {
	store := newTestStore(t)
	scratch, err := store.ScratchDir("plan", 4)
	require.NoError(t, err)
	defer os.RemoveAll(scratch)

	src := filepath.Join(scratch, "out.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0644))

	target, err := store.Adopt(KindRaster, "plan", 4, src)
	require.NoError(t, err)
	assert.FileExists(t, target)
	assert.NoFileExists(t, src)
}

func TestScratchDirsAreUniqueAndInvisibleToList(t *testing.T) {
	store := newTestStore(t)

	first, err := store.ScratchDir("plan", 1)
	require.NoError(t, err)
	second, err := store.ScratchDir("plan", 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	refs, err := store.List(KindPage)
	require.NoError(t, err)
	assert.Empty(t, refs)
}
