package pdftest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.pdf")
	require.NoError(t, WriteFile(path, Markers(3)...))

	texts, err := PageTexts(path)
	require.NoError(t, err)
	require.Len(t, texts, 3)
	for i, text := range texts {
		assert.Contains(t, text, Markers(3)[i])
	}
}

func TestBuildHeaderAndTrailer(t *testing.T) {
	data := string(Build("A"))
	assert.True(t, strings.HasPrefix(data, "%PDF-1.4\n"))
	assert.True(t, strings.HasSuffix(data, "%%EOF\n"))
	assert.Contains(t, data, "/Count 1")
}
