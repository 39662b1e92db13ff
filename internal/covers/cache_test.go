package covers

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/bookreader/internal/entities"
)

var coverJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 't', 'e', 's', 't'}

func epubWithCover(t *testing.T) string {
	t.Helper()
	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf"/></rootfiles>
</container>`,
		"content.opf": `<package xmlns="http://www.idpf.org/2007/opf">
  <metadata/>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="cov" href="cover.jpg" media-type="image/jpeg" properties="cover-image"/>
  </manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`,
		"ch1.xhtml": `<html><body><p>hi</p></body></html>`,
		"cover.jpg": string(coverJPEG),
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	p := filepath.Join(t.TempDir(), "book.epub")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestExtractAndServeCover(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "covers"))
	require.NoError(t, err)

	_, ok := cache.CoverPath("abc")
	assert.False(t, ok)

	cachePath, err := cache.Extract("abc", epubWithCover(t), entities.FormatEPUB)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache.CacheDir(), "abc.jpg"), cachePath)

	got, ok := cache.CoverPath("abc")
	require.True(t, ok)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, coverJPEG, data)

	// No temp files left behind.
	leftovers, err := filepath.Glob(filepath.Join(cache.CacheDir(), "cover_tmp_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestExtractFromPlainTextHasNoCover(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	_, err = cache.Extract("abc", "/tmp/whatever.txt", entities.FormatTXT)
	assert.ErrorIs(t, err, entities.ErrFormat)
}

func TestInvalidate(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	_, err = cache.Extract("abc", epubWithCover(t), entities.FormatEPUB)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate("abc"))
	_, ok := cache.CoverPath("abc")
	assert.False(t, ok)

	// Invalidating again is a no-op.
	require.NoError(t, cache.Invalidate("abc"))
}
