package kiroku

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAttachmentEnrichment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("quarterly numbers\n"), 0o600))

	att := NewFileAttachment(path).enriched()

	assert.Equal(t, "report.txt", att.Name)
	assert.Equal(t, int64(18), att.Size)
	assert.Contains(t, att.MimeType, "text/plain")
}

func TestFileAttachmentMissingFileStillUploads(t *testing.T) {
	att := NewFileAttachment("/does/not/exist.pdf").enriched()

	// Enrichment failures leave fields best-effort; the commit still goes out.
	assert.Equal(t, "exist.pdf", att.Name)
	assert.Equal(t, int64(0), att.Size)
	assert.Equal(t, "application/pdf", att.MimeType)

	data := att.toData()
	assert.Equal(t, "/does/not/exist.pdf", data["path"])
	assert.NotContains(t, data, "size")
}

func TestDataAttachmentSniffsContentType(t *testing.T) {
	att := NewDataAttachment(pngMagic).enriched()

	assert.Equal(t, int64(len(pngMagic)), att.Size)
	assert.Equal(t, "image/png", att.MimeType)
}

func TestURLAttachmentDerivesNameAndMime(t *testing.T) {
	att := NewURLAttachment("https://cdn.example.com/assets/logo.png?v=3").enriched()

	assert.Equal(t, "logo.png", att.Name)
	assert.Equal(t, "image/png", att.MimeType)

	data := att.toData()
	assert.Equal(t, "https://cdn.example.com/assets/logo.png?v=3", data["url"])
	assert.NotContains(t, data, "path")
}

func TestURLAttachmentRootPathHasNoName(t *testing.T) {
	att := NewURLAttachment("https://example.com/").enriched()
	assert.Empty(t, att.Name)
}

func TestUploadAttachmentCommit(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)

	att := NewURLAttachment("https://example.com/doc.pdf")
	att.Tags = map[string]string{"source": "crawler"}
	att.Metadata = map[string]any{"pages": 12}
	trace.AddAttachment(att)

	got := flushed(t, w, mt)
	require.Len(t, got, 2)

	upload := got[1]
	assert.Equal(t, ActionUploadAttachment, upload.Action())
	assert.Equal(t, trace.ID(), upload.ID())
	data := upload.Data()
	assert.Equal(t, att.ID, data["id"])
	assert.Equal(t, AttachmentURL, data["type"])
	assert.Equal(t, "doc.pdf", data["name"])
	assert.Equal(t, map[string]string{"source": "crawler"}, data["tags"])
	assert.Equal(t, map[string]any{"pages": 12}, data["metadata"])
}
