package kiroku

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngMagic)
}

func TestExtractAttachmentsDecodesDataURIs(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: []ContentPart{
			{Type: "text", Text: "what is in this picture?"},
			{Type: "image_url", ImageURL: &ImageURL{URL: pngDataURI()}},
		}},
	}

	rewritten, attachments := extractAttachments(messages)

	require.Len(t, attachments, 1)
	att := attachments[0]
	assert.Equal(t, AttachmentData, att.Type)
	assert.Equal(t, pngMagic, att.Data)
	assert.Equal(t, "image/png", att.MimeType)
	assert.Equal(t, map[string]string{"attachedTo": "input"}, att.Tags)
	assert.NotEmpty(t, att.ID)

	// The surviving lone text part collapses to a plain string.
	require.Len(t, rewritten, 1)
	assert.Equal(t, "what is in this picture?", rewritten[0].Content)
}

func TestExtractAttachmentsConvertsRemoteURLs(t *testing.T) {
	messages := []Message{
		{Role: "assistant", Content: []ContentPart{
			{Type: "image_url", ImageURL: &ImageURL{URL: "https://cdn.example.com/chart.png"}},
		}},
	}

	rewritten, attachments := extractAttachments(messages)

	require.Len(t, attachments, 1)
	assert.Equal(t, AttachmentURL, attachments[0].Type)
	assert.Equal(t, "https://cdn.example.com/chart.png", attachments[0].URL)
	// Assistant messages attach to the output side.
	assert.Equal(t, map[string]string{"attachedTo": "output"}, attachments[0].Tags)

	// An all-image message becomes the empty string, not nil.
	require.Len(t, rewritten, 1)
	assert.Equal(t, "", rewritten[0].Content)
}

func TestExtractAttachmentsKeepsUnparseableParts(t *testing.T) {
	bad := &ImageURL{URL: "data:image/png;base64,!!!not-base64!!!"}
	messages := []Message{
		{Role: "user", Content: []ContentPart{
			{Type: "image_url", ImageURL: bad},
			{Type: "text", Text: "hello"},
		}},
	}

	rewritten, attachments := extractAttachments(messages)

	assert.Empty(t, attachments)
	parts, ok := rewritten[0].Content.([]ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, bad, parts[0].ImageURL)
}

func TestExtractAttachmentsDoesNotMutateInput(t *testing.T) {
	original := []Message{
		{Role: "user", Content: []ContentPart{
			{Type: "text", Text: "caption this"},
			{Type: "image_url", ImageURL: &ImageURL{URL: pngDataURI()}},
		}},
	}

	_, _ = extractAttachments(original)

	parts := original[0].Content.([]ContentPart)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].Type)
}

func TestExtractAttachmentsPassesPlainStringsThrough(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "you are a helpful assistant"},
		{Role: "user", Content: "hi"},
	}

	rewritten, attachments := extractAttachments(messages)

	assert.Empty(t, attachments)
	assert.Equal(t, messages, rewritten)
}

func TestParseDataURIDefaultsMimeType(t *testing.T) {
	mimeType, data, ok := parseDataURI("data:;base64," + base64.StdEncoding.EncodeToString([]byte("hi")))
	require.True(t, ok)
	assert.Equal(t, "text/plain", mimeType)
	assert.Equal(t, []byte("hi"), data)

	// Non-base64 data URIs are not extracted.
	_, _, ok = parseDataURI("data:text/plain,hello")
	assert.False(t, ok)
}

func TestGenerationAddMessagesUploadsExtractedAttachments(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	gen, err := trace.Generation(GenerationConfig{Model: "gpt-4o"})
	require.NoError(t, err)

	gen.AddMessages(Message{Role: "user", Content: []ContentPart{
		{Type: "text", Text: "and this one?"},
		{Type: "image_url", ImageURL: &ImageURL{URL: pngDataURI()}},
	}})

	got := flushed(t, w, mt)
	require.Len(t, got, 4) // trace create, add-generation, messages update, upload-attachment

	update := got[2]
	assert.Equal(t, ActionUpdate, update.Action())
	msgs, ok := update.Data()["messages"].([]Message)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "and this one?", msgs[0].Content)

	upload := got[3]
	assert.Equal(t, ActionUploadAttachment, upload.Action())
	assert.Equal(t, EntityGeneration, upload.Entity())
	assert.Equal(t, gen.ID(), upload.ID())
	data := upload.Data()
	assert.Equal(t, AttachmentData, data["type"])
	assert.Equal(t, "image/png", data["mimeType"])
}
