package kiroku

import (
	"maps"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/ashita-ai/kiroku/internal/ident"
	"github.com/ashita-ai/kiroku/internal/sanitize"
)

// AttachmentType discriminates the attachment union.
type AttachmentType string

const (
	AttachmentFile AttachmentType = "file"     // a path on the local filesystem
	AttachmentData AttachmentType = "fileData" // inline bytes
	AttachmentURL  AttachmentType = "url"      // a remote resource
)

// Attachment is a file, byte buffer, or URL associated with a container.
// Missing Name/MimeType/Size fields are filled in best-effort before upload
// (filesystem stat, content sniffing, URL path parsing); enrichment failures
// are swallowed and leave the field absent.
type Attachment struct {
	ID   string
	Type AttachmentType

	// Exactly one of these is set, per Type.
	Path string
	Data []byte
	URL  string

	Name     string
	MimeType string
	Size     int64

	Tags     map[string]string
	Metadata map[string]any
}

// NewFileAttachment returns an attachment referencing a local file.
func NewFileAttachment(filePath string) Attachment {
	return Attachment{ID: ident.New(), Type: AttachmentFile, Path: filePath}
}

// NewDataAttachment returns an attachment carrying inline bytes.
func NewDataAttachment(data []byte) Attachment {
	return Attachment{ID: ident.New(), Type: AttachmentData, Data: data}
}

// NewURLAttachment returns an attachment referencing a remote resource.
func NewURLAttachment(rawURL string) Attachment {
	return Attachment{ID: ident.New(), Type: AttachmentURL, URL: rawURL}
}

// enriched returns a copy with missing name/mimeType/size populated where
// they can be derived cheaply. Pure with respect to the receiver; the only
// I/O is a stat and a 512-byte sniff read for file attachments.
func (a Attachment) enriched() Attachment {
	if a.ID == "" {
		a.ID = ident.New()
	}

	switch a.Type {
	case AttachmentFile:
		if a.Name == "" && a.Path != "" {
			a.Name = filepath.Base(a.Path)
		}
		if info, err := os.Stat(a.Path); err == nil && a.Size == 0 {
			a.Size = info.Size()
		}
		if a.MimeType == "" {
			a.MimeType = sniffFile(a.Path)
		}

	case AttachmentData:
		if a.Size == 0 {
			a.Size = int64(len(a.Data))
		}
		if a.MimeType == "" && len(a.Data) > 0 {
			a.MimeType = http.DetectContentType(a.Data)
		}

	case AttachmentURL:
		u, err := url.Parse(a.URL)
		if err != nil {
			break
		}
		base := path.Base(u.Path)
		if a.Name == "" && base != "." && base != "/" {
			a.Name = base
		}
		if a.MimeType == "" {
			if ext := path.Ext(u.Path); ext != "" {
				a.MimeType = mime.TypeByExtension(ext)
			}
		}
	}

	return a
}

// sniffFile reads the first 512 bytes and returns the detected content type,
// falling back to the file extension. Returns "" when nothing can be
// determined.
func sniffFile(filePath string) string {
	f, err := os.Open(filePath) //nolint:gosec // the caller chose the path to attach
	if err != nil {
		return mime.TypeByExtension(filepath.Ext(filePath))
	}
	defer f.Close() //nolint:errcheck // read-only file

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return mime.TypeByExtension(filepath.Ext(filePath))
	}

	detected := http.DetectContentType(buf[:n])
	if detected == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(filePath)); byExt != "" {
			return byExt
		}
	}
	return detected
}

// toData builds the commit payload for an upload-attachment commit.
func (a Attachment) toData() map[string]any {
	d := map[string]any{
		"id":   a.ID,
		"type": a.Type,
	}
	switch a.Type {
	case AttachmentFile:
		d["path"] = a.Path
	case AttachmentData:
		d["data"] = a.Data
	case AttachmentURL:
		d["url"] = a.URL
	}
	if a.Name != "" {
		d["name"] = a.Name
	}
	if a.MimeType != "" {
		d["mimeType"] = a.MimeType
	}
	if a.Size > 0 {
		d["size"] = a.Size
	}
	if len(a.Tags) > 0 {
		d["tags"] = maps.Clone(a.Tags)
	}
	if len(a.Metadata) > 0 {
		d["metadata"] = sanitize.Map(a.Metadata)
	}
	return d
}
