package kiroku

import (
	"encoding/base64"
	"strings"
)

// Message is one chat message in a generation's history. Content is either
// a plain string or a []ContentPart for multimodal messages, mirroring the
// shape LLM provider APIs use.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference: a remote URL or a base64 data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// extractAttachments rewrites messages so that inline images travel as
// standalone attachments instead of bloating the message payload:
//
//   - base64 data-URI images decode into fileData attachments,
//   - plain image URLs become url attachments,
//
// each tagged attachedTo input or output from the message role. Extracted
// parts are stripped; a single surviving text part collapses to a plain
// string, and an all-image message becomes the empty string (not nil) so
// the message shape stays stable for the backend.
//
// Pure: the input slice and its parts are never mutated; the returned
// messages are fresh copies.
func extractAttachments(messages []Message) ([]Message, []Attachment) {
	out := make([]Message, len(messages))
	var attachments []Attachment

	for i, msg := range messages {
		parts, ok := msg.Content.([]ContentPart)
		if !ok {
			out[i] = Message{Role: msg.Role, Content: msg.Content}
			continue
		}

		direction := "input"
		if msg.Role == "assistant" {
			direction = "output"
		}

		var kept []ContentPart
		for _, part := range parts {
			if part.Type != "image_url" || part.ImageURL == nil {
				kept = append(kept, part)
				continue
			}

			if att, ok := imageAttachment(part.ImageURL.URL, direction); ok {
				attachments = append(attachments, att)
				continue
			}
			// Unparseable image reference: keep the part untouched rather
			// than dropping user data.
			kept = append(kept, part)
		}

		out[i] = Message{Role: msg.Role, Content: collapseParts(kept)}
	}

	return out, attachments
}

// imageAttachment converts an image reference into an attachment. Returns
// false when the reference is a data URI that cannot be decoded.
func imageAttachment(ref, direction string) (Attachment, bool) {
	if !strings.HasPrefix(ref, "data:") {
		att := NewURLAttachment(ref)
		att.Tags = map[string]string{"attachedTo": direction}
		return att, true
	}

	mimeType, data, ok := parseDataURI(ref)
	if !ok {
		return Attachment{}, false
	}
	att := NewDataAttachment(data)
	att.MimeType = mimeType
	att.Tags = map[string]string{"attachedTo": direction}
	return att, true
}

// parseDataURI decodes a "data:<mime>;base64,<payload>" URI. Non-base64
// data URIs are not extracted.
func parseDataURI(uri string) (mimeType string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", nil, false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", nil, false
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	if meta == "" {
		meta = "text/plain"
	}
	return meta, decoded, true
}

// collapseParts normalizes what is left of a multimodal message after
// extraction.
func collapseParts(parts []ContentPart) any {
	switch {
	case len(parts) == 0:
		return ""
	case len(parts) == 1 && parts[0].Type == "text":
		return parts[0].Text
	default:
		return parts
	}
}
