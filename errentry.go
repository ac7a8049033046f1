package kiroku

import "github.com/ashita-ai/kiroku/internal/sanitize"

// ErrorConfig configures a new error entry.
type ErrorConfig struct {
	ID       string
	Name     string
	Message  string
	Code     string
	Type     string
	Tags     map[string]string
	Metadata map[string]any
}

// ErrorEntry records a failure that is not tied to a specific generation or
// tool call: a guardrail rejection, a pipeline bug, a dependency outage.
// Error entries are point-in-time records created through a parent's Error
// factory.
type ErrorEntry struct {
	*container
	message string
	code    string
	typ     string
}

func newErrorEntry(cfg ErrorConfig, spanID string, w *Writer) (*ErrorEntry, error) {
	c, err := newContainer(EntityError, cfg.ID, cfg.Name, spanID, cfg.Tags, w)
	if err != nil {
		return nil, err
	}
	return &ErrorEntry{container: c, message: cfg.Message, code: cfg.Code, typ: cfg.Type}, nil
}

// newErrorChild creates an error entry under a parent container: the parent
// emits one add-error commit embedding the child's snapshot. The config's
// metadata rides along in the same commit.
func newErrorChild(w *Writer, parent EntityKind, parentID string, cfg ErrorConfig, spanID string) (*ErrorEntry, error) {
	e, err := newErrorEntry(cfg, spanID, w)
	if err != nil {
		return nil, err
	}
	payload := e.Data()
	payload["id"] = e.id
	if len(cfg.Metadata) > 0 {
		payload["metadata"] = sanitize.Map(cfg.Metadata)
	}
	commitEntry(w, parent, parentID, ActionAddError, payload)
	return e, nil
}

// Message returns the error message. Immutable.
func (e *ErrorEntry) Message() string { return e.message }

// Code returns the error code, if any. Immutable.
func (e *ErrorEntry) Code() string { return e.code }

// Type returns the error type, if any. Immutable.
func (e *ErrorEntry) Type() string { return e.typ }

// Data returns the error snapshot: base container fields plus message, code,
// and type.
func (e *ErrorEntry) Data() map[string]any {
	d := e.container.Data()
	d["message"] = e.message
	if e.code != "" {
		d["code"] = e.code
	}
	if e.typ != "" {
		d["type"] = e.typ
	}
	return d
}
