package kiroku

import (
	"maps"
	"sync"
	"time"

	"github.com/ashita-ai/kiroku/internal/ident"
	"github.com/ashita-ai/kiroku/internal/sanitize"
)

// container is the state shared by every loggable entity. Concrete kinds
// embed it; its exported methods (AddTag, AddMetadata, End, ...) are
// promoted onto each of them.
//
// Containers never talk to their parent after construction — every mutation
// commits straight to the shared Writer. Nesting exists only for API
// ergonomics and for the snapshots embedded in add-<kind> commits.
type container struct {
	entity EntityKind
	id     string
	spanID string
	start  time.Time
	w      *Writer

	mu   sync.Mutex
	name string
	tags map[string]string
	end  *time.Time
}

// newContainer validates or generates the id and builds the base state.
// It emits nothing; the concrete constructor decides whether a create commit
// or a parent add-<kind> commit records the entity's birth.
func newContainer(entity EntityKind, id, name, spanID string, tags map[string]string, w *Writer) (*container, error) {
	resolved, err := resolveID(w, entity, id)
	if err != nil {
		return nil, err
	}
	return &container{
		entity: entity,
		id:     resolved,
		spanID: spanID,
		start:  ident.Now(),
		w:      w,
		name:   name,
		tags:   maps.Clone(tags),
	}, nil
}

// resolveID applies the dual-mode id policy: empty ids are generated,
// malformed ids either fail (strict mode) or are replaced by a generated id
// with a logged warning (lenient mode, the default).
func resolveID(w *Writer, entity EntityKind, id string) (string, error) {
	if id == "" {
		return ident.New(), nil
	}
	if ident.IsValid(id) {
		return id, nil
	}
	if w.RaiseExceptions() {
		return "", &InvalidIdentifierError{Entity: entity, ID: id}
	}
	generated := ident.New()
	w.log().Warn("kiroku: invalid entity id replaced with generated id",
		"entity", string(entity), "invalid_id", id, "generated_id", generated)
	return generated, nil
}

// ID returns the entity's identifier. Assigned exactly once, at construction.
func (c *container) ID() string { return c.id }

// Kind returns the entity kind.
func (c *container) Kind() EntityKind { return c.entity }

// Name returns the entity's display name.
func (c *container) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SpanID returns the id of the enclosing span, if any. This is a non-owning
// back-reference recorded for the backend, not a live pointer.
func (c *container) SpanID() string { return c.spanID }

// StartTimestamp returns the construction time. Immutable.
func (c *container) StartTimestamp() time.Time { return c.start }

// EndTimestamp returns the end time recorded by the most recent End call,
// or the zero time if the entity has not been ended.
func (c *container) EndTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.end == nil {
		return time.Time{}
	}
	return *c.end
}

// Tags returns a copy of the entity's tags.
func (c *container) Tags() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.tags))
	maps.Copy(out, c.tags)
	return out
}

// AddTag records a tag on the entity. Tags accumulate; repeated keys
// overwrite on the backend.
func (c *container) AddTag(key, value string) {
	c.mu.Lock()
	if c.tags == nil {
		c.tags = make(map[string]string)
	}
	c.tags[key] = value
	c.mu.Unlock()
	addTagEntry(c.w, c.entity, c.id, key, value)
}

// AddMetadata attaches arbitrary metadata to the entity. Values pass through
// cycle-safe sanitization, so a bad value degrades to a placeholder string
// instead of losing the commit.
func (c *container) AddMetadata(metadata map[string]any) {
	addMetadataEntry(c.w, c.entity, c.id, metadata)
}

// End stamps the end timestamp and commits it. End is safe to call more
// than once: each call emits a fresh end commit and the backend keeps the
// last write. The core deliberately performs no terminal-state check —
// instrumentation must never fail on a racy double End.
func (c *container) End() {
	ts := ident.Now()
	c.mu.Lock()
	c.end = &ts
	c.mu.Unlock()
	endEntry(c.w, c.entity, c.id, ts, nil)
}

// Data returns the current snapshot of the base fields. Parents embed this
// snapshot in add-<kind> commits so the backend can materialize a child
// without waiting for the child's own commits.
func (c *container) Data() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := map[string]any{
		"startTimestamp": c.start,
	}
	if c.name != "" {
		d["name"] = c.name
	}
	if c.spanID != "" {
		d["spanId"] = c.spanID
	}
	if len(c.tags) > 0 {
		tags := make(map[string]string, len(c.tags))
		maps.Copy(tags, c.tags)
		d["tags"] = tags
	}
	if c.end != nil {
		d["endTimestamp"] = *c.end
	}
	return d
}

// commit is the single chokepoint through which all of this container's
// state changes reach the Writer. A nil data defaults to the base snapshot.
func (c *container) commit(action string, data map[string]any) {
	if data == nil {
		data = c.Data()
	}
	commitEntry(c.w, c.entity, c.id, action, data)
}

// ---------------------------------------------------------------------------
// Shared emission routines
//
// Every operation — instance method or by-id function — funnels through
// exactly one of these, so the two calling conventions produce identical
// commit payload shapes by construction.
// ---------------------------------------------------------------------------

func commitEntry(w *Writer, entity EntityKind, id, action string, data map[string]any) {
	w.Commit(NewCommitLog(entity, id, action, data))
}

func addTagEntry(w *Writer, entity EntityKind, id, key, value string) {
	commitEntry(w, entity, id, ActionUpdate, map[string]any{
		"tags": map[string]string{key: value},
	})
}

func addMetadataEntry(w *Writer, entity EntityKind, id string, metadata map[string]any) {
	commitEntry(w, entity, id, ActionUpdate, map[string]any{
		"metadata": sanitize.Map(metadata),
	})
}

func endEntry(w *Writer, entity EntityKind, id string, ts time.Time, extra map[string]any) {
	data := map[string]any{"endTimestamp": ts}
	maps.Copy(data, extra)
	commitEntry(w, entity, id, ActionEnd, data)
}

// endNow is the by-id counterpart of container.End: no local state to stamp,
// the end commit alone carries the timestamp.
func endNow(w *Writer, entity EntityKind, id string) {
	endEntry(w, entity, id, ident.Now(), nil)
}

func addEventEntry(w *Writer, entity EntityKind, id, eventID, name string, tags map[string]string, metadata map[string]any) {
	if eventID == "" {
		eventID = ident.New()
	}
	data := map[string]any{
		"id":        eventID,
		"name":      name,
		"timestamp": ident.Now(),
	}
	if len(tags) > 0 {
		data["tags"] = maps.Clone(tags)
	}
	if len(metadata) > 0 {
		data["metadata"] = sanitize.Map(metadata)
	}
	commitEntry(w, entity, id, ActionAddEvent, data)
}

func setInputEntry(w *Writer, entity EntityKind, id, input string) {
	commitEntry(w, entity, id, ActionUpdate, map[string]any{"input": input})
}

func setOutputEntry(w *Writer, entity EntityKind, id, output string) {
	commitEntry(w, entity, id, ActionUpdate, map[string]any{"output": output})
}

func addMetricEntry(w *Writer, entity EntityKind, id, name string, value float64) {
	commitEntry(w, entity, id, ActionUpdate, map[string]any{
		"metrics": map[string]float64{name: value},
	})
}

func addFeedbackEntry(w *Writer, entity EntityKind, id string, fb Feedback) {
	data := map[string]any{"feedback": map[string]any{"score": fb.Score}}
	if fb.Comment != "" {
		data["feedback"].(map[string]any)["comment"] = fb.Comment
	}
	commitEntry(w, entity, id, ActionAddFeedback, data)
}

func uploadAttachmentEntry(w *Writer, entity EntityKind, id string, att Attachment) {
	commitEntry(w, entity, id, ActionUploadAttachment, att.enriched().toData())
}
