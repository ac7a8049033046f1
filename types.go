package kiroku

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/ashita-ai/kiroku/internal/sanitize"
)

// EntityKind identifies the kind of loggable entity a commit refers to.
// The set is closed; the backend rejects unknown kinds.
type EntityKind string

const (
	EntitySession    EntityKind = "session"
	EntityTrace      EntityKind = "trace"
	EntitySpan       EntityKind = "span"
	EntityGeneration EntityKind = "generation"
	EntityRetrieval  EntityKind = "retrieval"
	EntityToolCall   EntityKind = "tool_call"
	EntityError      EntityKind = "error"
	EntityFeedback   EntityKind = "feedback"
)

// Commit actions understood by the backend. The action vocabulary is open —
// the SDK only guarantees delivery, not interpretation — but these are the
// actions the SDK itself emits.
const (
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionEnd              = "end"
	ActionResult           = "result"
	ActionError            = "error"
	ActionEvaluate         = "evaluate"
	ActionAddEvent         = "add-event"
	ActionAddFeedback      = "add-feedback"
	ActionUploadAttachment = "upload-attachment"
	ActionAddGeneration    = "add-generation"
	ActionAddRetrieval     = "add-retrieval"
	ActionAddToolCall      = "add-tool_call"
	ActionAddError         = "add-error"
)

// CommitLog is the atomic unit of recorded change: one mutation of one
// entity. Immutable once constructed; all fields are read through accessors.
type CommitLog struct {
	entity   EntityKind
	entityID string
	action   string
	data     map[string]any
}

// NewCommitLog constructs a commit entry. The data map is not copied —
// callers hand over ownership. No validation is performed beyond what the
// accessors need; content validation is the caller's responsibility.
func NewCommitLog(entity EntityKind, entityID, action string, data map[string]any) CommitLog {
	return CommitLog{entity: entity, entityID: entityID, action: action, data: data}
}

// Entity returns the entity kind this commit is tagged with.
func (c CommitLog) Entity() EntityKind { return c.entity }

// ID returns the id of the entity this commit refers to.
func (c CommitLog) ID() string { return c.entityID }

// Action returns the commit's action verb.
func (c CommitLog) Action() string { return c.action }

// Data returns a shallow copy of the commit payload.
func (c CommitLog) Data() map[string]any { return maps.Clone(c.data) }

// commitEnvelope is the wire shape of a serialized commit entry.
type commitEnvelope struct {
	Entity   EntityKind     `json:"entity"`
	EntityID string         `json:"entityId"`
	Action   string         `json:"action"`
	Data     map[string]any `json:"data"`
}

// Serialize returns the deterministic JSON form of the commit used for
// transport, WAL persistence, and debugging. Payloads that fail to encode
// (a raw provider response holding a channel, say) are sanitized and
// re-encoded, so Serialize always succeeds.
func (c CommitLog) Serialize() []byte {
	env := commitEnvelope{Entity: c.entity, EntityID: c.entityID, Action: c.action, Data: c.data}
	b, err := json.Marshal(env)
	if err == nil {
		return b
	}
	env.Data = sanitize.Map(c.data)
	b, err = json.Marshal(env)
	if err != nil {
		// Sanitized maps always encode; this is unreachable in practice.
		b = fmt.Appendf(nil, `{"entity":%q,"entityId":%q,"action":%q,"data":null}`, c.entity, c.entityID, c.action)
	}
	return b
}

// ParseCommitLog decodes a serialized commit entry. Used to re-queue entries
// recovered from the write-ahead log.
func ParseCommitLog(b []byte) (CommitLog, error) {
	var env commitEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return CommitLog{}, fmt.Errorf("kiroku: parse commit: %w", err)
	}
	if env.EntityID == "" {
		return CommitLog{}, fmt.Errorf("kiroku: parse commit: missing entityId")
	}
	return NewCommitLog(env.Entity, env.EntityID, env.Action, env.Data), nil
}

// Feedback is user feedback attached to a trace.
type Feedback struct {
	Score   float64 `json:"score"`
	Comment string  `json:"comment,omitempty"`
}
