package kiroku

// ToolCallConfig configures a new tool call. Args is the serialized argument
// payload as handed to the tool, typically JSON.
type ToolCallConfig struct {
	ID          string
	Name        string
	Description string
	Args        string
	Tags        map[string]string
}

// ToolCall records one tool invocation by the model: name, arguments, and a
// terminal result or error. Name, description, and args are fixed at
// construction.
type ToolCall struct {
	*container
	description string
	args        string
}

func newToolCall(cfg ToolCallConfig, spanID string, w *Writer) (*ToolCall, error) {
	c, err := newContainer(EntityToolCall, cfg.ID, cfg.Name, spanID, cfg.Tags, w)
	if err != nil {
		return nil, err
	}
	return &ToolCall{container: c, description: cfg.Description, args: cfg.Args}, nil
}

// newToolCallChild creates a tool call under a parent container: the parent
// emits one add-tool_call commit embedding the child's snapshot.
func newToolCallChild(w *Writer, parent EntityKind, parentID string, cfg ToolCallConfig, spanID string) (*ToolCall, error) {
	tc, err := newToolCall(cfg, spanID, w)
	if err != nil {
		return nil, err
	}
	payload := tc.Data()
	payload["id"] = tc.id
	commitEntry(w, parent, parentID, ActionAddToolCall, payload)
	return tc, nil
}

// Description returns the tool description. Immutable.
func (tc *ToolCall) Description() string { return tc.description }

// Args returns the serialized argument payload. Immutable.
func (tc *ToolCall) Args() string { return tc.args }

// Data returns the tool call snapshot: base container fields plus the
// description and arguments.
func (tc *ToolCall) Data() map[string]any {
	d := tc.container.Data()
	if tc.description != "" {
		d["description"] = tc.description
	}
	if tc.args != "" {
		d["args"] = tc.args
	}
	return d
}

// Result records the tool's output and ends the tool call.
func (tc *ToolCall) Result(result string) {
	commitEntry(tc.w, EntityToolCall, tc.id, ActionResult, map[string]any{
		"result": result,
	})
	tc.End()
}

// ToolCallError describes a failed tool invocation.
type ToolCallError struct {
	Message string
	Code    string
	Type    string
}

func (te ToolCallError) toData() map[string]any {
	d := map[string]any{"message": te.Message}
	if te.Code != "" {
		d["code"] = te.Code
	}
	if te.Type != "" {
		d["type"] = te.Type
	}
	return d
}

// Error records a failed tool invocation and ends the tool call. Unlike a
// generation failure, the error travels as its own error commit rather than
// a synthetic result.
func (tc *ToolCall) Error(te ToolCallError) {
	commitEntry(tc.w, EntityToolCall, tc.id, ActionError, map[string]any{
		"error": te.toData(),
	})
	tc.End()
}

// ---------------------------------------------------------------------------
// By-id operations
// ---------------------------------------------------------------------------

// SetToolCallResult records the tool's output and ends the tool call, by id.
func SetToolCallResult(w *Writer, toolCallID, result string) {
	commitEntry(w, EntityToolCall, toolCallID, ActionResult, map[string]any{
		"result": result,
	})
	endNow(w, EntityToolCall, toolCallID)
}

// SetToolCallError records a failed tool invocation and ends the tool call,
// by id.
func SetToolCallError(w *Writer, toolCallID string, te ToolCallError) {
	commitEntry(w, EntityToolCall, toolCallID, ActionError, map[string]any{
		"error": te.toData(),
	})
	endNow(w, EntityToolCall, toolCallID)
}

// AddToolCallTag records a tag on a tool call by id.
func AddToolCallTag(w *Writer, toolCallID, key, value string) {
	addTagEntry(w, EntityToolCall, toolCallID, key, value)
}

// AddToolCallMetadata attaches metadata to a tool call by id.
func AddToolCallMetadata(w *Writer, toolCallID string, metadata map[string]any) {
	addMetadataEntry(w, EntityToolCall, toolCallID, metadata)
}

// EndToolCall marks a tool call as ended by id.
func EndToolCall(w *Writer, toolCallID string) {
	endNow(w, EntityToolCall, toolCallID)
}
