package kiroku

// TraceConfig configures a new trace. SessionID is filled in automatically
// when the trace is created through Session.Trace.
type TraceConfig struct {
	ID        string
	Name      string
	SessionID string
	Input     string
	Tags      map[string]string
}

// Trace records one end-to-end handling of a request: the root container
// under which spans, generations, retrievals, tool calls, and errors hang.
type Trace struct {
	*container
	sessionID string
}

func newTrace(cfg TraceConfig, w *Writer) (*Trace, error) {
	c, err := newContainer(EntityTrace, cfg.ID, cfg.Name, "", cfg.Tags, w)
	if err != nil {
		return nil, err
	}
	t := &Trace{container: c, sessionID: cfg.SessionID}

	data := t.Data()
	if cfg.Input != "" {
		data["input"] = cfg.Input
	}
	t.commit(ActionCreate, data)
	return t, nil
}

// SessionID returns the id of the enclosing session, or "" for a standalone
// trace.
func (t *Trace) SessionID() string { return t.sessionID }

// Data returns the trace snapshot: the base container fields plus the
// session back-reference.
func (t *Trace) Data() map[string]any {
	d := t.container.Data()
	if t.sessionID != "" {
		d["sessionId"] = t.sessionID
	}
	return d
}

// SetInput records the request input that started this trace.
func (t *Trace) SetInput(input string) {
	setInputEntry(t.w, EntityTrace, t.id, input)
}

// SetOutput records the final output produced by this trace.
func (t *Trace) SetOutput(output string) {
	setOutputEntry(t.w, EntityTrace, t.id, output)
}

// AddMetric records a named numeric measurement on the trace.
func (t *Trace) AddMetric(name string, value float64) {
	addMetricEntry(t.w, EntityTrace, t.id, name, value)
}

// Feedback attaches end-user feedback to the trace.
func (t *Trace) Feedback(fb Feedback) {
	addFeedbackEntry(t.w, EntityTrace, t.id, fb)
}

// Event records a point-in-time occurrence on the trace. An empty eventID is
// replaced by a generated one.
func (t *Trace) Event(eventID, name string, tags map[string]string, metadata map[string]any) {
	addEventEntry(t.w, EntityTrace, t.id, eventID, name, tags, metadata)
}

// Span opens a logical sub-operation of the trace.
func (t *Trace) Span(cfg SpanConfig) (*Span, error) {
	return newSpan(cfg, t.id, "", t.w)
}

// Generation records a model call under the trace.
func (t *Trace) Generation(cfg GenerationConfig) (*Generation, error) {
	return newGenerationChild(t.w, EntityTrace, t.id, cfg, "")
}

// Retrieval records a knowledge-base query under the trace.
func (t *Trace) Retrieval(cfg RetrievalConfig) (*Retrieval, error) {
	return newRetrievalChild(t.w, EntityTrace, t.id, cfg, "")
}

// ToolCall records a tool invocation under the trace.
func (t *Trace) ToolCall(cfg ToolCallConfig) (*ToolCall, error) {
	return newToolCallChild(t.w, EntityTrace, t.id, cfg, "")
}

// Error records a failure under the trace.
func (t *Trace) Error(cfg ErrorConfig) (*ErrorEntry, error) {
	return newErrorChild(t.w, EntityTrace, t.id, cfg, "")
}

// AddAttachment uploads a file, byte buffer, or URL attachment on the trace.
func (t *Trace) AddAttachment(att Attachment) {
	uploadAttachmentEntry(t.w, EntityTrace, t.id, att)
}

// Evaluate returns the evaluation handle for this trace.
func (t *Trace) Evaluate() *EvaluateHandle {
	return newEvaluateHandle(t.w, EntityTrace, t.id)
}

// ---------------------------------------------------------------------------
// By-id operations
// ---------------------------------------------------------------------------

// SetTraceInput records the request input on a trace by id.
func SetTraceInput(w *Writer, traceID, input string) {
	setInputEntry(w, EntityTrace, traceID, input)
}

// SetTraceOutput records the final output on a trace by id.
func SetTraceOutput(w *Writer, traceID, output string) {
	setOutputEntry(w, EntityTrace, traceID, output)
}

// AddTraceTag records a tag on a trace by id.
func AddTraceTag(w *Writer, traceID, key, value string) {
	addTagEntry(w, EntityTrace, traceID, key, value)
}

// AddTraceMetadata attaches metadata to a trace by id.
func AddTraceMetadata(w *Writer, traceID string, metadata map[string]any) {
	addMetadataEntry(w, EntityTrace, traceID, metadata)
}

// AddTraceMetric records a named numeric measurement on a trace by id.
func AddTraceMetric(w *Writer, traceID, name string, value float64) {
	addMetricEntry(w, EntityTrace, traceID, name, value)
}

// AddTraceFeedback attaches end-user feedback to a trace by id.
func AddTraceFeedback(w *Writer, traceID string, fb Feedback) {
	addFeedbackEntry(w, EntityTrace, traceID, fb)
}

// AddTraceEvent records a point-in-time occurrence on a trace by id.
func AddTraceEvent(w *Writer, traceID, eventID, name string, tags map[string]string, metadata map[string]any) {
	addEventEntry(w, EntityTrace, traceID, eventID, name, tags, metadata)
}

// AddTraceAttachment uploads an attachment on a trace by id.
func AddTraceAttachment(w *Writer, traceID string, att Attachment) {
	uploadAttachmentEntry(w, EntityTrace, traceID, att)
}

// EndTrace marks a trace as ended by id.
func EndTrace(w *Writer, traceID string) {
	endNow(w, EntityTrace, traceID)
}

// NewTraceSpan opens a span under a trace identified only by id.
func NewTraceSpan(w *Writer, traceID string, cfg SpanConfig) (*Span, error) {
	return newSpan(cfg, traceID, "", w)
}

// NewTraceGeneration records a model call under a trace by id.
func NewTraceGeneration(w *Writer, traceID string, cfg GenerationConfig) (*Generation, error) {
	return newGenerationChild(w, EntityTrace, traceID, cfg, "")
}

// NewTraceRetrieval records a knowledge-base query under a trace by id.
func NewTraceRetrieval(w *Writer, traceID string, cfg RetrievalConfig) (*Retrieval, error) {
	return newRetrievalChild(w, EntityTrace, traceID, cfg, "")
}

// NewTraceToolCall records a tool invocation under a trace by id.
func NewTraceToolCall(w *Writer, traceID string, cfg ToolCallConfig) (*ToolCall, error) {
	return newToolCallChild(w, EntityTrace, traceID, cfg, "")
}

// NewTraceError records a failure under a trace by id.
func NewTraceError(w *Writer, traceID string, cfg ErrorConfig) (*ErrorEntry, error) {
	return newErrorChild(w, EntityTrace, traceID, cfg, "")
}
