package kiroku

// SpanConfig configures a new span.
type SpanConfig struct {
	ID   string
	Name string
	Tags map[string]string
}

// Span is a logical sub-operation of a trace: a retrieval pipeline stage, an
// agent step, a nested workflow. Spans nest arbitrarily deep; children carry
// a back-reference to their parent span, never a live pointer.
type Span struct {
	*container
	traceID string
}

func newSpan(cfg SpanConfig, traceID, parentSpanID string, w *Writer) (*Span, error) {
	c, err := newContainer(EntitySpan, cfg.ID, cfg.Name, parentSpanID, cfg.Tags, w)
	if err != nil {
		return nil, err
	}
	s := &Span{container: c, traceID: traceID}
	s.commit(ActionCreate, s.Data())
	return s, nil
}

// TraceID returns the id of the owning trace, or "" when the span was
// created under another span by id and the trace is unknown locally.
func (s *Span) TraceID() string { return s.traceID }

// Data returns the span snapshot: the base container fields plus the trace
// back-reference.
func (s *Span) Data() map[string]any {
	d := s.container.Data()
	if s.traceID != "" {
		d["traceId"] = s.traceID
	}
	return d
}

// Event records a point-in-time occurrence on the span.
func (s *Span) Event(eventID, name string, tags map[string]string, metadata map[string]any) {
	addEventEntry(s.w, EntitySpan, s.id, eventID, name, tags, metadata)
}

// Span opens a nested span.
func (s *Span) Span(cfg SpanConfig) (*Span, error) {
	return newSpan(cfg, s.traceID, s.id, s.w)
}

// Generation records a model call under the span.
func (s *Span) Generation(cfg GenerationConfig) (*Generation, error) {
	return newGenerationChild(s.w, EntitySpan, s.id, cfg, s.id)
}

// Retrieval records a knowledge-base query under the span.
func (s *Span) Retrieval(cfg RetrievalConfig) (*Retrieval, error) {
	return newRetrievalChild(s.w, EntitySpan, s.id, cfg, s.id)
}

// ToolCall records a tool invocation under the span.
func (s *Span) ToolCall(cfg ToolCallConfig) (*ToolCall, error) {
	return newToolCallChild(s.w, EntitySpan, s.id, cfg, s.id)
}

// Error records a failure under the span.
func (s *Span) Error(cfg ErrorConfig) (*ErrorEntry, error) {
	return newErrorChild(s.w, EntitySpan, s.id, cfg, s.id)
}

// AddAttachment uploads a file, byte buffer, or URL attachment on the span.
func (s *Span) AddAttachment(att Attachment) {
	uploadAttachmentEntry(s.w, EntitySpan, s.id, att)
}

// ---------------------------------------------------------------------------
// By-id operations
// ---------------------------------------------------------------------------

// AddSpanTag records a tag on a span by id.
func AddSpanTag(w *Writer, spanID, key, value string) {
	addTagEntry(w, EntitySpan, spanID, key, value)
}

// AddSpanMetadata attaches metadata to a span by id.
func AddSpanMetadata(w *Writer, spanID string, metadata map[string]any) {
	addMetadataEntry(w, EntitySpan, spanID, metadata)
}

// AddSpanEvent records a point-in-time occurrence on a span by id.
func AddSpanEvent(w *Writer, spanID, eventID, name string, tags map[string]string, metadata map[string]any) {
	addEventEntry(w, EntitySpan, spanID, eventID, name, tags, metadata)
}

// AddSpanAttachment uploads an attachment on a span by id.
func AddSpanAttachment(w *Writer, spanID string, att Attachment) {
	uploadAttachmentEntry(w, EntitySpan, spanID, att)
}

// EndSpan marks a span as ended by id.
func EndSpan(w *Writer, spanID string) {
	endNow(w, EntitySpan, spanID)
}

// NewNestedSpan opens a span under a parent span identified only by id.
// The owning trace is not known locally, so the child's snapshot carries
// only the span back-reference.
func NewNestedSpan(w *Writer, parentSpanID string, cfg SpanConfig) (*Span, error) {
	return newSpan(cfg, "", parentSpanID, w)
}

// NewSpanGeneration records a model call under a span by id.
func NewSpanGeneration(w *Writer, spanID string, cfg GenerationConfig) (*Generation, error) {
	return newGenerationChild(w, EntitySpan, spanID, cfg, spanID)
}

// NewSpanRetrieval records a knowledge-base query under a span by id.
func NewSpanRetrieval(w *Writer, spanID string, cfg RetrievalConfig) (*Retrieval, error) {
	return newRetrievalChild(w, EntitySpan, spanID, cfg, spanID)
}

// NewSpanToolCall records a tool invocation under a span by id.
func NewSpanToolCall(w *Writer, spanID string, cfg ToolCallConfig) (*ToolCall, error) {
	return newToolCallChild(w, EntitySpan, spanID, cfg, spanID)
}

// NewSpanError records a failure under a span by id.
func NewSpanError(w *Writer, spanID string, cfg ErrorConfig) (*ErrorEntry, error) {
	return newErrorChild(w, EntitySpan, spanID, cfg, spanID)
}
