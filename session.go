package kiroku

// SessionConfig configures a new session. An empty ID is replaced by a
// generated one.
type SessionConfig struct {
	ID   string
	Name string
	Tags map[string]string
}

// Session groups related traces across a long-lived interaction, such as a
// chat conversation spanning many turns.
type Session struct {
	*container
}

func newSession(cfg SessionConfig, w *Writer) (*Session, error) {
	c, err := newContainer(EntitySession, cfg.ID, cfg.Name, "", cfg.Tags, w)
	if err != nil {
		return nil, err
	}
	s := &Session{container: c}
	s.commit(ActionCreate, nil)
	return s, nil
}

// Trace starts a new trace inside this session. The session id is stamped
// into the trace's create commit; the trace otherwise lives independently
// and commits straight to the writer.
func (s *Session) Trace(cfg TraceConfig) (*Trace, error) {
	cfg.SessionID = s.id
	return newTrace(cfg, s.w)
}

// Generation records a model call directly under the session, outside any
// trace. The session emits an add-generation commit carrying the child's
// snapshot.
func (s *Session) Generation(cfg GenerationConfig) (*Generation, error) {
	return newGenerationChild(s.w, EntitySession, s.id, cfg, "")
}

// Retrieval records a knowledge-base query directly under the session.
func (s *Session) Retrieval(cfg RetrievalConfig) (*Retrieval, error) {
	return newRetrievalChild(s.w, EntitySession, s.id, cfg, "")
}

// ToolCall records a tool invocation directly under the session.
func (s *Session) ToolCall(cfg ToolCallConfig) (*ToolCall, error) {
	return newToolCallChild(s.w, EntitySession, s.id, cfg, "")
}

// Error records a failure directly under the session.
func (s *Session) Error(cfg ErrorConfig) (*ErrorEntry, error) {
	return newErrorChild(s.w, EntitySession, s.id, cfg, "")
}

// AddAttachment uploads a file, byte buffer, or URL attachment on the
// session. Missing name/mime/size fields are filled in best-effort.
func (s *Session) AddAttachment(att Attachment) {
	uploadAttachmentEntry(s.w, EntitySession, s.id, att)
}

// Feedback attaches end-user feedback to the session.
func (s *Session) Feedback(fb Feedback) {
	addFeedbackEntry(s.w, EntitySession, s.id, fb)
}

// Evaluate returns the evaluation handle for this session.
func (s *Session) Evaluate() *EvaluateHandle {
	return newEvaluateHandle(s.w, EntitySession, s.id)
}

// ---------------------------------------------------------------------------
// By-id operations
//
// Mirrors of the instance methods for callers that only carry the session id
// across process or component boundaries. Payload shapes are identical to
// the instance path.
// ---------------------------------------------------------------------------

// AddSessionTag records a tag on a session by id.
func AddSessionTag(w *Writer, sessionID, key, value string) {
	addTagEntry(w, EntitySession, sessionID, key, value)
}

// AddSessionMetadata attaches metadata to a session by id.
func AddSessionMetadata(w *Writer, sessionID string, metadata map[string]any) {
	addMetadataEntry(w, EntitySession, sessionID, metadata)
}

// AddSessionFeedback attaches end-user feedback to a session by id.
func AddSessionFeedback(w *Writer, sessionID string, fb Feedback) {
	addFeedbackEntry(w, EntitySession, sessionID, fb)
}

// AddSessionAttachment uploads an attachment on a session by id.
func AddSessionAttachment(w *Writer, sessionID string, att Attachment) {
	uploadAttachmentEntry(w, EntitySession, sessionID, att)
}

// EndSession marks a session as ended by id.
func EndSession(w *Writer, sessionID string) {
	endNow(w, EntitySession, sessionID)
}

// NewSessionTrace starts a trace inside a session identified only by id.
func NewSessionTrace(w *Writer, sessionID string, cfg TraceConfig) (*Trace, error) {
	cfg.SessionID = sessionID
	return newTrace(cfg, w)
}

// NewSessionGeneration records a model call under a session by id.
func NewSessionGeneration(w *Writer, sessionID string, cfg GenerationConfig) (*Generation, error) {
	return newGenerationChild(w, EntitySession, sessionID, cfg, "")
}

// NewSessionRetrieval records a knowledge-base query under a session by id.
func NewSessionRetrieval(w *Writer, sessionID string, cfg RetrievalConfig) (*Retrieval, error) {
	return newRetrievalChild(w, EntitySession, sessionID, cfg, "")
}

// NewSessionToolCall records a tool invocation under a session by id.
func NewSessionToolCall(w *Writer, sessionID string, cfg ToolCallConfig) (*ToolCall, error) {
	return newToolCallChild(w, EntitySession, sessionID, cfg, "")
}

// NewSessionError records a failure under a session by id.
func NewSessionError(w *Writer, sessionID string, cfg ErrorConfig) (*ErrorEntry, error) {
	return newErrorChild(w, EntitySession, sessionID, cfg, "")
}
