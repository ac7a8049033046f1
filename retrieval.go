package kiroku

import "github.com/ashita-ai/kiroku/internal/ident"

// RetrievalConfig configures a new retrieval.
type RetrievalConfig struct {
	ID   string
	Name string
	Tags map[string]string
}

// Retrieval records a knowledge-base or vector-store query: the query input
// and the documents that came back.
type Retrieval struct {
	*container
}

func newRetrieval(cfg RetrievalConfig, spanID string, w *Writer) (*Retrieval, error) {
	c, err := newContainer(EntityRetrieval, cfg.ID, cfg.Name, spanID, cfg.Tags, w)
	if err != nil {
		return nil, err
	}
	return &Retrieval{container: c}, nil
}

// newRetrievalChild creates a retrieval under a parent container: the parent
// emits one add-retrieval commit embedding the child's snapshot.
func newRetrievalChild(w *Writer, parent EntityKind, parentID string, cfg RetrievalConfig, spanID string) (*Retrieval, error) {
	r, err := newRetrieval(cfg, spanID, w)
	if err != nil {
		return nil, err
	}
	payload := r.Data()
	payload["id"] = r.id
	commitEntry(w, parent, parentID, ActionAddRetrieval, payload)
	return r, nil
}

// Input records the query sent to the knowledge base.
func (r *Retrieval) Input(query string) {
	setInputEntry(r.w, EntityRetrieval, r.id, query)
}

// Output records the retrieved documents and ends the retrieval. A single
// string is normalized to a one-element list; anything else travels as
// given.
func (r *Retrieval) Output(docs any) {
	ts := ident.Now()
	r.mu.Lock()
	r.end = &ts
	r.mu.Unlock()
	endEntry(r.w, EntityRetrieval, r.id, ts, map[string]any{"docs": normalizeDocs(docs)})
}

// Evaluate returns the evaluation handle for this retrieval.
func (r *Retrieval) Evaluate() *EvaluateHandle {
	return newEvaluateHandle(r.w, EntityRetrieval, r.id)
}

func normalizeDocs(docs any) any {
	if s, ok := docs.(string); ok {
		return []string{s}
	}
	return docs
}

// ---------------------------------------------------------------------------
// By-id operations
// ---------------------------------------------------------------------------

// SetRetrievalInput records the query on a retrieval by id.
func SetRetrievalInput(w *Writer, retrievalID, query string) {
	setInputEntry(w, EntityRetrieval, retrievalID, query)
}

// SetRetrievalOutput records the retrieved documents and ends the retrieval,
// by id.
func SetRetrievalOutput(w *Writer, retrievalID string, docs any) {
	endEntry(w, EntityRetrieval, retrievalID, ident.Now(), map[string]any{"docs": normalizeDocs(docs)})
}

// AddRetrievalTag records a tag on a retrieval by id.
func AddRetrievalTag(w *Writer, retrievalID, key, value string) {
	addTagEntry(w, EntityRetrieval, retrievalID, key, value)
}

// AddRetrievalMetadata attaches metadata to a retrieval by id.
func AddRetrievalMetadata(w *Writer, retrievalID string, metadata map[string]any) {
	addMetadataEntry(w, EntityRetrieval, retrievalID, metadata)
}

// EndRetrieval marks a retrieval as ended by id.
func EndRetrieval(w *Writer, retrievalID string) {
	endNow(w, EntityRetrieval, retrievalID)
}
