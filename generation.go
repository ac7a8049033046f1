package kiroku

import (
	"maps"

	"github.com/ashita-ai/kiroku/internal/ident"
	"github.com/ashita-ai/kiroku/internal/sanitize"
)

// GenerationConfig configures a new generation.
type GenerationConfig struct {
	ID              string
	Name            string
	Provider        string
	Model           string
	Messages        []Message
	ModelParameters map[string]any
	Tags            map[string]string
}

// Generation records a single model call: the provider, model, parameters,
// message history, and eventually a result or an error. Inline images in
// messages are extracted into attachments before anything hits the wire.
type Generation struct {
	*container
	provider string

	// model, params, and messages are guarded by the container mutex.
	model    string
	params   map[string]any
	messages []Message
}

// newGeneration builds the generation and returns the attachments extracted
// from its initial messages. It commits nothing; the parent's add-generation
// commit records the birth, then the caller uploads the attachments.
func newGeneration(cfg GenerationConfig, spanID string, w *Writer) (*Generation, []Attachment, error) {
	c, err := newContainer(EntityGeneration, cfg.ID, cfg.Name, spanID, cfg.Tags, w)
	if err != nil {
		return nil, nil, err
	}
	messages, attachments := extractAttachments(cfg.Messages)
	g := &Generation{
		container: c,
		provider:  cfg.Provider,
		model:     cfg.Model,
		params:    maps.Clone(cfg.ModelParameters),
		messages:  messages,
	}
	return g, attachments, nil
}

// newGenerationChild creates a generation under a parent container: the
// parent emits one add-generation commit embedding the child's snapshot, so
// the backend can materialize the generation before any of its own commits
// arrive.
func newGenerationChild(w *Writer, parent EntityKind, parentID string, cfg GenerationConfig, spanID string) (*Generation, error) {
	g, attachments, err := newGeneration(cfg, spanID, w)
	if err != nil {
		return nil, err
	}

	payload := g.Data()
	payload["id"] = g.id
	commitEntry(w, parent, parentID, ActionAddGeneration, payload)

	for _, att := range attachments {
		uploadAttachmentEntry(w, EntityGeneration, g.id, att)
	}
	return g, nil
}

// Provider returns the model provider. Immutable.
func (g *Generation) Provider() string { return g.provider }

// Model returns the current model name.
func (g *Generation) Model() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.model
}

// Data returns the generation snapshot: base container fields plus provider,
// model, parameters, and the (rewritten) message history.
func (g *Generation) Data() map[string]any {
	d := g.container.Data()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.provider != "" {
		d["provider"] = g.provider
	}
	if g.model != "" {
		d["model"] = g.model
	}
	if len(g.params) > 0 {
		d["modelParameters"] = sanitize.Map(g.params)
	}
	d["messages"] = append([]Message(nil), g.messages...)
	return d
}

// SetModel updates the model name, e.g. after a fallback to a cheaper model.
func (g *Generation) SetModel(model string) {
	g.mu.Lock()
	g.model = model
	g.mu.Unlock()
	setModelEntry(g.w, g.id, model)
}

// SetModelParameters replaces the recorded model parameters.
func (g *Generation) SetModelParameters(params map[string]any) {
	g.mu.Lock()
	g.params = maps.Clone(params)
	g.mu.Unlock()
	setModelParametersEntry(g.w, g.id, params)
}

// AddMessages appends messages to the generation's history. Inline images
// are extracted into attachments, mirroring construction.
func (g *Generation) AddMessages(messages ...Message) {
	rewritten, attachments := extractAttachments(messages)
	g.mu.Lock()
	g.messages = append(g.messages, rewritten...)
	g.mu.Unlock()

	commitEntry(g.w, EntityGeneration, g.id, ActionUpdate, map[string]any{
		"messages": rewritten,
	})
	for _, att := range attachments {
		uploadAttachmentEntry(g.w, EntityGeneration, g.id, att)
	}
}

// Result records the provider's response and ends the generation. The result
// may be any provider payload; values that resist JSON encoding degrade to
// sanitized placeholders rather than losing the commit.
func (g *Generation) Result(result any) {
	commitEntry(g.w, EntityGeneration, g.id, ActionResult, map[string]any{
		"result": result,
	})
	g.End()
}

// GenerationError describes a failed model call.
type GenerationError struct {
	Message string
	Code    string
	Type    string
}

func (ge GenerationError) toData() map[string]any {
	d := map[string]any{"message": ge.Message}
	if ge.Code != "" {
		d["code"] = ge.Code
	}
	if ge.Type != "" {
		d["type"] = ge.Type
	}
	return d
}

// Error records a failed model call and ends the generation. The failure
// travels as a synthetic result payload so the backend's result pipeline
// sees exactly one terminal record per generation.
func (g *Generation) Error(ge GenerationError) {
	generationErrorEntry(g.w, g.id, ge)
	g.End()
}

// Evaluate returns the evaluation handle for this generation.
func (g *Generation) Evaluate() *EvaluateHandle {
	return newEvaluateHandle(g.w, EntityGeneration, g.id)
}

// AddAttachment uploads an attachment on the generation.
func (g *Generation) AddAttachment(att Attachment) {
	uploadAttachmentEntry(g.w, EntityGeneration, g.id, att)
}

// ---------------------------------------------------------------------------
// Shared emission routines
// ---------------------------------------------------------------------------

func setModelEntry(w *Writer, generationID, model string) {
	commitEntry(w, EntityGeneration, generationID, ActionUpdate, map[string]any{
		"model": model,
	})
}

func setModelParametersEntry(w *Writer, generationID string, params map[string]any) {
	commitEntry(w, EntityGeneration, generationID, ActionUpdate, map[string]any{
		"modelParameters": sanitize.Map(params),
	})
}

func generationErrorEntry(w *Writer, generationID string, ge GenerationError) {
	commitEntry(w, EntityGeneration, generationID, ActionResult, map[string]any{
		"result": map[string]any{
			"id":    ident.New(),
			"error": ge.toData(),
		},
	})
}

// ---------------------------------------------------------------------------
// By-id operations
// ---------------------------------------------------------------------------

// SetGenerationModel updates the model name on a generation by id.
func SetGenerationModel(w *Writer, generationID, model string) {
	setModelEntry(w, generationID, model)
}

// SetGenerationModelParameters replaces the model parameters on a generation
// by id.
func SetGenerationModelParameters(w *Writer, generationID string, params map[string]any) {
	setModelParametersEntry(w, generationID, params)
}

// AddGenerationMessages appends messages to a generation by id, extracting
// inline images into attachments.
func AddGenerationMessages(w *Writer, generationID string, messages ...Message) {
	rewritten, attachments := extractAttachments(messages)
	commitEntry(w, EntityGeneration, generationID, ActionUpdate, map[string]any{
		"messages": rewritten,
	})
	for _, att := range attachments {
		uploadAttachmentEntry(w, EntityGeneration, generationID, att)
	}
}

// SetGenerationResult records the provider's response and ends the
// generation, by id.
func SetGenerationResult(w *Writer, generationID string, result any) {
	commitEntry(w, EntityGeneration, generationID, ActionResult, map[string]any{
		"result": result,
	})
	endNow(w, EntityGeneration, generationID)
}

// SetGenerationError records a failed model call and ends the generation,
// by id.
func SetGenerationError(w *Writer, generationID string, ge GenerationError) {
	generationErrorEntry(w, generationID, ge)
	endNow(w, EntityGeneration, generationID)
}

// AddGenerationTag records a tag on a generation by id.
func AddGenerationTag(w *Writer, generationID, key, value string) {
	addTagEntry(w, EntityGeneration, generationID, key, value)
}

// AddGenerationMetadata attaches metadata to a generation by id.
func AddGenerationMetadata(w *Writer, generationID string, metadata map[string]any) {
	addMetadataEntry(w, EntityGeneration, generationID, metadata)
}

// AddGenerationAttachment uploads an attachment on a generation by id.
func AddGenerationAttachment(w *Writer, generationID string, att Attachment) {
	uploadAttachmentEntry(w, EntityGeneration, generationID, att)
}

// EndGeneration marks a generation as ended by id.
func EndGeneration(w *Writer, generationID string) {
	endNow(w, EntityGeneration, generationID)
}
