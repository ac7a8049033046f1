package kiroku

import (
	"maps"

	"github.com/ashita-ai/kiroku/internal/ident"
)

// EvaluateHandle binds the evaluation sub-protocol to one entity. Obtain it
// from any evaluatable container's Evaluate method, or from the Evaluate*
// by-id functions when only the entity id is at hand.
type EvaluateHandle struct {
	w      *Writer
	entity EntityKind
	id     string
}

func newEvaluateHandle(w *Writer, entity EntityKind, id string) *EvaluateHandle {
	return &EvaluateHandle{w: w, entity: entity, id: id}
}

// WithEvaluators attaches named evaluators to the entity. Names are deduped
// case-sensitively, preserving first-occurrence order. The returned chain
// reuses the same evaluator set for variable bindings:
//
//	trace.Evaluate().WithEvaluators("toxicity", "accuracy").WithVariables(vars)
//
// Calling with no names emits nothing.
func (h *EvaluateHandle) WithEvaluators(names ...string) *EvaluatorChain {
	deduped := dedupeNames(names)
	if len(deduped) > 0 {
		commitEntry(h.w, h.entity, h.id, ActionEvaluate, map[string]any{
			"with":       "evaluators",
			"evaluators": deduped,
			"timestamp":  ident.Now(),
		})
	}
	return &EvaluatorChain{handle: h, evaluators: deduped}
}

// WithVariables binds variables to the given evaluators. If forEvaluators is
// empty this is a no-op: a variable binding with no evaluator attached would
// be an orphan the backend can never resolve.
func (h *EvaluateHandle) WithVariables(variables map[string]string, forEvaluators []string) {
	if len(forEvaluators) == 0 {
		return
	}
	commitEntry(h.w, h.entity, h.id, ActionEvaluate, map[string]any{
		"with":       "variables",
		"variables":  maps.Clone(variables),
		"evaluators": dedupeNames(forEvaluators),
		"timestamp":  ident.Now(),
	})
}

// EvaluatorChain carries the evaluator set chosen by WithEvaluators so
// variable bindings can be chained without repeating it.
type EvaluatorChain struct {
	handle     *EvaluateHandle
	evaluators []string
}

// WithVariables binds variables to the chain's evaluator set.
func (ec *EvaluatorChain) WithVariables(variables map[string]string) *EvaluatorChain {
	ec.handle.WithVariables(variables, ec.evaluators)
	return ec
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// EvaluateSession returns an evaluation handle for a session by id.
func EvaluateSession(w *Writer, sessionID string) *EvaluateHandle {
	return newEvaluateHandle(w, EntitySession, sessionID)
}

// EvaluateTrace returns an evaluation handle for a trace by id.
func EvaluateTrace(w *Writer, traceID string) *EvaluateHandle {
	return newEvaluateHandle(w, EntityTrace, traceID)
}

// EvaluateGeneration returns an evaluation handle for a generation by id.
func EvaluateGeneration(w *Writer, generationID string) *EvaluateHandle {
	return newEvaluateHandle(w, EntityGeneration, generationID)
}

// EvaluateRetrieval returns an evaluation handle for a retrieval by id.
func EvaluateRetrieval(w *Writer, retrievalID string) *EvaluateHandle {
	return newEvaluateHandle(w, EntityRetrieval, retrievalID)
}
