package kiroku

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commitKey struct {
	entity EntityKind
	action string
}

func keysOf(commits []CommitLog) []commitKey {
	out := make([]commitKey, len(commits))
	for i, c := range commits {
		out[i] = commitKey{c.Entity(), c.Action()}
	}
	return out
}

func TestSessionTraceSpanGenerationSequence(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	session, err := newSession(SessionConfig{Name: "support-chat"}, w)
	require.NoError(t, err)

	trace, err := session.Trace(TraceConfig{Name: "turn-1", Input: "how do I reset my password?"})
	require.NoError(t, err)

	span, err := trace.Span(SpanConfig{Name: "rag-pipeline"})
	require.NoError(t, err)

	gen, err := span.Generation(GenerationConfig{
		Provider: "openai",
		Model:    "gpt-4o",
		Messages: []Message{{Role: "user", Content: "how do I reset my password?"}},
	})
	require.NoError(t, err)

	gen.Result(map[string]any{"text": "click forgot password"})
	span.End()
	trace.SetOutput("click forgot password")
	trace.End()

	got := flushed(t, w, mt)
	want := []commitKey{
		{EntitySession, ActionCreate},
		{EntityTrace, ActionCreate},
		{EntitySpan, ActionCreate},
		{EntitySpan, ActionAddGeneration},
		{EntityGeneration, ActionResult},
		{EntityGeneration, ActionEnd},
		{EntitySpan, ActionEnd},
		{EntityTrace, ActionUpdate},
		{EntityTrace, ActionEnd},
	}
	require.Equal(t, want, keysOf(got))

	// The trace create commit carries the session back-reference and input.
	traceCreate := got[1].Data()
	assert.Equal(t, session.ID(), traceCreate["sessionId"])
	assert.Equal(t, "how do I reset my password?", traceCreate["input"])

	// The span create commit carries the trace back-reference.
	assert.Equal(t, trace.ID(), got[2].Data()["traceId"])

	// The add-generation commit is addressed to the span and embeds the
	// child's id and snapshot; the generation emits no create of its own.
	addGen := got[3]
	assert.Equal(t, span.ID(), addGen.ID())
	data := addGen.Data()
	assert.Equal(t, gen.ID(), data["id"])
	assert.Equal(t, "openai", data["provider"])
	assert.Equal(t, "gpt-4o", data["model"])
	assert.Equal(t, span.ID(), data["spanId"])
	require.Contains(t, data, "messages")
}

func TestToolCallErrorEmitsErrorThenEnd(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{Name: "t"}, w)
	require.NoError(t, err)

	tc, err := trace.ToolCall(ToolCallConfig{
		Name:        "get_weather",
		Description: "look up the forecast",
		Args:        `{"city":"Osaka"}`,
	})
	require.NoError(t, err)

	tc.Error(ToolCallError{Message: "timeout"})

	got := flushed(t, w, mt)
	want := []commitKey{
		{EntityTrace, ActionCreate},
		{EntityTrace, ActionAddToolCall},
		{EntityToolCall, ActionError},
		{EntityToolCall, ActionEnd},
	}
	require.Equal(t, want, keysOf(got))

	addTC := got[1].Data()
	assert.Equal(t, tc.ID(), addTC["id"])
	assert.Equal(t, `{"city":"Osaka"}`, addTC["args"])
	assert.Equal(t, "look up the forecast", addTC["description"])

	errData := got[2].Data()
	assert.Equal(t, map[string]any{"message": "timeout"}, errData["error"])

	endData := got[3].Data()
	assert.Contains(t, endData, "endTimestamp")
	assert.False(t, tc.EndTimestamp().IsZero())
}

func TestGenerationErrorTravelsAsSyntheticResult(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	gen, err := trace.Generation(GenerationConfig{Model: "gpt-4o"})
	require.NoError(t, err)

	gen.Error(GenerationError{Message: "rate limited", Code: "429", Type: "RateLimitError"})

	got := flushed(t, w, mt)
	require.Len(t, got, 4) // trace create, add-generation, result, end

	resultCommit := got[2]
	assert.Equal(t, ActionResult, resultCommit.Action())
	result, ok := resultCommit.Data()["result"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, result["id"])
	assert.Equal(t, map[string]any{
		"message": "rate limited",
		"code":    "429",
		"type":    "RateLimitError",
	}, result["error"])

	assert.Equal(t, ActionEnd, got[3].Action())
}

func TestByIDAndInstancePathsEmitIdenticalPayloads(t *testing.T) {
	wA, mtA := newTestWriter(t, WriterConfig{})
	wB, mtB := newTestWriter(t, WriterConfig{})

	traceA, err := newTrace(TraceConfig{ID: "trace-1", Name: "n"}, wA)
	require.NoError(t, err)
	traceA.AddTag("env", "prod")
	traceA.SetOutput("done")
	traceA.AddMetric("latency_ms", 42)
	traceA.Feedback(Feedback{Score: 0.9, Comment: "good"})

	_, err = newTrace(TraceConfig{ID: "trace-1", Name: "n"}, wB)
	require.NoError(t, err)
	AddTraceTag(wB, "trace-1", "env", "prod")
	SetTraceOutput(wB, "trace-1", "done")
	AddTraceMetric(wB, "trace-1", "latency_ms", 42)
	AddTraceFeedback(wB, "trace-1", Feedback{Score: 0.9, Comment: "good"})

	gotA := flushed(t, wA, mtA)
	gotB := flushed(t, wB, mtB)
	require.Len(t, gotA, 5)
	require.Len(t, gotB, 5)

	// Skip the create commits (timestamps differ); every mutation after must
	// serialize identically modulo nothing — same entity, id, action, data.
	for i := 1; i < 5; i++ {
		assert.Equal(t, gotA[i].Entity(), gotB[i].Entity())
		assert.Equal(t, gotA[i].ID(), gotB[i].ID())
		assert.Equal(t, gotA[i].Action(), gotB[i].Action())
		assert.Equal(t, gotA[i].Data(), gotB[i].Data())
	}
}

func TestStrictModeRejectsMalformedIDs(t *testing.T) {
	w, _ := newTestWriter(t, WriterConfig{RaiseExceptions: true})

	_, err := newTrace(TraceConfig{ID: "has spaces!"}, w)
	require.Error(t, err)

	var invalidErr *InvalidIdentifierError
	require.True(t, errors.As(err, &invalidErr))
	assert.Equal(t, EntityTrace, invalidErr.Entity)
	assert.Equal(t, "has spaces!", invalidErr.ID)
}

func TestLenientModeRepairsMalformedIDs(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{ID: "has spaces!"}, w)
	require.NoError(t, err)
	assert.NotEqual(t, "has spaces!", trace.ID())
	assert.NotEmpty(t, trace.ID())

	got := flushed(t, w, mt)
	require.Len(t, got, 1)
	assert.Equal(t, trace.ID(), got[0].ID())
}

func TestEmptyIDsAreGenerated(t *testing.T) {
	w, _ := newTestWriter(t, WriterConfig{RaiseExceptions: true})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	assert.NotEmpty(t, trace.ID())

	other, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	assert.NotEqual(t, trace.ID(), other.ID())
}

func TestDoubleEndEmitsTwoCommits(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)

	trace.End()
	first := trace.EndTimestamp()
	trace.End()
	second := trace.EndTimestamp()

	// Last write wins locally and two end commits go out; the backend keeps
	// the final one.
	assert.True(t, second.After(first))
	got := flushed(t, w, mt)
	require.Len(t, got, 3)
	assert.Equal(t, ActionEnd, got[1].Action())
	assert.Equal(t, ActionEnd, got[2].Action())
}

func TestAddMetricRepeatedNameEmitsIndependentCommits(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)

	// No client-side merge: each call carries only its own value and the
	// backend keeps the last write.
	trace.AddMetric("cost_usd", 0.5)
	trace.AddMetric("cost_usd", 0.75)

	got := flushed(t, w, mt)
	require.Len(t, got, 3)

	first, second := got[1], got[2]
	assert.Equal(t, ActionUpdate, first.Action())
	assert.Equal(t, ActionUpdate, second.Action())
	assert.Equal(t, map[string]float64{"cost_usd": 0.5}, first.Data()["metrics"])
	assert.Equal(t, map[string]float64{"cost_usd": 0.75}, second.Data()["metrics"])
}

func TestTraceEventGeneratesIDWhenEmpty(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	trace.Event("", "cache-miss", map[string]string{"layer": "l2"}, nil)

	got := flushed(t, w, mt)
	require.Len(t, got, 2)
	ev := got[1]
	assert.Equal(t, ActionAddEvent, ev.Action())
	data := ev.Data()
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "cache-miss", data["name"])
	assert.Contains(t, data, "timestamp")
}

func TestRetrievalNormalizesSingleDocument(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	ret, err := trace.Retrieval(RetrievalConfig{Name: "kb-lookup"})
	require.NoError(t, err)

	ret.Input("password reset steps")
	ret.Output("doc-42")

	got := flushed(t, w, mt)
	require.Len(t, got, 4) // trace create, add-retrieval, input update, end+docs

	assert.Equal(t, ActionAddRetrieval, got[1].Action())
	assert.Equal(t, "password reset steps", got[2].Data()["input"])

	endCommit := got[3]
	assert.Equal(t, ActionEnd, endCommit.Action())
	assert.Equal(t, []string{"doc-42"}, endCommit.Data()["docs"])
	assert.False(t, ret.EndTimestamp().IsZero())
}

func TestErrorEntryEmbedsMessageInAddCommit(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	e, err := trace.Error(ErrorConfig{
		Name:    "guardrail",
		Message: "blocked by content policy",
		Code:    "policy_violation",
		Type:    "GuardrailError",
	})
	require.NoError(t, err)

	got := flushed(t, w, mt)
	require.Len(t, got, 2)

	add := got[1]
	assert.Equal(t, ActionAddError, add.Action())
	assert.Equal(t, trace.ID(), add.ID())
	data := add.Data()
	assert.Equal(t, e.ID(), data["id"])
	assert.Equal(t, "blocked by content policy", data["message"])
	assert.Equal(t, "policy_violation", data["code"])
	assert.Equal(t, "GuardrailError", data["type"])
}

func TestAddMetadataSanitizesUnserializableValues(t *testing.T) {
	w, mt := newTestWriter(t, WriterConfig{})

	trace, err := newTrace(TraceConfig{}, w)
	require.NoError(t, err)
	trace.AddMetadata(map[string]any{
		"callback": func() {},
		"count":    3,
	})

	got := flushed(t, w, mt)
	require.Len(t, got, 2)
	meta, ok := got[1].Data()["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, meta["count"])
	assert.Equal(t, "<unserializable func>", meta["callback"])
}

func TestContainerAccessors(t *testing.T) {
	w, _ := newTestWriter(t, WriterConfig{})

	before := time.Now().UTC()
	trace, err := newTrace(TraceConfig{Name: "checkout", Tags: map[string]string{"env": "prod"}}, w)
	require.NoError(t, err)

	assert.Equal(t, EntityTrace, trace.Kind())
	assert.Equal(t, "checkout", trace.Name())
	assert.False(t, trace.StartTimestamp().Before(before))
	assert.True(t, trace.EndTimestamp().IsZero())

	trace.AddTag("region", "eu")
	tags := trace.Tags()
	assert.Equal(t, "prod", tags["env"])
	assert.Equal(t, "eu", tags["region"])

	// Mutating the returned map must not leak into the container.
	tags["env"] = "hacked"
	assert.Equal(t, "prod", trace.Tags()["env"])
}
