package kiroku

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

// memTransport records every pushed batch in memory. Failure injection via
// setFail lets tests exercise the retry and re-queue paths.
type memTransport struct {
	mu      sync.Mutex
	batches [][]CommitLog
	fail    atomic.Bool
	pushes  atomic.Int64
	closed  atomic.Bool
}

func (m *memTransport) PushCommits(_ context.Context, _ string, entries []CommitLog) error {
	m.pushes.Add(1)
	if m.fail.Load() {
		return fmt.Errorf("transport down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]CommitLog(nil), entries...))
	return nil
}

func (m *memTransport) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *memTransport) setFail(fail bool) { m.fail.Store(fail) }

// commits returns every delivered commit in delivery order.
func (m *memTransport) commits() []CommitLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CommitLog
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func (m *memTransport) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestWriter builds a Writer on a memTransport without starting the
// background flush loop; tests flush explicitly for determinism.
func newTestWriter(t *testing.T, cfg WriterConfig) (*Writer, *memTransport) {
	t.Helper()
	mt := &memTransport{}
	cfg.RepositoryID = "test-repo"
	cfg.Transport = mt
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	return w, mt
}

// flushed flushes the writer and returns everything delivered so far.
func flushed(t *testing.T, w *Writer, mt *memTransport) []CommitLog {
	t.Helper()
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	return mt.commits()
}
