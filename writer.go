package kiroku

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kiroku/internal/telemetry"
	"github.com/ashita-ai/kiroku/internal/wal"
)

// maxQueueCapacity is the hard upper limit on queued commits to prevent OOM.
// When this limit is reached, Commit drops the entry and counts it.
const maxQueueCapacity = 100_000

const (
	defaultFlushInterval = 5 * time.Second
	defaultMaxBatchSize  = 100
	defaultMaxQueueSize  = 1_000
	sendMaxAttempts      = 3
	sendBackoffBase      = 250 * time.Millisecond
)

// Transport delivers commit batches to the logging backend. Implementations
// must be safe for concurrent use.
type Transport interface {
	PushCommits(ctx context.Context, repositoryID string, entries []CommitLog) error
	Close() error
}

// WriterConfig configures a Writer. Zero values fall back to defaults.
type WriterConfig struct {
	RepositoryID    string
	Transport       Transport
	Logger          *slog.Logger
	RaiseExceptions bool

	FlushInterval time.Duration // time-based flush trigger
	MaxBatchSize  int           // max commits per HTTP request
	MaxQueueSize  int           // queue depth that triggers an early flush

	// WALDir enables crash-safe buffering when non-empty: commits are
	// persisted before they are queued and reclaimed after delivery.
	WALDir      string
	WALSyncMode string // "full", "batch", or "none"; default "batch"
}

// Writer accumulates commit entries in memory and flushes them to the
// backend in order when either the queue size or the flush interval is
// reached. Commit never blocks and never returns an error; delivery
// failures are retried, logged, and surfaced through DroppedCommits.
type Writer struct {
	repositoryID string
	transport    Transport
	logger       *slog.Logger
	raise        bool
	maxBatch     int
	maxQueue     int
	flushEvery   time.Duration

	mu    sync.Mutex
	queue []CommitLog

	// flushMu serializes whole flush cycles (snapshot through send). The
	// loop goroutine and explicit Flush callers may overlap; without this,
	// two flushes would snapshot disjoint batches and transmit them
	// concurrently, reordering commits on the wire.
	flushMu sync.Mutex

	droppedCommits atomic.Int64 // total commits dropped due to capacity

	wal *wal.WAL

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc // cancels the flushLoop goroutine
	drainCtx   context.Context    // set by Cleanup so final flush respects caller's deadline
	started    atomic.Bool
}

// NewWriter creates a Writer. Callers normally obtain one indirectly through
// New, but a standalone Writer is useful for custom pipelines and tests.
// Start must be called before the Writer delivers anything.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.RepositoryID == "" {
		return nil, fmt.Errorf("kiroku: writer requires a repository id")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("kiroku: writer requires a transport")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}

	w, err := wal.New(logger, wal.Config{Dir: cfg.WALDir, SyncMode: cfg.WALSyncMode})
	if err != nil {
		return nil, fmt.Errorf("kiroku: open wal: %w", err)
	}

	return &Writer{
		repositoryID: cfg.RepositoryID,
		transport:    cfg.Transport,
		logger:       logger,
		raise:        cfg.RaiseExceptions,
		maxBatch:     cfg.MaxBatchSize,
		maxQueue:     cfg.MaxQueueSize,
		flushEvery:   cfg.FlushInterval,
		wal:          w,
		flushCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}, nil
}

// Start recovers any commits left in the write-ahead log, registers OTEL
// metrics, and begins the background flush loop. Call Cleanup to stop.
func (w *Writer) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.recover()
	w.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.flushLoop(loopCtx)
}

// Commit enqueues one entry for asynchronous delivery. It never blocks and
// never fails: when the queue is at hard capacity the entry is dropped,
// logged, and counted. Ordering of accepted entries is preserved end to end.
func (w *Writer) Commit(entry CommitLog) {
	if w.wal != nil {
		if err := w.wal.Write([][]byte{entry.Serialize()}); err != nil {
			w.logger.Error("kiroku: wal write failed, commit buffered in memory only",
				"error", err, "entity", string(entry.Entity()), "entity_id", entry.ID())
		}
	}
	w.enqueue(entry)
}

func (w *Writer) enqueue(entry CommitLog) {
	w.mu.Lock()
	if len(w.queue) >= maxQueueCapacity {
		w.mu.Unlock()
		w.droppedCommits.Add(1)
		w.logger.Error("kiroku: commit queue at capacity, dropping commit",
			"entity", string(entry.Entity()), "entity_id", entry.ID(), "action", entry.Action())
		return
	}
	w.queue = append(w.queue, entry)
	trigger := len(w.queue) >= w.maxQueue
	w.mu.Unlock()

	if trigger {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

// recover re-queues commits persisted by a previous process that died before
// flushing. Recovered entries go straight to the in-memory queue; they are
// already in the log.
func (w *Writer) recover() {
	if w.wal == nil {
		return
	}
	payloads, err := w.wal.Recover()
	if err != nil {
		w.logger.Error("kiroku: wal recovery failed", "error", err)
		return
	}
	if len(payloads) == 0 {
		return
	}
	recovered := 0
	for _, p := range payloads {
		entry, err := ParseCommitLog(p)
		if err != nil {
			w.logger.Warn("kiroku: skipping unparseable wal record", "error", err)
			continue
		}
		w.mu.Lock()
		w.queue = append(w.queue, entry)
		w.mu.Unlock()
		recovered++
	}
	w.logger.Info("kiroku: recovered commits from wal", "count", recovered)
}

func (w *Writer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush using the drain context provided by Cleanup().
			// We need a non-cancelled context because ctx is already done.
			if w.drainCtx != nil {
				w.flush(w.drainCtx) //nolint:errcheck // logged inside
			} else {
				// Fallback for direct cancellation without Cleanup (e.g., tests).
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				w.flush(fallbackCtx) //nolint:errcheck // logged inside
				cancel()
			}
			close(w.done)
			return
		case <-ticker.C:
			w.flush(ctx) //nolint:errcheck // logged inside
		case <-w.flushCh:
			w.flush(ctx) //nolint:errcheck // logged inside
		}
	}
}

// Flush synchronously delivers everything currently queued. It returns after
// transmission completes or after retries are exhausted; in the latter case
// the undelivered tail is re-queued and the transport error is returned.
func (w *Writer) Flush(ctx context.Context) error {
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	ctx, span := telemetry.Tracer("kiroku/writer").Start(ctx, "kiroku.flush")
	defer span.End()

	start := time.Now()
	sent := 0

	// Chunks go out sequentially: parallel sends would reorder commits and
	// the backend replays them as a log.
	var sendErr error
	for off := 0; off < len(batch); off += w.maxBatch {
		hi := min(off+w.maxBatch, len(batch))
		if err := w.send(ctx, batch[off:hi]); err != nil {
			sendErr = err
			span.RecordError(err)
			w.requeue(batch[off:])
			w.logger.Error("kiroku: flush failed, re-queued undelivered commits",
				"error", err, "delivered", sent, "requeued", len(batch)-off)
			break
		}
		sent += hi - off
	}

	if sent > 0 {
		if w.wal != nil {
			if err := w.wal.Checkpoint(sent); err != nil {
				w.logger.Warn("kiroku: wal checkpoint failed", "error", err)
			}
		}
		w.logger.Info("kiroku: batch flushed",
			"batch_size", sent,
			"flush_duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return sendErr
}

// requeue puts undelivered commits back at the head of the queue so ordering
// survives a failed flush, respecting the hard capacity limit.
func (w *Writer) requeue(entries []CommitLog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue)+len(entries) <= maxQueueCapacity {
		w.queue = append(append([]CommitLog(nil), entries...), w.queue...)
		return
	}
	w.droppedCommits.Add(int64(len(entries)))
	w.logger.Error("kiroku: dropping commits, queue at capacity after flush failure",
		"dropped", len(entries))
}

func (w *Writer) send(ctx context.Context, chunk []CommitLog) error {
	var err error
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		err = w.transport.PushCommits(ctx, w.repositoryID, chunk)
		if err == nil {
			return nil
		}
		if attempt == sendMaxAttempts {
			break
		}
		w.logger.Warn("kiroku: push failed, retrying",
			"error", err, "attempt", attempt, "batch_size", len(chunk))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * sendBackoffBase):
		}
	}
	return err
}

// Cleanup flushes remaining commits, stops the flush loop, and releases the
// write-ahead log and transport. The ctx deadline bounds the final flush.
// The Writer must not be used after Cleanup returns.
func (w *Writer) Cleanup(ctx context.Context) error {
	if w.started.Load() {
		w.drainCtx = ctx // Store so flushLoop's final flush respects caller's deadline.
		if w.cancelLoop != nil {
			w.cancelLoop() // Signal flushLoop to exit; it does a final flush before closing w.done.
		}
		select {
		case <-w.done:
		case <-ctx.Done():
			w.logger.Warn("kiroku: cleanup timed out waiting for flush loop")
		}
	}

	var err error
	if w.wal != nil {
		err = w.wal.Close()
	}
	if cerr := w.transport.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// registerMetrics registers observable OTEL gauges for writer health.
// Called from Start() after the global meter provider has been initialized.
func (w *Writer) registerMetrics() {
	meter := telemetry.Meter("kiroku/writer")

	_, _ = meter.Int64ObservableGauge("kiroku.writer.queue_depth",
		metric.WithDescription("Current number of commits waiting in the writer queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(w.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("kiroku.writer.dropped_total",
		metric.WithDescription("Total commits dropped due to queue capacity exhaustion"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(w.DroppedCommits())
			return nil
		}),
	)
}

// Len returns the current number of queued commits.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// DroppedCommits returns the total number of commits dropped due to queue
// capacity exhaustion. A non-zero value indicates data loss.
func (w *Writer) DroppedCommits() int64 {
	return w.droppedCommits.Load()
}

// RaiseExceptions reports whether strict id validation is enabled.
func (w *Writer) RaiseExceptions() bool { return w.raise }

func (w *Writer) log() *slog.Logger { return w.logger }
