// Package kiroku is an observability SDK for LLM applications. It records
// what an application did — model calls, retrievals, tool invocations,
// failures — as an append-only log of commits and delivers them to a
// logging backend asynchronously, so instrumentation never sits on the
// request path.
//
// The entity model is a containment hierarchy: a Session groups the Traces
// of a long-lived interaction; a Trace records one end-to-end request; Spans
// subdivide a trace; Generations, Retrievals, ToolCalls, and error entries
// record the individual operations. Every mutation becomes one commit
// handed to a buffered Writer that batches, retries, and (optionally)
// journals to a write-ahead log for crash safety.
//
// Minimal usage:
//
//	logger, err := kiroku.New(
//		kiroku.WithRepositoryID("my-repo"),
//		kiroku.WithBaseURL("https://logs.example.com"),
//		kiroku.WithAPIKey(os.Getenv("KIROKU_API_KEY")),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Cleanup(context.Background())
//
//	trace, _ := logger.Trace(kiroku.TraceConfig{Name: "answer-question"})
//	gen, _ := trace.Generation(kiroku.GenerationConfig{
//		Provider: "openai",
//		Model:    "gpt-4o",
//		Messages: []kiroku.Message{{Role: "user", Content: "hello"}},
//	})
//	gen.Result(resp)
//	trace.SetOutput(answer)
//	trace.End()
//
// Components that only carry an entity id can use the by-id functions
// (EndTrace, SetGenerationResult, ...) against the same Writer; both calling
// conventions produce identical commits.
package kiroku

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// Version is the SDK version reported in the User-Agent header and
// telemetry.
const Version = "0.1.0"

// Logger is the SDK entry point: it owns the Writer, the transport, and the
// telemetry pipeline. Multiple independent Loggers may coexist in one
// process, each with its own queue and backend.
type Logger struct {
	cfg          Config
	w            *Writer
	logger       *slog.Logger
	otelShutdown telemetry.Shutdown
}

// New initialises the SDK. It loads configuration from the environment,
// applies option overrides, wires the transport and writer, and starts the
// background flush loop. Call Cleanup to flush and release everything.
func New(opts ...Option) (*Logger, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("kiroku: load config: %w", err)
	}
	applyOverrides(&cfg, o)

	if err := validateFor(cfg, o.transport != nil); err != nil {
		return nil, err
	}

	version := o.version
	if version == "" {
		version = Version
	}

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, o.otelInsecure)
	if err != nil {
		return nil, fmt.Errorf("kiroku: telemetry: %w", err)
	}

	transport := o.transport
	if transport == nil {
		transport, err = NewHTTPTransport(TransportConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			HTTPClient: o.httpClient,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, err
		}
	}

	w, err := NewWriter(WriterConfig{
		RepositoryID:    cfg.RepositoryID,
		Transport:       transport,
		Logger:          logger,
		RaiseExceptions: cfg.RaiseExceptions,
		FlushInterval:   cfg.FlushInterval,
		MaxBatchSize:    cfg.MaxBatchSize,
		MaxQueueSize:    cfg.MaxQueueSize,
		WALDir:          cfg.WALDir,
		WALSyncMode:     cfg.WALSyncMode,
	})
	if err != nil {
		_ = transport.Close()
		_ = otelShutdown(context.Background())
		return nil, err
	}
	w.Start(context.Background())

	logger.Info("kiroku initialised",
		"version", version,
		"repository_id", cfg.RepositoryID,
		"wal", cfg.WALDir != "",
	)

	return &Logger{cfg: cfg, w: w, logger: logger, otelShutdown: otelShutdown}, nil
}

func applyOverrides(cfg *Config, o resolvedOptions) {
	if o.repositoryID != "" {
		cfg.RepositoryID = o.repositoryID
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.apiKey != "" {
		cfg.APIKey = o.apiKey
	}
	if o.raiseExceptions != nil {
		cfg.RaiseExceptions = *o.raiseExceptions
	}
	if o.flushInterval > 0 {
		cfg.FlushInterval = o.flushInterval
	}
	if o.maxBatchSize > 0 {
		cfg.MaxBatchSize = o.maxBatchSize
	}
	if o.maxQueueSize > 0 {
		cfg.MaxQueueSize = o.maxQueueSize
	}
	if o.walDir != "" {
		cfg.WALDir = o.walDir
	}
	if o.walSyncMode != "" {
		cfg.WALSyncMode = o.walSyncMode
	}
	if o.otelEndpoint != "" {
		cfg.OTELEndpoint = o.otelEndpoint
	}
	if o.serviceName != "" {
		cfg.ServiceName = o.serviceName
	}
}

// validateFor relaxes the credential requirements when a custom transport
// supplies its own delivery path.
func validateFor(cfg Config, hasTransport bool) error {
	if cfg.RepositoryID == "" {
		return fmt.Errorf("config: KIROKU_REPOSITORY_ID is required")
	}
	if hasTransport {
		return nil
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("config: KIROKU_API_KEY is required")
	}
	return cfg.Validate()
}

// Writer returns the underlying commit writer, for use with the by-id
// functions.
func (l *Logger) Writer() *Writer { return l.w }

// Session starts a new session.
func (l *Logger) Session(cfg SessionConfig) (*Session, error) {
	return newSession(cfg, l.w)
}

// Trace starts a new standalone trace.
func (l *Logger) Trace(cfg TraceConfig) (*Trace, error) {
	return newTrace(cfg, l.w)
}

// Flush synchronously delivers everything currently queued.
func (l *Logger) Flush(ctx context.Context) error {
	return l.w.Flush(ctx)
}

// Cleanup flushes remaining commits, stops background goroutines, and
// releases the transport, write-ahead log, and telemetry pipeline. The
// Logger must not be used after Cleanup returns.
func (l *Logger) Cleanup(ctx context.Context) error {
	err := l.w.Cleanup(ctx)
	if l.otelShutdown != nil {
		if oerr := l.otelShutdown(ctx); oerr != nil && err == nil {
			err = oerr
		}
	}
	return err
}
