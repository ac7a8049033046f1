package kiroku

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Logger.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	repositoryID    string
	baseURL         string
	apiKey          string
	logger          *slog.Logger
	raiseExceptions *bool
	flushInterval   time.Duration
	maxBatchSize    int
	maxQueueSize    int
	walDir          string
	walSyncMode     string
	otelEndpoint    string
	otelInsecure    bool
	serviceName     string
	version         string
	transport       Transport
	httpClient      *http.Client
}

// WithRepositoryID overrides the target repository from config
// (KIROKU_REPOSITORY_ID env var).
func WithRepositoryID(id string) Option {
	return func(o *resolvedOptions) { o.repositoryID = id }
}

// WithBaseURL overrides the backend URL from config (KIROKU_BASE_URL env var).
func WithBaseURL(url string) Option {
	return func(o *resolvedOptions) { o.baseURL = url }
}

// WithAPIKey overrides the API key from config (KIROKU_API_KEY env var).
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.apiKey = key }
}

// WithLogger sets the structured logger for the SDK's own diagnostics.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithRaiseExceptions toggles strict id validation. When enabled, malformed
// caller-supplied ids make constructors return InvalidIdentifierError; when
// disabled (the default) they are replaced with generated ids and logged.
func WithRaiseExceptions(raise bool) Option {
	return func(o *resolvedOptions) { o.raiseExceptions = &raise }
}

// WithFlushInterval sets the time-based flush trigger for the writer.
func WithFlushInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.flushInterval = d }
}

// WithMaxBatchSize caps the number of commits per delivery request.
func WithMaxBatchSize(n int) Option {
	return func(o *resolvedOptions) { o.maxBatchSize = n }
}

// WithMaxQueueSize sets the queue depth that triggers an early flush.
func WithMaxQueueSize(n int) Option {
	return func(o *resolvedOptions) { o.maxQueueSize = n }
}

// WithWALDir enables the crash-safe write-ahead log in the given directory.
// Commits are persisted before they are queued, recovered on the next start,
// and reclaimed after delivery.
func WithWALDir(dir string) Option {
	return func(o *resolvedOptions) { o.walDir = dir }
}

// WithWALSyncMode sets the WAL durability mode: "full" syncs every write,
// "batch" (the default) syncs on a short interval, "none" leaves syncing to
// the OS.
func WithWALSyncMode(mode string) Option {
	return func(o *resolvedOptions) { o.walSyncMode = mode }
}

// WithOTELEndpoint enables OpenTelemetry export of the SDK's own health
// metrics (queue depth, dropped commits, WAL segments) to the given OTLP
// endpoint.
func WithOTELEndpoint(endpoint string, insecure bool) Option {
	return func(o *resolvedOptions) {
		o.otelEndpoint = endpoint
		o.otelInsecure = insecure
	}
}

// WithServiceName sets the OTEL service name. Defaults to "kiroku".
func WithServiceName(name string) Option {
	return func(o *resolvedOptions) { o.serviceName = name }
}

// WithVersion sets the version string reported in telemetry and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTransport replaces the default HTTP transport. Useful for tests and
// for routing commits into a custom pipeline. When set, BaseURL and APIKey
// are not required.
func WithTransport(t Transport) Option {
	return func(o *resolvedOptions) { o.transport = t }
}

// WithHTTPClient sets a custom HTTP client for the default transport.
// Ignored when WithTransport is used.
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = client }
}
