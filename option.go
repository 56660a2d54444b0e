package forum

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/forum/cache"
	"github.com/rbaliyan/forum/retry"
	"github.com/rbaliyan/forum/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultShutdownTimeout = 30 * time.Second // default graceful shutdown timeout
	MinShutdownTimeout     = 1 * time.Second  // minimum shutdown timeout

	// Default content limits
	DefaultMaxSubjectLength = 255        // characters
	DefaultMaxBodySize      = 64 * 1024  // 64 KB
	DefaultMaxCommentLength = 1000       // characters
	DefaultMaxPollChoices   = 256

	// Paging
	DefaultPageSize    = 20  // topics or messages per page
	DefaultMaxPageSize = 100 // cap on any requested page size
	DefaultCachedPages = 5   // leading pages of a listing that may be cached

	// Cache TTLs
	DefaultMemberListingTTL = 60 * time.Second
	DefaultGuestListingTTL  = 5 * time.Minute
	DefaultStatsTTL         = 3 * time.Hour

	// Concurrency limits
	DefaultMaxConcurrentWrites = 32 // max concurrent write operations per service
)

// DefaultPageSizes are the page sizes whose listings are cached.
var DefaultPageSizes = []int{10, 20, 50}

// options holds forum configuration.
type options struct {
	store  store.Store
	cache  cache.Cache
	logger *slog.Logger

	accessPolicy AccessPolicy
	identity     IdentityResolver
	formatter    Formatter
	clock        func() time.Time

	// Paging and caching
	pageSizes        []int
	maxPageSize      int
	defaultPageSize  int
	cachedPages      int
	memberListingTTL time.Duration
	guestListingTTL  time.Duration
	statsTTL         time.Duration

	// Content limits
	maxSubjectLength int
	maxBodySize      int
	maxCommentLength int
	maxPollChoices   int

	// Concurrency limits
	maxConcurrentWrites int

	// Shutdown
	shutdownTimeout time.Duration

	// Transaction retries
	retry retry.Config

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool                    // If true, event publishing failures cause operation to fail
	eventTransport        transport.Transport     // Event transport (optional, uses noop if nil)
	redisClient           redis.UniversalClient   // Redis client for event transport (optional, uses noop if nil)
	onEventPublishFailure EventPublishFailureFunc // Callback for event publish failures (always set)
}

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "PostCreated"), and err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic recovery.
// If the callback panics, the panic is logged and suppressed.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:       slog.Default(),
		accessPolicy: DefaultAccessPolicy(),
		clock:        time.Now,
		// Paging and caching defaults
		pageSizes:        slices.Clone(DefaultPageSizes),
		maxPageSize:      DefaultMaxPageSize,
		defaultPageSize:  DefaultPageSize,
		cachedPages:      DefaultCachedPages,
		memberListingTTL: DefaultMemberListingTTL,
		guestListingTTL:  DefaultGuestListingTTL,
		statsTTL:         DefaultStatsTTL,
		// Content limits defaults
		maxSubjectLength: DefaultMaxSubjectLength,
		maxBodySize:      DefaultMaxBodySize,
		maxCommentLength: DefaultMaxCommentLength,
		maxPollChoices:   DefaultMaxPollChoices,
		// Concurrency limits defaults
		maxConcurrentWrites: DefaultMaxConcurrentWrites,
		// Shutdown defaults
		shutdownTimeout: DefaultShutdownTimeout,
		retry:           retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	// Validate paging consistency
	if o.defaultPageSize > o.maxPageSize {
		o.defaultPageSize = o.maxPageSize
	}
	o.pageSizes = slices.DeleteFunc(o.pageSizes, func(n int) bool { return n > o.maxPageSize })

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures a forum service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithCache sets the listing cache. Without one every listing is read from
// the store.
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// --- Collaborator Options ---

// WithAccessPolicy sets how board visibility is decided when group lookups
// fail or a member has no membership row.
// Default is DefaultAccessPolicy().
func WithAccessPolicy(p AccessPolicy) Option {
	return func(o *options) {
		o.accessPolicy = p
	}
}

// WithIdentityResolver sets the resolver for poster names and avatars.
// Without one, posts carry the name stored with the member row.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(o *options) {
		if r != nil {
			o.identity = r
		}
	}
}

// WithFormatter sets the renderer for message bodies. Without one,
// MessageView.Rendered is empty and clients render Body themselves.
func WithFormatter(f Formatter) Option {
	return func(o *options) {
		if f != nil {
			o.formatter = f
		}
	}
}

// --- Paging and Cache Options ---

// WithPageSizes sets the page sizes whose listings are cached.
// Non-positive sizes are dropped. Default is 10, 20 and 50.
func WithPageSizes(sizes ...int) Option {
	return func(o *options) {
		valid := slices.DeleteFunc(slices.Clone(sizes), func(n int) bool { return n <= 0 })
		if len(valid) > 0 {
			slices.Sort(valid)
			o.pageSizes = slices.Compact(valid)
		}
	}
}

// WithMaxPageSize caps the page size of any listing.
// Default is 100.
func WithMaxPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPageSize = n
		}
	}
}

// WithDefaultPageSize sets the page size used when a request names none.
// If this exceeds the max page size, it is capped.
// Default is 20.
func WithDefaultPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultPageSize = n
		}
	}
}

// WithCachedPages sets how many leading pages of a listing may be cached.
// Default is 5.
func WithCachedPages(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cachedPages = n
		}
	}
}

// WithCacheTTLs sets the TTLs of member-specific and guest listings.
// Defaults are 60 seconds and 5 minutes.
func WithCacheTTLs(member, guest time.Duration) Option {
	return func(o *options) {
		if member > 0 {
			o.memberListingTTL = member
		}
		if guest > 0 {
			o.guestListingTTL = guest
		}
	}
}

// WithStatsTTL sets how long forum statistics are cached.
// Default is 3 hours.
func WithStatsTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.statsTTL = d
		}
	}
}

// --- Content Limit Options ---

// WithMaxSubjectLength sets the maximum subject length in characters.
// Default is 255.
func WithMaxSubjectLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSubjectLength = n
		}
	}
}

// WithMaxBodySize sets the maximum body size in bytes.
// Default is 64 KB.
func WithMaxBodySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithMaxCommentLength sets the maximum report comment length in characters.
// Default is 1000.
func WithMaxCommentLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCommentLength = n
		}
	}
}

// WithMaxPollChoices sets the maximum number of choices in a poll.
// Default is 256.
func WithMaxPollChoices(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.maxPollChoices = n
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentWrites sets the maximum number of concurrent write operations.
// Default is 32.
func WithMaxConcurrentWrites(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentWrites = n
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight writes
// during graceful shutdown.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// WithRetry sets the retry policy for write transactions that fail with
// store.ErrTransactionFailed.
// Default is retry.DefaultConfig().
func WithRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// When enabled, spans are created for all forum operations.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name used for the event bus.
// Default is "forum".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures should
// cause the operation to fail. By default, event failures are logged and
// the operation succeeds (the post is still stored).
//
// When set, the operation returns its result together with an
// *EventPublishError.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and subscribing.
// If not provided, a noop transport is used (events are silently dropped).
//
// Example with Redis:
//
//	transport, _ := redis.New(redisClient)
//	svc, _ := forum.NewService(forum.WithEventTransport(transport))
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// This callback is invoked whenever an event fails to publish (and eventErrorsFatal is false).
//
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// limits returns the configured content limits.
func (o *options) limits() Limits {
	return Limits{
		MaxSubjectLength: o.maxSubjectLength,
		MaxBodySize:      o.maxBodySize,
		MaxCommentLength: o.maxCommentLength,
		MaxPollChoices:   o.maxPollChoices,
	}
}

// page normalizes a requested page number and size.
func (o *options) page(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = o.defaultPageSize
	}
	size = max(min(size, o.maxPageSize), 1)
	// Pages past this one start beyond any addressable row.
	return min(page, lastPage(size)), size
}

// lastPage is the highest page whose offset fits in an int.
func lastPage(size int) int {
	return max(math.MaxInt/size-1, 1)
}

// pageOptions converts a 1-based page into store list options.
func pageOptions(page, size int) store.ListOptions {
	size = max(size, 1)
	page = min(max(page, 1), lastPage(size))
	return store.ListOptions{Limit: size, Offset: (page - 1) * size}
}
