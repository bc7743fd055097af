// Package client provides the Seer platform client: authenticated, paced
// GraphQL queries, concurrent paged fetches, and data chunk downloads.
package client

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/seermedical/seer-client-go/pkg/auth"
	"github.com/seermedical/seer-client-go/pkg/cache"
	"github.com/seermedical/seer-client-go/pkg/logging"
	"github.com/seermedical/seer-client-go/pkg/pagination"
	"github.com/seermedical/seer-client-go/pkg/ratelimit"
	"github.com/seermedical/seer-client-go/pkg/retry"
)

// PlatformParallelismReliable reports whether concurrent requests are
// reliable on this platform. Resolved once at start-up.
var PlatformParallelismReliable = runtime.GOOS != "windows"

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seer_requests_total",
		Help: "Total Seer requests by operation and status",
	}, []string{"operation", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seer_request_duration_seconds",
		Help:    "Seer request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seer_errors_total",
		Help: "Total Seer request errors by class",
	}, []string{"class"})

	reauthTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seer_reauthentications_total",
		Help: "Queries re-issued after the server rejected the session",
	})
)

const (
	// DefaultUserAgent identifies the client to the platform.
	DefaultUserAgent = "seer-client-go"

	// DefaultMaxInvocations bounds how often one query is issued when the
	// server keeps rejecting the session.
	DefaultMaxInvocations = 5

	// DefaultLabelBatchSize is the number of labels sent per mutation.
	DefaultLabelBatchSize = 500

	// DefaultSegmentURLBatchSize is the number of segment ids per URL query.
	DefaultSegmentURLBatchSize = 10000
)

// Client talks to one Seer API with one credential source.
type Client struct {
	httpClient *http.Client
	auth       auth.HeaderProvider
	kind       auth.Kind
	apiURL     string
	pacer      *ratelimit.Pacer
	cache      *cache.Manager
	offsets    *pagination.BatchFetcher
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Credentials select how to authenticate. See auth.Resolve.
	Credentials auth.Options

	// AuthOptions tune the authenticator (clock, cookie cache).
	AuthOptions []auth.Option

	// APIURL overrides the base URL implied by the credentials.
	APIURL string

	// UserAgent header sent with every request.
	UserAgent string

	// HTTPClient is used for every request. Default: a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds a single request attempt.
	Timeout time.Duration

	// Threads is the default worker count for paged fetches. Zero selects
	// pagination.DefaultThreads(ParallelismReliable).
	Threads int

	// ParallelismReliable selects the default thread count when Threads
	// is unset. DefaultConfig sets it from PlatformParallelismReliable.
	ParallelismReliable bool

	// Retry bounds attempts for transient failures.
	Retry retry.Config

	// FailOnError makes paged fetches return an error when any page failed.
	FailOnError bool

	// MaxInvocations bounds re-issuing a query after NOT_AUTHENTICATED.
	MaxInvocations int

	// RateLimit is the query budget. The zero value disables pacing.
	RateLimit ratelimit.Config

	// Redis enables the chunk cache and shares the query budget between
	// processes. Optional.
	Redis *redis.Client

	// LabelBatchSize is the default batch size for AddLabelsBatched.
	LabelBatchSize int

	// SegmentURLBatchSize is the number of segment ids per URL query.
	SegmentURLBatchSize int
}

// DefaultConfig returns a configuration for credentials with the
// platform's query budget and thread count.
func DefaultConfig(credentials auth.Options) Config {
	return Config{
		Credentials:         credentials,
		UserAgent:           DefaultUserAgent,
		Timeout:             60 * time.Second,
		Threads:             pagination.DefaultThreads(PlatformParallelismReliable),
		ParallelismReliable: PlatformParallelismReliable,
		Retry:               retry.DefaultConfig(),
		MaxInvocations:      DefaultMaxInvocations,
		RateLimit:           ratelimit.DefaultConfig(),
		LabelBatchSize:      DefaultLabelBatchSize,
		SegmentURLBatchSize: DefaultSegmentURLBatchSize,
	}
}

// New resolves the credentials, establishes a session and creates a client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Threads <= 0 {
		cfg.Threads = pagination.DefaultThreads(cfg.ParallelismReliable)
	}
	if cfg.MaxInvocations <= 0 {
		cfg.MaxInvocations = DefaultMaxInvocations
	}
	if cfg.LabelBatchSize <= 0 {
		cfg.LabelBatchSize = DefaultLabelBatchSize
	}
	if cfg.SegmentURLBatchSize <= 0 {
		cfg.SegmentURLBatchSize = DefaultSegmentURLBatchSize
	}
	if cfg.APIURL != "" {
		cfg.Credentials.APIURL = cfg.APIURL
	}

	logger := logging.NewLogger("client")

	src, err := auth.Resolve(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := append([]auth.Option{auth.WithHTTPClient(httpClient)}, cfg.AuthOptions...)
	provider, err := auth.Provider(ctx, src, opts...)
	if err != nil {
		return nil, err
	}

	apiURL := strings.TrimRight(src.APIURL, "/")
	if apiURL == "" {
		apiURL = auth.DefaultAPIURL
	}

	var store ratelimit.Store
	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis, cfg.RateLimit.Window)
		cacheManager = cache.NewManager(cfg.Redis)
	}

	c := &Client{
		httpClient: httpClient,
		auth:       provider,
		kind:       src.Kind,
		apiURL:     apiURL,
		pacer:      ratelimit.NewPacer(store, cfg.RateLimit, logging.NewLogger("ratelimit")),
		cache:      cacheManager,
		config:     cfg,
		logger:     logger,
	}
	c.offsets = pagination.NewBatchFetcher(nil, c.fetchConfig())

	logger.Info().
		Str("source", src.String()).
		Str("api_url", apiURL).
		Bool("redis", cfg.Redis != nil).
		Dur("pacing_interval", c.pacer.Interval()).
		Msg("Client ready")

	return c, nil
}

// fetchConfig derives the paged fetch settings from the client config.
func (c *Client) fetchConfig() pagination.Config {
	return pagination.Config{
		Threads:     c.config.Threads,
		Retry:       c.config.Retry,
		FailOnError: c.config.FailOnError,
		Timeout:     c.config.Timeout,
	}
}

// APIURL returns the API base URL in use.
func (c *Client) APIURL() string {
	return c.apiURL
}

// Kind returns the credential source kind in use.
func (c *Client) Kind() auth.Kind {
	return c.kind
}

// Threads returns the default worker count.
func (c *Client) Threads() int {
	return c.config.Threads
}

// Close releases resources held by the client. The Redis client belongs
// to the caller and is left open.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// classify records an error under its retry class.
func classify(err error) {
	if err == nil {
		return
	}
	errorsTotal.WithLabelValues(string(retry.Classify(err))).Inc()
}

// String describes the client without secrets.
func (c *Client) String() string {
	return fmt.Sprintf("seer client (%s @ %s)", c.kind, c.apiURL)
}
