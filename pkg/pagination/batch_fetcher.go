package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/seermedical/seer-client-go/pkg/auth"
	"github.com/seermedical/seer-client-go/pkg/logging"
	"github.com/seermedical/seer-client-go/pkg/retry"
	"github.com/seermedical/seer-client-go/pkg/table"
)

// Prometheus metrics for page fetching.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seer_pages_total",
		Help: "Pages fetched by result (success, failed, aborted)",
	}, []string{"result"})

	pageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seer_page_duration_seconds",
		Help:    "Time to fetch one page including retries",
		Buckets: prometheus.DefBuckets,
	})

	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seer_fetch_workers_active",
		Help: "Page workers currently running",
	})
)

const (
	// ThreadsReliable is the default worker count where parallel requests
	// are dependable.
	ThreadsReliable = 5

	// ThreadsUnreliable is the default worker count elsewhere.
	ThreadsUnreliable = 1
)

// ErrAborted marks pages that were never dispatched because the fetch
// stopped early (authentication failure or cancellation).
var ErrAborted = errors.New("page not fetched: fetch aborted")

// DefaultThreads returns the default worker count for a platform whose
// parallelism is (or is not) reliable.
func DefaultThreads(parallelismReliable bool) int {
	if parallelismReliable {
		return ThreadsReliable
	}
	return ThreadsUnreliable
}

// PageFunc performs the request for one page and returns its partial table.
// A nil or zero-row table is a valid, empty page.
type PageFunc func(ctx context.Context, pageID string) (*table.Table, error)

// Config holds batch fetcher configuration.
type Config struct {
	// Threads is used when Fetch is called with threads <= 0.
	Threads int `yaml:"threads"`

	// Retry bounds the attempts made for each page.
	Retry retry.Config `yaml:"retry"`

	// FailOnError makes Fetch return a *PartialFailureError when any page
	// failed. Otherwise failures are only reported in the Result.
	FailOnError bool `yaml:"fail_on_error"`

	// Timeout bounds a single attempt for one page.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a configuration for a platform with reliable
// parallelism.
func DefaultConfig() Config {
	return Config{
		Threads: DefaultThreads(true),
		Retry:   retry.DefaultConfig(),
		Timeout: 60 * time.Second,
	}
}

// PageResult is the outcome of one page.
type PageResult struct {
	ID       string
	Table    *table.Table
	Err      error
	Attempts int
	Duration time.Duration
}

// Failed reports whether the page produced no usable table. An empty
// table is a success.
func (p PageResult) Failed() bool {
	return p.Err != nil
}

// Result holds one PageResult per requested page, in request order.
type Result struct {
	Pages []PageResult
}

// Table concatenates the tables of successful pages in request order.
func (r *Result) Table() *table.Table {
	if r == nil {
		return table.New()
	}
	parts := make([]*table.Table, 0, len(r.Pages))
	for _, p := range r.Pages {
		if !p.Failed() {
			parts = append(parts, p.Table)
		}
	}
	return table.Concat(parts...)
}

// Failed returns the pages that did not succeed, in request order.
func (r *Result) Failed() []PageResult {
	if r == nil {
		return nil
	}
	var failed []PageResult
	for _, p := range r.Pages {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}

// Err returns a *PartialFailureError if any page failed, else nil.
func (r *Result) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PartialFailureError{Failed: failed, Total: len(r.Pages)}
}

// PartialFailureError reports the pages a fetch could not complete.
type PartialFailureError struct {
	Failed []PageResult
	Total  int
}

// Error implements the error interface.
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d pages failed; first (%s): %v", len(e.Failed), e.Total, e.Failed[0].ID, e.Failed[0].Err)
}

// Unwrap exposes every page error to errors.Is/As.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, p := range e.Failed {
		errs[i] = p.Err
	}
	return errs
}

// BatchFetcher runs one PageFunc over many page ids.
type BatchFetcher struct {
	fn     PageFunc
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fn PageFunc, config Config) *BatchFetcher {
	if config.Threads <= 0 {
		config.Threads = DefaultThreads(true)
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &BatchFetcher{
		fn:     fn,
		config: config,
		logger: logging.NewLogger("pagination"),
	}
}

// Fetch requests every page id and returns their results in the order of
// pageIDs, whatever the number of threads.
//
// threads <= 0 uses the configured default. threads == 1 fetches
// sequentially on the calling goroutine. Otherwise min(threads, len(pageIDs))
// workers drain a shared queue and Fetch waits for all of them.
//
// Transient page failures are retried and are invisible in the output. An
// authentication failure stops dispatching further pages; pages already in
// flight finish, and Fetch returns the partial Result with that error.
func (bf *BatchFetcher) Fetch(ctx context.Context, pageIDs []string, threads int) (*Result, error) {
	start := time.Now()
	result := &Result{Pages: make([]PageResult, len(pageIDs))}
	if len(pageIDs) == 0 {
		return result, nil
	}

	if threads <= 0 {
		threads = bf.config.Threads
	}
	if threads > len(pageIDs) {
		threads = len(pageIDs)
	}

	bf.logger.Debug().
		Int("pages", len(pageIDs)).
		Int("threads", threads).
		Msg("Starting page fetch")

	var stop atomic.Bool

	if threads <= 1 {
		for i, id := range pageIDs {
			result.Pages[i] = bf.fetchOrSkip(ctx, id, &stop)
		}
	} else {
		pageQueue := make(chan int, len(pageIDs))
		for i := range pageIDs {
			pageQueue <- i
		}
		close(pageQueue)

		var wg sync.WaitGroup
		for w := 0; w < threads; w++ {
			wg.Add(1)
			go bf.worker(ctx, w, pageIDs, pageQueue, result.Pages, &stop, &wg)
		}
		wg.Wait()
	}

	failed := result.Failed()
	bf.logger.Info().
		Int("pages", len(pageIDs)).
		Int("failed", len(failed)).
		Int("threads", threads).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	for _, p := range failed {
		if retry.Classify(p.Err) == retry.ClassAuth {
			return result, p.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if bf.config.FailOnError && len(failed) > 0 {
		return result, result.Err()
	}
	return result, nil
}

// worker processes pages from the queue, writing each result to its own slot.
func (bf *BatchFetcher) worker(ctx context.Context, workerID int, pageIDs []string, pageQueue <-chan int, out []PageResult, stop *atomic.Bool, wg *sync.WaitGroup) {
	defer wg.Done()
	workersActive.Inc()
	defer workersActive.Dec()

	processed := 0
	for i := range pageQueue {
		out[i] = bf.fetchOrSkip(ctx, pageIDs[i], stop)
		processed++
	}

	bf.logger.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", processed).
		Msg("Worker completed")
}

// fetchOrSkip fetches one page unless the fetch has been stopped, and
// stops it on an authentication failure.
func (bf *BatchFetcher) fetchOrSkip(ctx context.Context, id string, stop *atomic.Bool) PageResult {
	if stop.Load() {
		pagesTotal.WithLabelValues("aborted").Inc()
		return PageResult{ID: id, Err: ErrAborted}
	}
	if err := ctx.Err(); err != nil {
		pagesTotal.WithLabelValues("aborted").Inc()
		return PageResult{ID: id, Err: fmt.Errorf("%w: %w", ErrAborted, err)}
	}

	res := bf.fetchPage(ctx, id)
	if res.Failed() && retry.Classify(res.Err) == retry.ClassAuth {
		if !stop.Swap(true) {
			bf.logger.Error().
				Err(res.Err).
				Str("page_id", id).
				Msg("Authentication failed, not dispatching further pages")
		}
	}
	return res
}

// fetchPage runs fn for one page with per-attempt timeout and retry.
func (bf *BatchFetcher) fetchPage(ctx context.Context, id string) PageResult {
	start := time.Now()
	var tbl *table.Table

	attempts, err := retry.Do(ctx, "page", bf.config.Retry, func(attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()

		t, err := bf.fn(attemptCtx, id)
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && retry.Classify(err) == retry.ClassPermanent {
				return &retry.TransientRequestError{Op: "page " + id, Err: err}
			}
			return err
		}
		tbl = t
		return nil
	})

	res := PageResult{ID: id, Attempts: attempts, Duration: time.Since(start)}
	pageDuration.Observe(res.Duration.Seconds())

	if err != nil {
		res.Err = err
		pagesTotal.WithLabelValues("failed").Inc()
		bf.logger.Warn().
			Err(err).
			Str("page_id", id).
			Int("attempts", attempts).
			Msg("Page fetch failed")
		return res
	}

	if tbl == nil {
		tbl = table.New()
	}
	res.Table = tbl
	pagesTotal.WithLabelValues("success").Inc()
	return res
}

// IsAuthError reports whether err stopped a fetch because authentication failed.
func IsAuthError(err error) bool {
	return errors.Is(err, auth.ErrAuthentication)
}
