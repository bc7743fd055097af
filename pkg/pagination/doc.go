// Package pagination fetches paged query results concurrently and merges
// them into one table.
//
// A paged query is split by the caller into page ids (one study, one label
// group, one data chunk). BatchFetcher runs a PageFunc for each id through
// a bounded worker pool and returns the partial tables in the order the ids
// were given, so the output does not depend on the thread count or on how
// long individual pages took.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(fetchStudy, pagination.DefaultConfig())
//	result, err := fetcher.Fetch(ctx, studyIDs, 5)
//	if err != nil {
//		return err
//	}
//	tbl := result.Table()
//
// The batch fetcher:
//   - Runs sequentially when threads == 1, with no goroutines
//   - Otherwise starts min(threads, pages) workers over a shared queue
//   - Retries transient page failures with exponential backoff and jitter
//   - Stops dispatching on an authentication failure and returns partial data
//   - Records per-page failures separately from empty pages
//
// Paginate covers the other paging style: a single query repeated with a
// growing offset until it returns nothing.
package pagination
