package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/seermedical/seer-client-go/pkg/retry"
	"github.com/seermedical/seer-client-go/pkg/table"
)

// DefaultLimit is the page size used by Paginate when none is given.
const DefaultLimit = 50

// maxOffsetPages guards against a server that never returns an empty page.
const maxOffsetPages = 100000

// OffsetQuery fetches the items in [offset, offset+limit).
type OffsetQuery func(ctx context.Context, limit, offset int) (*table.Table, error)

// Paginate calls query with offset 0, limit, 2*limit, ... until a page
// comes back empty, and concatenates the pages in order. Each call is
// retried like a Fetch page.
func (bf *BatchFetcher) Paginate(ctx context.Context, query OffsetQuery, limit int) (*table.Table, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()
	var parts []*table.Table

	for page, offset := 0, 0; page < maxOffsetPages; page, offset = page+1, offset+limit {
		var tbl *table.Table
		_, err := retry.Do(ctx, "offset_page", bf.config.Retry, func(int) error {
			attemptCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
			defer cancel()

			t, err := query(attemptCtx, limit, offset)
			if err != nil {
				return err
			}
			tbl = t
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}

		if tbl.Len() == 0 {
			bf.logger.Debug().
				Int("pages", page).
				Int("limit", limit).
				Dur("duration", time.Since(start)).
				Msg("Offset pagination complete")
			return table.Concat(parts...), nil
		}
		parts = append(parts, tbl)
	}

	return nil, fmt.Errorf("offset pagination exceeded %d pages", maxOffsetPages)
}
