package client

import (
	"context"
	"fmt"
	"maps"

	"github.com/seermedical/seer-client-go/pkg/pagination"
	"github.com/seermedical/seer-client-go/pkg/table"
)

// PagedQuery is a GraphQL query run once per page id.
type PagedQuery struct {
	// Query is the GraphQL document.
	Query string

	// Variables are shared by every page.
	Variables map[string]any

	// IDVariable receives the page id.
	IDVariable string

	// ObjectPath locates the list (or object) that becomes the page's rows.
	ObjectPath []string

	// ColumnPrefix is prepended to every column built from the response.
	ColumnPrefix string

	// IDColumn, when set, adds a column holding the page id to every row.
	IDColumn string

	// PartyID selects the organisation the queries run for.
	PartyID string
}

// FetchPages runs q for each page id with up to threads concurrent
// requests and concatenates the pages in the order of ids. threads <= 0
// uses the configured default.
//
// The returned Result reports per-page failures. The error is non-nil when
// authentication failed, the context ended, or FailOnError is set and a
// page failed.
func (c *Client) FetchPages(ctx context.Context, q PagedQuery, ids []string, threads int) (*table.Table, *pagination.Result, error) {
	if q.IDVariable == "" {
		return nil, nil, fmt.Errorf("paged query has no id variable")
	}

	page := func(ctx context.Context, id string) (*table.Table, error) {
		vars := make(map[string]any, len(q.Variables)+1)
		maps.Copy(vars, q.Variables)
		vars[q.IDVariable] = id

		data, err := c.query(ctx, q.Query, vars, q.PartyID)
		if err != nil {
			return nil, err
		}
		tbl, err := tableAt(data, q.ObjectPath...)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", id, err)
		}
		if q.ColumnPrefix != "" {
			prefixColumns(tbl, q.ColumnPrefix)
		}
		if q.IDColumn != "" && tbl.Len() > 0 {
			tbl = tbl.WithColumn(q.IDColumn, id)
		}
		return tbl, nil
	}

	res, err := pagination.NewBatchFetcher(page, c.fetchConfig()).Fetch(ctx, ids, threads)
	classify(err)
	return res.Table(), res, err
}

// Paginate runs query with $limit and $offset variables, advancing the
// offset by limit until the list at objectPath comes back empty, and
// concatenates the pages.
func (c *Client) Paginate(ctx context.Context, query string, variables map[string]any, limit int, partyID string, objectPath ...string) (*table.Table, error) {
	page := func(ctx context.Context, limit, offset int) (*table.Table, error) {
		vars := make(map[string]any, len(variables)+2)
		maps.Copy(vars, variables)
		vars["limit"] = limit
		vars["offset"] = offset

		data, err := c.query(ctx, query, vars, partyID)
		if err != nil {
			return nil, err
		}
		return tableAt(data, objectPath...)
	}

	tbl, err := c.offsets.Paginate(ctx, page, limit)
	classify(err)
	return tbl, err
}

// tableAt builds a table from the member of data at path.
func tableAt(data []byte, path ...string) (*table.Table, error) {
	raw, err := extract(data, path...)
	if err != nil {
		return nil, err
	}
	return table.FromJSON(raw)
}

// prefixColumns renames every column of t to prefix + name, in place.
func prefixColumns(t *table.Table, prefix string) *table.Table {
	for i, name := range t.Columns {
		t.Columns[i] = prefix + name
	}
	return t
}
