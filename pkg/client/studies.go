package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/seermedical/seer-client-go/pkg/channeldata"
	"github.com/seermedical/seer-client-go/pkg/pagination"
	"github.com/seermedical/seer-client-go/pkg/table"
)

// Patient is the subject of a study.
type Patient struct {
	ID   string `json:"id"`
	User struct {
		FullName string `json:"fullName"`
	} `json:"user"`
}

// Study is a recording study with its channel groups.
type Study struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Patient       *Patient                   `json:"patient"`
	ChannelGroups []channeldata.ChannelGroup `json:"channelGroups"`
}

// ChannelGroup returns the channel group with the given id or name.
func (s *Study) ChannelGroup(idOrName string) (channeldata.ChannelGroup, bool) {
	for _, g := range s.ChannelGroups {
		if g.ID == idOrName || g.Name == idOrName {
			return g, true
		}
	}
	return channeldata.ChannelGroup{}, false
}

// GetStudies lists the studies matching searchTerm (all studies when
// empty), limit per request. Columns: id, name, patient.id,
// patient.user.fullName.
func (c *Client) GetStudies(ctx context.Context, searchTerm, partyID string, limit int) (*table.Table, error) {
	vars := map[string]any{}
	if searchTerm != "" {
		vars["searchTerm"] = searchTerm
	}
	if partyID != "" {
		vars["partyId"] = partyID
	}

	tbl, err := c.Paginate(ctx, studiesQuery, vars, limit, partyID, "studies")
	if err != nil {
		return nil, fmt.Errorf("get studies: %w", err)
	}
	return tbl, nil
}

// GetStudiesByID returns the listing row of each study id, limit per
// request. Columns match GetStudies. Ids the server does not return are
// absent.
func (c *Client) GetStudiesByID(ctx context.Context, studyIDs []string, limit int) (*table.Table, error) {
	if len(studyIDs) == 0 {
		return table.New("id", "name"), nil
	}
	tbl, err := c.Paginate(ctx, studiesByIDQuery, map[string]any{"studyIds": studyIDs}, limit, "", "studies")
	if err != nil {
		return nil, fmt.Errorf("get studies by id: %w", err)
	}
	return tbl, nil
}

// GetStudyIDsFromNames returns the ids of the studies matching each name
// as a search term, in the order of names. An id matched by more than one
// name appears once.
func (c *Client) GetStudyIDsFromNames(ctx context.Context, names []string, partyID string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, name := range names {
		tbl, err := c.GetStudies(ctx, name, partyID, 0)
		if err != nil {
			return nil, fmt.Errorf("study ids for %q: %w", name, err)
		}
		for _, v := range tbl.Column("id") {
			id, ok := v.(string)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetAllStudyMetadata fetches the metadata of each study with up to
// threads concurrent requests. A nil studyIDs means every study visible
// to the user; an empty, non-nil slice returns nothing.
//
// Studies come back in the order of studyIDs. The Result reports the
// studies that could not be fetched; a study the server does not know
// fails with ErrNotFound.
func (c *Client) GetAllStudyMetadata(ctx context.Context, studyIDs []string, threads int) ([]*Study, *pagination.Result, error) {
	if studyIDs == nil {
		all, err := c.GetStudies(ctx, "", "", 0)
		if err != nil {
			return nil, nil, err
		}
		studyIDs = stringColumn(all, "id")
	}
	if len(studyIDs) == 0 {
		return []*Study{}, &pagination.Result{}, nil
	}

	var mu sync.Mutex
	fetched := make(map[string]*Study, len(studyIDs))

	page := func(ctx context.Context, id string) (*table.Table, error) {
		data, err := c.query(ctx, studyWithDataQuery, map[string]any{"studyId": id}, "")
		if err != nil {
			return nil, err
		}
		var study *Study
		if err := decodeAt(data, &study, "study"); err != nil {
			return nil, fmt.Errorf("study %s: %w", id, err)
		}
		if study == nil {
			return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
		}

		mu.Lock()
		fetched[id] = study
		mu.Unlock()

		tbl := table.New("id", "name")
		_ = tbl.Append(study.ID, study.Name)
		return tbl, nil
	}

	res, err := pagination.NewBatchFetcher(page, c.fetchConfig()).Fetch(ctx, studyIDs, threads)
	classify(err)

	studies := make([]*Study, 0, len(studyIDs))
	for _, p := range res.Pages {
		if !p.Failed() {
			studies = append(studies, fetched[p.ID])
		}
	}
	if err != nil {
		return studies, res, fmt.Errorf("get study metadata: %w", err)
	}
	return studies, res, nil
}

// GetAllStudyMetadataByNames resolves names with GetStudyIDsFromNames and
// fetches the metadata of the matching studies. No names means every
// study.
func (c *Client) GetAllStudyMetadataByNames(ctx context.Context, names []string, partyID string, threads int) ([]*Study, *pagination.Result, error) {
	var ids []string
	if len(names) > 0 {
		var err error
		if ids, err = c.GetStudyIDsFromNames(ctx, names, partyID); err != nil {
			return nil, nil, err
		}
		if ids == nil {
			ids = []string{}
		}
	}
	return c.GetAllStudyMetadata(ctx, ids, threads)
}

// GetDocumentsForStudies lists the documents attached to each study, one
// request per study with up to threads in flight. Columns are prefixed
// with "documents."; the study id is added as "id".
func (c *Client) GetDocumentsForStudies(ctx context.Context, studyIDs []string, threads int) (*table.Table, error) {
	tbl, _, err := c.FetchPages(ctx, PagedQuery{
		Query:        documentsQuery,
		IDVariable:   "studyId",
		ObjectPath:   []string{"study", "documents"},
		ColumnPrefix: "documents.",
		IDColumn:     "id",
	}, studyIDs, threads)
	if err != nil {
		return tbl, fmt.Errorf("get documents: %w", err)
	}
	return tbl, nil
}

// GetStudyMetadata returns a study with its channel groups, segments and
// channels.
func (c *Client) GetStudyMetadata(ctx context.Context, studyID string) (*Study, error) {
	data, err := c.Execute(ctx, studyWithDataQuery, map[string]any{"studyId": studyID}, "")
	if err != nil {
		return nil, fmt.Errorf("get study %s: %w", studyID, err)
	}

	var study *Study
	if err := decodeAt(data, &study, "study"); err != nil {
		return nil, fmt.Errorf("get study %s: %w", studyID, err)
	}
	if study == nil {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrNotFound)
	}
	return study, nil
}

// GetSegmentURLs returns the base data chunk URL of each segment, by
// segment id. Segments the server does not return are absent from the map.
func (c *Client) GetSegmentURLs(ctx context.Context, segmentIDs []string) (map[string]string, error) {
	urls := make(map[string]string, len(segmentIDs))
	batch := c.config.SegmentURLBatchSize

	for start := 0; start < len(segmentIDs); start += batch {
		end := min(start+batch, len(segmentIDs))

		data, err := c.Execute(ctx, segmentURLsQuery, map[string]any{"segmentIds": segmentIDs[start:end]}, "")
		if err != nil {
			return nil, fmt.Errorf("get segment urls: %w", err)
		}

		var segments []*struct {
			ID               string `json:"id"`
			BaseDataChunkURL string `json:"baseDataChunkUrl"`
		}
		if err := decodeAt(data, &segments, "studyChannelGroupSegments"); err != nil {
			return nil, fmt.Errorf("get segment urls: %w", err)
		}
		for _, s := range segments {
			if s != nil && s.BaseDataChunkURL != "" {
				urls[s.ID] = s.BaseDataChunkURL
			}
		}
	}
	return urls, nil
}

// stringColumn returns the string values of a column, skipping others.
func stringColumn(t *table.Table, name string) []string {
	values := t.Column(name)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
