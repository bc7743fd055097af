package client

import (
	"context"
	"fmt"
	"math"

	"github.com/seermedical/seer-client-go/pkg/channeldata"
	"github.com/seermedical/seer-client-go/pkg/pagination"
	"github.com/seermedical/seer-client-go/pkg/table"
)

// ChannelDataRequest selects the samples to download.
type ChannelDataRequest struct {
	// ChannelGroup is a channel group id or name. Empty selects every group.
	ChannelGroup string

	// From and To bound sample times in epoch ms, as [From, To). To <= 0
	// means no upper bound.
	From float64
	To   float64

	// Threads is the number of concurrent chunk downloads (<= 0: default).
	Threads int
}

// GetChannelData downloads and decodes every data chunk of study that
// overlaps the requested window, one page per chunk. The table has the
// columns time, id, channelGroups.id, segments.id and one column per
// channel, with rows in channel group, segment and chunk order.
//
// The Result reports chunks that could not be fetched or decoded.
func (c *Client) GetChannelData(ctx context.Context, study *Study, req ChannelDataRequest) (*table.Table, *pagination.Result, error) {
	groups := study.ChannelGroups
	if req.ChannelGroup != "" {
		g, ok := study.ChannelGroup(req.ChannelGroup)
		if !ok {
			return nil, nil, fmt.Errorf("channel group %q in study %s: %w", req.ChannelGroup, study.ID, ErrNotFound)
		}
		groups = []channeldata.ChannelGroup{g}
	}

	to := req.To
	if to <= 0 {
		to = math.Inf(1)
	}

	var segmentIDs []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, s := range g.Segments {
			if s.StartTime < to && s.End() > req.From && !seen[s.ID] {
				seen[s.ID] = true
				segmentIDs = append(segmentIDs, s.ID)
			}
		}
	}

	empty := table.New(channeldata.ColumnTime, channeldata.ColumnStudyID, channeldata.ColumnChannelGroupID, channeldata.ColumnSegmentID)
	if len(segmentIDs) == 0 {
		return empty, &pagination.Result{}, nil
	}

	urls, err := c.GetSegmentURLs(ctx, segmentIDs)
	if err != nil {
		return nil, nil, err
	}

	chunks := make(map[string]channeldata.ChunkMeta)
	var pageIDs []string
	for _, g := range groups {
		names := channeldata.ChannelNames(g.Channels)
		for _, s := range g.Segments {
			if !seen[s.ID] {
				continue
			}
			base, ok := urls[s.ID]
			if !ok {
				c.logger.Warn().
					Str("segment_id", s.ID).
					Msg("No data URL for segment")
				continue
			}
			for _, chunk := range channeldata.ChunkURLs(g, s, base, req.From, req.To) {
				id := fmt.Sprintf("%s/%s/%d", g.ID, s.ID, chunk.Index)
				chunks[id] = channeldata.ChunkMeta{
					StudyID:  study.ID,
					Group:    g,
					Segment:  s,
					Chunk:    chunk,
					Channels: names,
				}
				pageIDs = append(pageIDs, id)
			}
		}
	}

	from := req.From
	page := func(ctx context.Context, id string) (*table.Table, error) {
		meta := chunks[id]
		raw, err := c.download(ctx, meta.Chunk.URL)
		if err != nil {
			return nil, err
		}
		tbl, err := channeldata.Decode(raw, meta)
		if err != nil {
			return nil, fmt.Errorf("decode chunk %s: %w", id, err)
		}
		return tbl.Filter(func(row []any) bool {
			t := row[0].(float64)
			return t >= from && t < to
		}), nil
	}

	c.logger.Debug().
		Str("study_id", study.ID).
		Int("segments", len(segmentIDs)).
		Int("chunks", len(pageIDs)).
		Msg("Downloading channel data")

	res, err := pagination.NewBatchFetcher(page, c.fetchConfig()).Fetch(ctx, pageIDs, req.Threads)
	classify(err)

	tbl := res.Table()
	if len(tbl.Columns) == 0 {
		tbl = empty
	}
	return tbl, res, err
}
