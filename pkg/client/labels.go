package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seermedical/seer-client-go/pkg/table"
)

// DefaultLabelLimit is the number of labels requested per page.
const DefaultLabelLimit = 200

// maxTime is the open upper bound for time filters, in epoch milliseconds.
const maxTime = 9e12

// Label is a new label for a label group. Times are epoch milliseconds;
// Timezone is the UTC offset in hours.
type Label struct {
	Note       string   `json:"note,omitempty"`
	StartTime  float64  `json:"startTime"`
	Duration   float64  `json:"duration"`
	Timezone   float64  `json:"timezone"`
	TagIDs     []string `json:"tagIds,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// GetLabels returns the labels of one label group that fall between from
// and to (epoch ms; to <= 0 means no upper bound), requesting limit labels
// at a time. Label columns are prefixed with "labels."; the study id and
// label group id are added as "id" and "labelGroup.id".
func (c *Client) GetLabels(ctx context.Context, studyID, groupID string, from, to float64, limit int) (*table.Table, error) {
	if limit <= 0 {
		limit = DefaultLabelLimit
	}
	if to <= 0 {
		to = maxTime
	}
	vars := map[string]any{
		"studyId":      studyID,
		"labelGroupId": groupID,
		"fromTime":     from,
		"toTime":       to,
	}

	tbl, err := c.Paginate(ctx, labelsQuery, vars, limit, "", "study", "labelGroup", "labels")
	if err != nil {
		return nil, fmt.Errorf("get labels for group %s: %w", groupID, err)
	}
	if tbl.Len() == 0 {
		return table.New("id", "labelGroup.id", "labels.id"), nil
	}
	return prefixColumns(tbl, "labels.").WithColumn("labelGroup.id", groupID).WithColumn("id", studyID), nil
}

// DefaultViewLimit is the number of views requested per page.
const DefaultViewLimit = 250

// GetLabelsString returns the labels of one label group between from and
// to (epoch ms; to <= 0 means no upper bound) from the compact label
// string the server renders, in one request. Only the id, start time and
// duration of each label are available. Columns: id, labelGroup.id,
// labels.id, labels.startTime, labels.duration.
func (c *Client) GetLabelsString(ctx context.Context, studyID, groupID string, from, to float64) (*table.Table, error) {
	if to <= 0 {
		to = maxTime
	}
	vars := map[string]any{
		"studyId":      studyID,
		"labelGroupId": groupID,
		"fromTime":     from,
		"toTime":       to,
	}

	data, err := c.Execute(ctx, labelStringQuery, vars, "")
	if err != nil {
		return nil, fmt.Errorf("get label string for group %s: %w", groupID, err)
	}

	var study *struct {
		LabelGroup *struct {
			LabelString *string `json:"labelString"`
		} `json:"labelGroup"`
	}
	if err := decodeAt(data, &study, "study"); err != nil {
		return nil, err
	}
	if study == nil || study.LabelGroup == nil {
		return nil, fmt.Errorf("label group %s of study %s: %w", groupID, studyID, ErrNotFound)
	}

	tbl := table.New("id", "labelGroup.id", "labels.id", "labels.startTime", "labels.duration")
	if study.LabelGroup.LabelString == nil || *study.LabelGroup.LabelString == "" {
		return tbl, nil
	}

	var labels []struct {
		ID        string  `json:"id"`
		StartTime float64 `json:"s"`
		Duration  float64 `json:"d"`
	}
	if err := json.Unmarshal([]byte(*study.LabelGroup.LabelString), &labels); err != nil {
		return nil, fmt.Errorf("decode label string for group %s: %w", groupID, err)
	}
	for _, l := range labels {
		_ = tbl.Append(studyID, groupID, l.ID, l.StartTime, l.Duration)
	}
	return tbl, nil
}

// GetViewedTimes lists the parts of a study users have viewed, requesting
// limit views per user at a time. Columns: id, startTime, duration,
// createdAt, updatedAt, user (the viewer's full name).
func (c *Client) GetViewedTimes(ctx context.Context, studyID string, limit int) (*table.Table, error) {
	if limit <= 0 {
		limit = DefaultViewLimit
	}

	page := func(ctx context.Context, limit, offset int) (*table.Table, error) {
		vars := map[string]any{"studyId": studyID, "limit": limit, "offset": offset}
		data, err := c.query(ctx, viewedTimesQuery, vars, "")
		if err != nil {
			return nil, err
		}

		var groups []struct {
			User struct {
				FullName string `json:"fullName"`
			} `json:"user"`
			Views json.RawMessage `json:"views"`
		}
		if err := decodeAt(data, &groups, "viewGroups"); err != nil {
			return nil, err
		}

		parts := make([]*table.Table, 0, len(groups))
		for _, g := range groups {
			if len(g.Views) == 0 {
				continue
			}
			views, err := table.FromJSON(g.Views)
			if err != nil {
				return nil, err
			}
			if views.Len() > 0 {
				parts = append(parts, views.WithColumn("user", g.User.FullName))
			}
		}
		return table.Concat(parts...), nil
	}

	tbl, err := c.offsets.Paginate(ctx, page, limit)
	classify(err)
	if err != nil {
		return nil, fmt.Errorf("get viewed times for study %s: %w", studyID, err)
	}
	return tbl, nil
}

// GetLabelGroups lists the label groups of each study, one request per
// study with up to threads in flight. Columns are prefixed with
// "labelGroups."; the study id is added as "id".
func (c *Client) GetLabelGroups(ctx context.Context, studyIDs []string, threads int) (*table.Table, error) {
	tbl, _, err := c.FetchPages(ctx, PagedQuery{
		Query:        labelGroupsQuery,
		IDVariable:   "studyId",
		ObjectPath:   []string{"study", "labelGroups"},
		ColumnPrefix: "labelGroups.",
		IDColumn:     "id",
	}, studyIDs, threads)
	if err != nil {
		return tbl, fmt.Errorf("get label groups: %w", err)
	}
	return tbl, nil
}

// GetTags lists the label tags available to the user.
func (c *Client) GetTags(ctx context.Context) (*table.Table, error) {
	data, err := c.Execute(ctx, tagsQuery, nil, "")
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	return tableAt(data, "labelTags")
}

// AddLabelGroup creates a label group on a study and returns its id.
// labelType and partyID are optional.
func (c *Client) AddLabelGroup(ctx context.Context, studyID, name, description, labelType, partyID string) (string, error) {
	vars := map[string]any{
		"studyId":     studyID,
		"name":        name,
		"description": description,
	}
	if labelType != "" {
		vars["labelType"] = labelType
	}

	data, err := c.Execute(ctx, addLabelGroupMutation, vars, partyID)
	if err != nil {
		return "", fmt.Errorf("add label group to study %s: %w", studyID, err)
	}

	var group *struct {
		ID string `json:"id"`
	}
	if err := decodeAt(data, &group, "addLabelGroupToStudy"); err != nil {
		return "", err
	}
	if group == nil || group.ID == "" {
		return "", fmt.Errorf("add label group to study %s: no id returned", studyID)
	}

	c.logger.Info().
		Str("study_id", studyID).
		Str("label_group_id", group.ID).
		Msg("Label group created")
	return group.ID, nil
}

// DeleteLabelGroup removes a label group from its study.
func (c *Client) DeleteLabelGroup(ctx context.Context, groupID string) error {
	if _, err := c.Execute(ctx, removeLabelGroupMutation, map[string]any{"groupId": groupID}, ""); err != nil {
		return fmt.Errorf("delete label group %s: %w", groupID, err)
	}
	c.logger.Info().Str("label_group_id", groupID).Msg("Label group deleted")
	return nil
}

// AddLabels adds labels to a label group in one mutation and returns the
// ids of the created labels.
func (c *Client) AddLabels(ctx context.Context, groupID string, labels []Label) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	data, err := c.Execute(ctx, addLabelsMutation, map[string]any{"groupId": groupID, "labels": labels}, "")
	if err != nil {
		return nil, fmt.Errorf("add labels to group %s: %w", groupID, err)
	}

	var added []struct {
		ID string `json:"id"`
	}
	if err := decodeAt(data, &added, "addLabelsToLabelGroup"); err != nil {
		return nil, err
	}
	ids := make([]string, len(added))
	for i, a := range added {
		ids[i] = a.ID
	}
	return ids, nil
}

// AddLabelsBatched adds labels in mutations of at most batchSize labels
// (the configured default when batchSize <= 0). Batches are sent in order;
// on failure the ids of the batches already added are returned with the
// error.
func (c *Client) AddLabelsBatched(ctx context.Context, groupID string, labels []Label, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = c.config.LabelBatchSize
	}

	var ids []string
	for start := 0; start < len(labels); start += batchSize {
		end := min(start+batchSize, len(labels))
		added, err := c.AddLabels(ctx, groupID, labels[start:end])
		if err != nil {
			return ids, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		ids = append(ids, added...)
	}
	return ids, nil
}
