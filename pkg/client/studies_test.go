package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seermedical/seer-client-go/internal/testutil"
)

// studyPage answers a paged studies query from a fixed id list.
func studyPage(req testutil.GraphQLRequest, ids []string) map[string]any {
	limit := int(req.Variables["limit"].(float64))
	offset := int(req.Variables["offset"].(float64))
	studies := []any{}
	for i := offset; i < offset+limit && i < len(ids); i++ {
		studies = append(studies, map[string]any{"id": ids[i], "name": "Study " + ids[i]})
	}
	return testutil.GraphQLData(map[string]any{"studies": studies})
}

func studyWithData(id string) map[string]any {
	return testutil.GraphQLData(map[string]any{"study": map[string]any{
		"id":   id,
		"name": "Study " + id,
		"channelGroups": []any{map[string]any{
			"id":       id + "-cg",
			"name":     "EEG",
			"segments": []any{map[string]any{"id": id + "-seg", "startTime": 1000, "duration": 60000}},
		}},
	}})
}

func TestGetAllStudyMetadata_OrderAndFailures(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()

	ids := []string{"s0", "s1", "s2", "s3", "s4"}
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		id := req.Variables["studyId"].(string)
		var n int
		_, _ = fmt.Sscanf(id, "s%d", &n)
		// Earlier studies answer last.
		time.Sleep(time.Duration(len(ids)-n) * 5 * time.Millisecond)
		if id == "s3" {
			return 0, testutil.GraphQLData(map[string]any{"study": nil})
		}
		return 0, studyWithData(id)
	})

	c := newTestClient(t, mock)

	for _, threads := range []int{1, 4} {
		studies, res, err := c.GetAllStudyMetadata(context.Background(), ids, threads)
		require.NoError(t, err)

		got := make([]string, len(studies))
		for i, s := range studies {
			got[i] = s.ID
		}
		assert.Equal(t, []string{"s0", "s1", "s2", "s4"}, got, "threads=%d", threads)
		assert.Equal(t, "s4-cg", studies[3].ChannelGroups[0].ID)

		failed := res.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, "s3", failed[0].ID)
		assert.ErrorIs(t, failed[0].Err, ErrNotFound)
	}
}

func TestGetAllStudyMetadata_FailOnError(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		if req.Variables["studyId"] == "missing" {
			return 0, testutil.GraphQLData(map[string]any{"study": nil})
		}
		return 0, studyWithData(req.Variables["studyId"].(string))
	})

	c := newTestClient(t, mock, func(cfg *Config) { cfg.FailOnError = true })

	studies, _, err := c.GetAllStudyMetadata(context.Background(), []string{"s1", "missing"}, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, studies, 1)
	assert.Equal(t, "s1", studies[0].ID)
}

func TestGetAllStudyMetadata_NilMeansEveryStudy(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		if strings.Contains(req.Query, "studies(") {
			return 0, studyPage(req, []string{"a", "b"})
		}
		return 0, studyWithData(req.Variables["studyId"].(string))
	})

	c := newTestClient(t, mock)

	studies, _, err := c.GetAllStudyMetadata(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Len(t, studies, 2)
	assert.Equal(t, "a", studies[0].ID)
	assert.Equal(t, "b", studies[1].ID)

	before := mock.GraphQLCount()
	studies, res, err := c.GetAllStudyMetadata(context.Background(), []string{}, 2)
	require.NoError(t, err)
	assert.Empty(t, studies)
	assert.Empty(t, res.Pages)
	assert.Equal(t, before, mock.GraphQLCount())
}

func TestGetAllStudyMetadataByNames(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()

	var mu sync.Mutex
	var fetched []string
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		if strings.Contains(req.Query, "studies(") {
			switch req.Variables["searchTerm"] {
			case "Jane":
				return 0, studyPage(req, []string{"s1", "s2"})
			case "John":
				return 0, studyPage(req, []string{"s2", "s3"})
			}
			return 0, studyPage(req, nil)
		}
		id := req.Variables["studyId"].(string)
		mu.Lock()
		fetched = append(fetched, id)
		mu.Unlock()
		return 0, studyWithData(id)
	})

	c := newTestClient(t, mock)

	ids, err := c.GetStudyIDsFromNames(context.Background(), []string{"Jane", "John", "Nobody"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)

	studies, _, err := c.GetAllStudyMetadataByNames(context.Background(), []string{"Jane", "John"}, "", 3)
	require.NoError(t, err)
	require.Len(t, studies, 3)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, fetched)

	fetched = nil
	studies, _, err = c.GetAllStudyMetadataByNames(context.Background(), []string{"Nobody"}, "", 3)
	require.NoError(t, err)
	assert.Empty(t, studies)
	assert.Empty(t, fetched)
}

func TestGetStudiesByID(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		assert.Equal(t, []any{"s1", "s2", "s3"}, req.Variables["studyIds"])
		return 0, studyPage(req, []string{"s1", "s2", "s3"})
	})

	c := newTestClient(t, mock)

	tbl, err := c.GetStudiesByID(context.Background(), []string{"s1", "s2", "s3"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"s1", "s2", "s3"}, tbl.Column("id"))
	assert.Equal(t, 3, mock.GraphQLCount())

	tbl, err = c.GetStudiesByID(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, 3, mock.GraphQLCount())
}

func TestGetDocumentsForStudies(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		id := req.Variables["studyId"].(string)
		docs := []any{}
		if id == "s1" {
			docs = append(docs, map[string]any{
				"id":              "d1",
				"name":            "report.pdf",
				"fileSize":        2048,
				"downloadFileUrl": "https://files.example.com/d1",
			})
		}
		return 0, testutil.GraphQLData(map[string]any{"study": map[string]any{"id": id, "documents": docs}})
	})

	c := newTestClient(t, mock)

	tbl, err := c.GetDocumentsForStudies(context.Background(), []string{"s1", "s2"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"documents.downloadFileUrl", "documents.fileSize", "documents.id", "documents.name", "id"}, tbl.Columns)
	assert.Equal(t, []any{"s1"}, tbl.Column("id"))
	assert.Equal(t, []any{"report.pdf"}, tbl.Column("documents.name"))
}
