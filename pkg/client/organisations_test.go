package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seermedical/seer-client-go/internal/testutil"
)

func TestGetOrganisations(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		return 0, testutil.GraphQLData(map[string]any{"organisations": []any{
			map[string]any{"id": "o1", "name": "Clinic A", "partyId": "p1"},
			map[string]any{"id": "o2", "name": "Clinic B", "partyId": "p2"},
		}})
	})

	c := newTestClient(t, mock)

	tbl, err := c.GetOrganisations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"o1", "o2"}, tbl.Column("id"))
	assert.Equal(t, []any{"p1", "p2"}, tbl.Column("partyId"))
}

func TestGetPatients_ForParty(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		assert.Equal(t, "p1", req.Variables["partyId"])
		assert.Equal(t, "p1", r.URL.Query().Get("partyId"))
		return 0, testutil.GraphQLData(map[string]any{"patients": []any{
			map[string]any{"id": "pt1", "user": map[string]any{"id": "u1", "fullName": "Jane Doe"}},
		}})
	})

	c := newTestClient(t, mock)

	tbl, err := c.GetPatients(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "user.fullName", "user.id"}, tbl.Columns)
	assert.Equal(t, []any{"Jane Doe"}, tbl.Column("user.fullName"))
}

func TestGetUserFromPatient(t *testing.T) {
	mock := testutil.NewMockSeer(testPassword)
	defer mock.Close()
	mock.SetGraphQLHandler(func(req testutil.GraphQLRequest, r *http.Request) (int, any) {
		if req.Variables["patientId"] != "pt1" {
			return 0, testutil.GraphQLData(map[string]any{"patient": nil})
		}
		return 0, testutil.GraphQLData(map[string]any{"patient": map[string]any{
			"id": "pt1",
			"user": map[string]any{
				"id":        "u1",
				"fullName":  "Jane Doe",
				"shortName": "Jane",
				"email":     "jane@example.com",
			},
		}})
	})

	c := newTestClient(t, mock)

	u, err := c.GetUserFromPatient(context.Background(), "pt1")
	require.NoError(t, err)
	assert.Equal(t, &PatientUser{
		PatientID: "pt1",
		UserID:    "u1",
		FullName:  "Jane Doe",
		ShortName: "Jane",
		Email:     "jane@example.com",
	}, u)

	_, err = c.GetUserFromPatient(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
