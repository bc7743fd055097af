package client

import (
	"context"
	"fmt"
)

// DefaultCohortLimit is the number of cohort members requested per page.
const DefaultCohortLimit = 200

// NewCohort describes a cohort to create. Description, Key and MemberIDs
// are optional; the server uses the cohort id as key when none is given.
type NewCohort struct {
	Name        string
	Description string
	Key         string
	MemberIDs   []string
}

// cohortKind holds the documents and response members of one cohort type.
type cohortKind struct {
	member  string
	query   string
	members []string
	create  string
	add     string
	remove  string
	// mutation response members, keyed by document
	fields map[string][]string
}

var studyCohorts = cohortKind{
	member:  "study",
	query:   studyCohortQuery,
	members: []string{"studyCohort", "studies"},
	create:  createStudyCohortMutation,
	add:     addStudiesToCohortMutation,
	remove:  removeStudiesFromCohortMutation,
	fields: map[string][]string{
		createStudyCohortMutation:       {"createStudyCohort", "studyCohort", "id"},
		addStudiesToCohortMutation:      {"addStudiesToStudyCohort", "studyCohort", "id"},
		removeStudiesFromCohortMutation: {"removeStudiesFromStudyCohort", "studyCohort", "id"},
	},
}

var userCohorts = cohortKind{
	member:  "user",
	query:   userCohortQuery,
	members: []string{"userCohort", "users"},
	create:  createUserCohortMutation,
	add:     addUsersToCohortMutation,
	remove:  removeUsersFromCohortMutation,
	fields: map[string][]string{
		createUserCohortMutation:      {"createUserCohort", "userCohort", "id"},
		addUsersToCohortMutation:      {"addUsersToUserCohort", "userCohort", "id"},
		removeUsersFromCohortMutation: {"removeUsersFromUserCohort", "userCohort", "id"},
	},
}

// GetStudyIDsInCohort returns the ids of the studies in a study cohort,
// requesting limit at a time.
func (c *Client) GetStudyIDsInCohort(ctx context.Context, cohortID string, limit int) ([]string, error) {
	return c.cohortMembers(ctx, studyCohorts, cohortID, limit)
}

// CreateStudyCohort creates a study cohort and returns its id.
func (c *Client) CreateStudyCohort(ctx context.Context, cohort NewCohort) (string, error) {
	return c.createCohort(ctx, studyCohorts, cohort)
}

// AddStudiesToCohort adds studies to a study cohort.
func (c *Client) AddStudiesToCohort(ctx context.Context, cohortID string, studyIDs []string) error {
	return c.changeCohort(ctx, studyCohorts, studyCohorts.add, cohortID, studyIDs)
}

// RemoveStudiesFromCohort removes studies from a study cohort.
func (c *Client) RemoveStudiesFromCohort(ctx context.Context, cohortID string, studyIDs []string) error {
	return c.changeCohort(ctx, studyCohorts, studyCohorts.remove, cohortID, studyIDs)
}

// GetUserIDsInCohort returns the ids of the users in a user cohort,
// requesting limit at a time.
func (c *Client) GetUserIDsInCohort(ctx context.Context, cohortID string, limit int) ([]string, error) {
	return c.cohortMembers(ctx, userCohorts, cohortID, limit)
}

// CreateUserCohort creates a user cohort and returns its id.
func (c *Client) CreateUserCohort(ctx context.Context, cohort NewCohort) (string, error) {
	return c.createCohort(ctx, userCohorts, cohort)
}

// AddUsersToCohort adds users to a user cohort.
func (c *Client) AddUsersToCohort(ctx context.Context, cohortID string, userIDs []string) error {
	return c.changeCohort(ctx, userCohorts, userCohorts.add, cohortID, userIDs)
}

// RemoveUsersFromCohort removes users from a user cohort.
func (c *Client) RemoveUsersFromCohort(ctx context.Context, cohortID string, userIDs []string) error {
	return c.changeCohort(ctx, userCohorts, userCohorts.remove, cohortID, userIDs)
}

func (c *Client) cohortMembers(ctx context.Context, kind cohortKind, cohortID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultCohortLimit
	}
	tbl, err := c.Paginate(ctx, kind.query, map[string]any{"cohortId": cohortID}, limit, "", kind.members...)
	if err != nil {
		return nil, fmt.Errorf("get %s cohort %s: %w", kind.member, cohortID, err)
	}
	return stringColumn(tbl, "id"), nil
}

func (c *Client) createCohort(ctx context.Context, kind cohortKind, cohort NewCohort) (string, error) {
	if cohort.Name == "" {
		return "", fmt.Errorf("create %s cohort: name is required", kind.member)
	}

	vars := map[string]any{"name": cohort.Name}
	if cohort.Description != "" {
		vars["description"] = cohort.Description
	}
	if cohort.Key != "" {
		vars["key"] = cohort.Key
	}
	if len(cohort.MemberIDs) > 0 {
		vars["memberIds"] = cohort.MemberIDs
	}

	id, err := c.cohortMutation(ctx, kind, kind.create, vars)
	if err != nil {
		return "", fmt.Errorf("create %s cohort %q: %w", kind.member, cohort.Name, err)
	}

	c.logger.Info().
		Str("cohort_id", id).
		Str("cohort_type", kind.member).
		Int("members", len(cohort.MemberIDs)).
		Msg("Cohort created")
	return id, nil
}

func (c *Client) changeCohort(ctx context.Context, kind cohortKind, mutation, cohortID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}

	vars := map[string]any{"cohortId": cohortID, "memberIds": memberIDs}
	if _, err := c.cohortMutation(ctx, kind, mutation, vars); err != nil {
		return fmt.Errorf("update %s cohort %s: %w", kind.member, cohortID, err)
	}

	c.logger.Info().
		Str("cohort_id", cohortID).
		Str("cohort_type", kind.member).
		Int("members", len(memberIDs)).
		Msg("Cohort updated")
	return nil
}

// cohortMutation runs a cohort mutation and returns the cohort id it
// reports.
func (c *Client) cohortMutation(ctx context.Context, kind cohortKind, mutation string, vars map[string]any) (string, error) {
	data, err := c.Execute(ctx, mutation, vars, "")
	if err != nil {
		return "", err
	}

	var id string
	if err := decodeAt(data, &id, kind.fields[mutation]...); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no cohort id returned")
	}
	return id, nil
}
