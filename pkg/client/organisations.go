package client

import (
	"context"
	"fmt"

	"github.com/seermedical/seer-client-go/pkg/table"
)

// GetOrganisations lists the organisations visible to the user. Columns:
// id, partyId, ownerId, name, description, isPublic, isDeleted.
func (c *Client) GetOrganisations(ctx context.Context) (*table.Table, error) {
	data, err := c.Execute(ctx, organisationsQuery, nil, "")
	if err != nil {
		return nil, fmt.Errorf("get organisations: %w", err)
	}
	return tableAt(data, "organisations")
}

// GetPatients lists the patients of an organisation, or of the user when
// partyID is empty. Columns: id, user.id, user.fullName, user.shortName,
// user.email.
func (c *Client) GetPatients(ctx context.Context, partyID string) (*table.Table, error) {
	vars := map[string]any{}
	if partyID != "" {
		vars["partyId"] = partyID
	}

	data, err := c.Execute(ctx, patientsQuery, vars, partyID)
	if err != nil {
		return nil, fmt.Errorf("get patients: %w", err)
	}
	return tableAt(data, "patients")
}

// PatientUser is the user account behind a patient.
type PatientUser struct {
	PatientID string
	UserID    string
	FullName  string
	ShortName string
	Email     string
}

// GetUserFromPatient returns the user account of a patient.
func (c *Client) GetUserFromPatient(ctx context.Context, patientID string) (*PatientUser, error) {
	data, err := c.Execute(ctx, userFromPatientQuery, map[string]any{"patientId": patientID}, "")
	if err != nil {
		return nil, fmt.Errorf("get user of patient %s: %w", patientID, err)
	}

	var patient *struct {
		ID   string `json:"id"`
		User *struct {
			ID        string `json:"id"`
			FullName  string `json:"fullName"`
			ShortName string `json:"shortName"`
			Email     string `json:"email"`
		} `json:"user"`
	}
	if err := decodeAt(data, &patient, "patient"); err != nil {
		return nil, err
	}
	if patient == nil || patient.User == nil {
		return nil, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}

	return &PatientUser{
		PatientID: patient.ID,
		UserID:    patient.User.ID,
		FullName:  patient.User.FullName,
		ShortName: patient.User.ShortName,
		Email:     patient.User.Email,
	}, nil
}
