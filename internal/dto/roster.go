package dto

import "github.com/noah-isme/ensemble-api/internal/models"

// RosterRow is one CSV record of the bulk roster upload, in column order:
// name, username, password, grade.
type RosterRow struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Grade    string `json:"grade"`
}

// InvalidRosterRow is a rejected row together with the rejection reason.
type InvalidRosterRow struct {
	RosterRow
	Reason string `json:"reason"`
}

// RosterUsers partitions the uploaded rows by user outcome.
type RosterUsers struct {
	Created  []models.User      `json:"created"`
	Existing []models.User      `json:"existing"`
	Invalid  []InvalidRosterRow `json:"invalid"`
}

// RosterEnrollments partitions the resulting enrollments by outcome.
type RosterEnrollments struct {
	Created  []models.Enrollment `json:"created"`
	Existing []models.Enrollment `json:"existing"`
}

// RosterResult is the full response of the roster reconciliation.
type RosterResult struct {
	Users       RosterUsers       `json:"users"`
	Enrollments RosterEnrollments `json:"enrollments"`
}
