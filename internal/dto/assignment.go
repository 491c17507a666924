package dto

import "time"

// AssignmentSummary is the listing representation of one assignment.
type AssignmentSummary struct {
	ID               string     `json:"id"`
	ActivityTypeName string     `json:"activity_type_name"`
	PartType         string     `json:"part_type"`
	PieceSlug        string     `json:"piece_slug"`
	PieceName        string     `json:"piece_name"`
	Username         string     `json:"username"`
	Instrument       string     `json:"instrument"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AssignmentGroup holds one piece's ordered assignment summaries.
type AssignmentGroup struct {
	PieceSlug   string              `json:"piece_slug"`
	Assignments []AssignmentSummary `json:"assignments"`
}

// GroupedAssignments lists piece groups in order of first appearance, so the
// grouping order survives JSON encoding.
type GroupedAssignments []AssignmentGroup

// UpdateAssignmentRequest carries the teacher-editable assignment fields.
type UpdateAssignmentRequest struct {
	Instrument *string    `json:"instrument,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// BulkAssignRequest names the piece to provision assignments for.
type BulkAssignRequest struct {
	PieceID string `json:"piece_id" validate:"required"`
}
