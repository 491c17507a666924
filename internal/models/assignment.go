package models

import "time"

// Assignment binds an activity to a student enrollment for a specific part.
type Assignment struct {
	ID           string     `db:"id" json:"id"`
	ActivityID   string     `db:"activity_id" json:"activity_id"`
	EnrollmentID string     `db:"enrollment_id" json:"enrollment_id"`
	PartID       string     `db:"part_id" json:"part_id"`
	Instrument   string     `db:"instrument" json:"instrument"`
	Deadline     *time.Time `db:"deadline" json:"deadline,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// AssignmentDetail joins the assignment with activity, piece and student info
// as consumed by listings.
type AssignmentDetail struct {
	Assignment
	ActivityTypeName string `db:"activity_type_name" json:"activity_type_name"`
	PartType         string `db:"part_type" json:"part_type"`
	PieceID          string `db:"piece_id" json:"piece_id"`
	PieceSlug        string `db:"piece_slug" json:"piece_slug"`
	PieceName        string `db:"piece_name" json:"piece_name"`
	CourseID         string `db:"course_id" json:"course_id"`
	UserID           string `db:"user_id" json:"user_id"`
	Username         string `db:"username" json:"username"`
}
