package models

import "time"

// Submission is a student's recorded attempt at an assignment. Append-only;
// students may submit any number of times.
type Submission struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	Content      string    `db:"content" json:"content"`
	Submitted    time.Time `db:"submitted" json:"submitted"`
}

// SubmissionDetail enriches a submission with its enrollment and piece
// context for teacher review.
type SubmissionDetail struct {
	Submission
	EnrollmentID     string `db:"enrollment_id" json:"enrollment_id"`
	Username         string `db:"username" json:"username"`
	Name             string `db:"name" json:"name"`
	PieceSlug        string `db:"piece_slug" json:"piece_slug"`
	ActivityTypeName string `db:"activity_type_name" json:"activity_type_name"`
}

// Grade is a teacher's review of one submission.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	GraderID     string    `db:"grader_id" json:"grader_id"`
	Score        float64   `db:"score" json:"score"`
	Feedback     string    `db:"feedback" json:"feedback"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
