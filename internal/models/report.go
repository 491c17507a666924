package models

import "time"

// ReportKind identifies what a report job renders.
type ReportKind string

const (
	ReportKindRosterCSV      ReportKind = "ROSTER_CSV"
	ReportKindSubmissionsPDF ReportKind = "SUBMISSIONS_PDF"
)

// ReportStatus tracks a report job through the queue.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusCompleted  ReportStatus = "COMPLETED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob is an asynchronously rendered course export.
type ReportJob struct {
	ID           string       `db:"id" json:"id"`
	CourseID     string       `db:"course_id" json:"course_id"`
	CourseSlug   string       `db:"course_slug" json:"course_slug"`
	Kind         ReportKind   `db:"kind" json:"kind"`
	PieceSlug    string       `db:"piece_slug" json:"piece_slug,omitempty"`
	ActivityName string       `db:"activity_name" json:"activity_name,omitempty"`
	Status       ReportStatus `db:"status" json:"status"`
	File         string       `db:"file" json:"-"`
	Token        string       `db:"token" json:"token,omitempty"`
	ExpiresAt    *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	Failure      string       `db:"failure" json:"failure,omitempty"`
	RequestedBy  string       `db:"requested_by" json:"requested_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}
