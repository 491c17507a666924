package dto

// CreateSubmissionRequest is the student submission payload.
type CreateSubmissionRequest struct {
	Content string `json:"content" validate:"required"`
}

// CreateGradeRequest is the teacher review payload for one submission.
type CreateGradeRequest struct {
	Score    float64 `json:"score" validate:"gte=0,lte=100"`
	Feedback string  `json:"feedback"`
}

// RecentSubmissionsFilter scopes the latest-per-enrollment selection.
type RecentSubmissionsFilter struct {
	CourseSlug   string `validate:"required"`
	PieceSlug    string `validate:"required"`
	ActivityName string `validate:"required"`
}
