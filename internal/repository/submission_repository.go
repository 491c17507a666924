package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// SubmissionRepository handles persistence of submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create persists a new submission record.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Submitted.IsZero() {
		submission.Submitted = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, assignment_id, content, submitted)
        VALUES (:id, :assignment_id, :content, :submitted)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// ListByAssignment returns all submissions of one assignment, oldest first.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	const query = `SELECT id, assignment_id, content, submitted FROM submissions
        WHERE assignment_id = $1 ORDER BY submitted, id`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// ListLatestByEnrollment returns, for each enrollment of the course with at
// least one submission matching the activity type and piece, only the most
// recent submission. Equal timestamps are broken by descending submission id.
// Rows are ordered by enrollment, then descending submission time.
func (r *SubmissionRepository) ListLatestByEnrollment(ctx context.Context, courseSlug, pieceSlug, activityName string) ([]models.SubmissionDetail, error) {
	const query = `SELECT DISTINCT ON (e.id)
        s.id, s.assignment_id, s.content, s.submitted,
        e.id AS enrollment_id, u.username, u.name,
        pc.slug AS piece_slug, a.activity_type_name
        FROM submissions s
        JOIN assignments asg ON asg.id = s.assignment_id
        JOIN enrollments e ON e.id = asg.enrollment_id
        JOIN courses c ON c.id = e.course_id
        JOIN activities a ON a.id = asg.activity_id
        JOIN parts p ON p.id = asg.part_id
        JOIN pieces pc ON pc.id = p.piece_id
        JOIN users u ON u.id = e.user_id
        WHERE c.slug = $1 AND pc.slug = $2 AND a.activity_type_name = $3
        ORDER BY e.id, s.submitted DESC, s.id DESC`
	var details []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &details, query, courseSlug, pieceSlug, activityName); err != nil {
		return nil, fmt.Errorf("list latest submissions: %w", err)
	}
	return details, nil
}

// FindByID returns a submission by its ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, content, submitted FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}
