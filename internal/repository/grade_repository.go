package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// GradeRepository handles persistence of grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Create persists a new grade record.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, submission_id, grader_id, score, feedback, created_at)
        VALUES (:id, :submission_id, :grader_id, :score, :feedback, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// ListByCourse returns all grades given within a course.
func (r *GradeRepository) ListByCourse(ctx context.Context, courseSlug string) ([]models.Grade, error) {
	const query = `SELECT g.id, g.submission_id, g.grader_id, g.score, g.feedback, g.created_at
        FROM grades g
        JOIN submissions s ON s.id = g.submission_id
        JOIN assignments asg ON asg.id = s.assignment_id
        JOIN enrollments e ON e.id = asg.enrollment_id
        JOIN courses c ON c.id = e.course_id
        WHERE c.slug = $1
        ORDER BY g.created_at, g.id`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, courseSlug); err != nil {
		return nil, fmt.Errorf("list course grades: %w", err)
	}
	return grades, nil
}
