package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// AssignmentRepository handles persistence of assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentDetailSelect = `SELECT asg.id, asg.activity_id, asg.enrollment_id, asg.part_id, asg.instrument, asg.deadline, asg.created_at,
        a.activity_type_name, a.part_type, pc.id AS piece_id, pc.slug AS piece_slug, pc.name AS piece_name,
        e.course_id, u.id AS user_id, u.username
        FROM assignments asg
        JOIN activities a ON a.id = asg.activity_id
        JOIN parts p ON p.id = asg.part_id
        JOIN pieces pc ON pc.id = p.piece_id
        JOIN enrollments e ON e.id = asg.enrollment_id
        JOIN users u ON u.id = e.user_id`

// BulkCreate inserts all assignments in a single transaction. Either every
// row is persisted or none are.
func (r *AssignmentRepository) BulkCreate(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error) {
	if len(assignments) == 0 {
		return assignments, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	const query = `INSERT INTO assignments (id, activity_id, enrollment_id, part_id, instrument, deadline, created_at)
        VALUES (:id, :activity_id, :enrollment_id, :part_id, :instrument, :deadline, :created_at)`
	now := time.Now().UTC()
	for i := range assignments {
		if assignments[i].ID == "" {
			assignments[i].ID = uuid.NewString()
		}
		if assignments[i].CreatedAt.IsZero() {
			assignments[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, assignments[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("create assignment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignments: %w", err)
	}
	return assignments, nil
}

// ListByCourse returns all assignments of a course with listing context.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.AssignmentDetail, error) {
	query := assignmentDetailSelect + `
        WHERE e.course_id = $1
        ORDER BY asg.created_at, asg.id`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, courseID); err != nil {
		return nil, fmt.Errorf("list course assignments: %w", err)
	}
	return details, nil
}

// ListByCourseAndUser returns one student's assignments within a course.
func (r *AssignmentRepository) ListByCourseAndUser(ctx context.Context, courseID, userID string) ([]models.AssignmentDetail, error) {
	query := assignmentDetailSelect + `
        WHERE e.course_id = $1 AND e.user_id = $2
        ORDER BY asg.created_at, asg.id`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, courseID, userID); err != nil {
		return nil, fmt.Errorf("list user assignments: %w", err)
	}
	return details, nil
}

// FindDetailByID returns one assignment with listing context.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	query := assignmentDetailSelect + `
        WHERE asg.id = $1`
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Update persists the teacher-editable assignment fields.
func (r *AssignmentRepository) Update(ctx context.Context, id string, instrument *string, deadline *time.Time) error {
	const query = `UPDATE assignments SET
        instrument = COALESCE($2, instrument),
        deadline = COALESCE($3, deadline)
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, instrument, deadline); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}
