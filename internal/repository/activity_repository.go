package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// ActivityRepository reads the static activity catalog.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ListAll returns the full activity catalog.
func (r *ActivityRepository) ListAll(ctx context.Context) ([]models.Activity, error) {
	const query = `SELECT id, activity_type_name, part_type, body FROM activities ORDER BY id`
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// ListAssignedByCourse returns the distinct activities that have at least one
// assignment within the given course.
func (r *ActivityRepository) ListAssignedByCourse(ctx context.Context, courseSlug string) ([]models.Activity, error) {
	const query = `SELECT a.id, a.activity_type_name, a.part_type, a.body
        FROM activities a
        WHERE a.id IN (
            SELECT DISTINCT asg.activity_id
            FROM assignments asg
            JOIN enrollments e ON e.id = asg.enrollment_id
            JOIN courses c ON c.id = e.course_id
            WHERE c.slug = $1
        )
        ORDER BY a.id`
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, courseSlug); err != nil {
		return nil, fmt.Errorf("list assigned activities: %w", err)
	}
	return activities, nil
}
