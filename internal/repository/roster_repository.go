package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// RosterRepository applies the write half of a roster reconciliation.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// Apply persists the reconciliation plan in one transaction: every user in
// newUsers is inserted, then each user id in userIDs (processed in order) is
// enrolled in the course as a student unless an enrollment already exists.
// Returns the created and pre-existing enrollments. On any failure nothing
// is committed.
func (r *RosterRepository) Apply(ctx context.Context, courseID string, newUsers []models.User, userIDs []string) ([]models.Enrollment, []models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	const insertUser = `INSERT INTO users (id, username, name, password_hash, grade, role, active, created_at, updated_at)
        VALUES (:id, :username, :name, :password_hash, :grade, :role, :active, :created_at, :updated_at)`
	for i := range newUsers {
		if _, err := tx.NamedExecContext(ctx, insertUser, newUsers[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, nil, fmt.Errorf("create roster user %s: %w", newUsers[i].Username, err)
		}
	}

	const findEnrollment = `SELECT id, user_id, course_id, role, instrument, created_at FROM enrollments
        WHERE user_id = $1 AND course_id = $2`
	const insertEnrollment = `INSERT INTO enrollments (id, user_id, course_id, role, instrument, created_at)
        VALUES (:id, :user_id, :course_id, :role, :instrument, :created_at)`

	var created, existing []models.Enrollment
	now := time.Now().UTC()
	for _, userID := range userIDs {
		var enrollment models.Enrollment
		err := tx.GetContext(ctx, &enrollment, findEnrollment, userID, courseID)
		switch {
		case err == nil:
			existing = append(existing, enrollment)
		case errors.Is(err, sql.ErrNoRows):
			enrollment = models.Enrollment{
				ID:        uuid.NewString(),
				UserID:    userID,
				CourseID:  courseID,
				Role:      models.EnrollmentRoleStudent,
				CreatedAt: now,
			}
			if _, err := tx.NamedExecContext(ctx, insertEnrollment, enrollment); err != nil {
				tx.Rollback() //nolint:errcheck
				return nil, nil, fmt.Errorf("create roster enrollment: %w", err)
			}
			created = append(created, enrollment)
		default:
			tx.Rollback() //nolint:errcheck
			return nil, nil, fmt.Errorf("find roster enrollment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit roster: %w", err)
	}
	return created, existing, nil
}
