package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// ReportRepository handles persistence of report jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create persists a new report job in QUEUED state.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, course_id, course_slug, kind, piece_slug, activity_name, status, file, token, expires_at, failure, requested_by, created_at, updated_at)
        VALUES (:id, :course_id, :course_slug, :kind, :piece_slug, :activity_name, :status, :file, :token, :expires_at, :failure, :requested_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID fetches a single report job.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	const query = `SELECT id, course_id, course_slug, kind, piece_slug, activity_name, status, file, token, expires_at, failure, requested_by, created_at, updated_at
        FROM report_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing flips a queued job to PROCESSING.
func (r *ReportRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE report_jobs SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusProcessing, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}
	return nil
}

// MarkCompleted records the rendered file and its signed download token.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id, file, token string, expiresAt time.Time) error {
	const query = `UPDATE report_jobs SET status = $2, file = $3, token = $4, expires_at = $5, failure = '', updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusCompleted, file, token, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE report_jobs SET status = $2, failure = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}

// DeleteExpired removes jobs whose download window has passed and returns their files.
func (r *ReportRepository) DeleteExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	var files []string
	const query = `DELETE FROM report_jobs WHERE expires_at IS NOT NULL AND expires_at < $1 RETURNING file`
	if err := r.db.SelectContext(ctx, &files, query, cutoff); err != nil {
		return nil, fmt.Errorf("delete expired reports: %w", err)
	}
	return files, nil
}
