package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ensemble-api/internal/models"
)

func TestSubmissionRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	submission := &models.Submission{AssignmentID: "asg-1", Content: "take 1"}
	require.NoError(t, repo.Create(context.Background(), submission))
	require.NotEmpty(t, submission.ID)
	require.False(t, submission.Submitted.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListLatestByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)

	submitted := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "assignment_id", "content", "submitted",
		"enrollment_id", "username", "name", "piece_slug", "activity_type_name",
	}).
		AddRow("s-2", "asg-1", "take 2", submitted, "e-1", "ada", "Ada", "air", "Melody practice").
		AddRow("s-3", "asg-2", "take 1", submitted.Add(-time.Hour), "e-2", "grace", "Grace", "air", "Melody practice")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (e.id)")).
		WithArgs("general-music", "air", "Melody practice").
		WillReturnRows(rows)

	details, err := repo.ListLatestByEnrollment(context.Background(), "general-music", "air", "Melody practice")
	require.NoError(t, err)
	require.Len(t, details, 2)
	require.Equal(t, "s-2", details[0].ID)
	require.Equal(t, "e-1", details[0].EnrollmentID)
	require.Equal(t, "grace", details[1].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListByAssignmentOrdersOldestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "assignment_id", "content", "submitted"}).
		AddRow("s-1", "asg-1", "take 1", time.Now().Add(-time.Hour)).
		AddRow("s-2", "asg-1", "take 2", time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY submitted, id")).
		WithArgs("asg-1").
		WillReturnRows(rows)

	submissions, err := repo.ListByAssignment(context.Background(), "asg-1")
	require.NoError(t, err)
	require.Len(t, submissions, 2)
	require.Equal(t, "s-1", submissions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
