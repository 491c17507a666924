package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ensemble-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryBulkCreateCommitsAllRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	created, err := repo.BulkCreate(context.Background(), []models.Assignment{
		{ActivityID: "act-1", EnrollmentID: "e-1", PartID: "part-1"},
		{ActivityID: "act-1", EnrollmentID: "e-2", PartID: "part-1"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.NotEmpty(t, created[0].ID)
	require.False(t, created[0].CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryBulkCreateRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := repo.BulkCreate(context.Background(), []models.Assignment{
		{ActivityID: "act-1", EnrollmentID: "e-1", PartID: "part-1"},
		{ActivityID: "act-1", EnrollmentID: "e-2", PartID: "part-1"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryBulkCreateEmptyInputSkipsTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	created, err := repo.BulkCreate(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "activity_id", "enrollment_id", "part_id", "instrument", "deadline", "created_at",
		"activity_type_name", "part_type", "piece_id", "piece_slug", "piece_name",
		"course_id", "user_id", "username",
	}).AddRow("asg-1", "act-1", "e-1", "part-1", "violin", nil, now,
		"Melody practice", "melody", "p-1", "air", "Air on G", "c-1", "u-1", "ada")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.course_id = $1")).
		WithArgs("c-1").
		WillReturnRows(rows)

	details, err := repo.ListByCourse(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "Melody practice", details[0].ActivityTypeName)
	require.Equal(t, "air", details[0].PieceSlug)
	require.Equal(t, "c-1", details[0].CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUpdateCoalesces(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	instrument := "cello"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET")).
		WithArgs("asg-1", "cello", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), "asg-1", &instrument, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
