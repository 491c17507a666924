package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/export"
)

type submissionRepoStub struct {
	created     []*models.Submission
	latest      []models.SubmissionDetail
	byID        map[string]*models.Submission
	latestQuery [3]string
}

func (s *submissionRepoStub) Create(ctx context.Context, submission *models.Submission) error {
	s.created = append(s.created, submission)
	return nil
}

func (s *submissionRepoStub) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	return nil, nil
}

func (s *submissionRepoStub) ListLatestByEnrollment(ctx context.Context, courseSlug, pieceSlug, activityName string) ([]models.SubmissionDetail, error) {
	s.latestQuery = [3]string{courseSlug, pieceSlug, activityName}
	return s.latest, nil
}

func (s *submissionRepoStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if sub, ok := s.byID[id]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

type gradeRepoStub struct {
	created []*models.Grade
}

func (s *gradeRepoStub) Create(ctx context.Context, grade *models.Grade) error {
	s.created = append(s.created, grade)
	return nil
}

func (s *gradeRepoStub) ListByCourse(ctx context.Context, courseSlug string) ([]models.Grade, error) {
	return nil, nil
}

type assignmentReaderStub struct {
	byID map[string]*models.AssignmentDetail
}

func (s *assignmentReaderStub) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	if d, ok := s.byID[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

type pdfRendererStub struct {
	rendered *export.Dataset
	title    string
}

func (s *pdfRendererStub) Render(data export.Dataset, title string) ([]byte, error) {
	s.rendered = &data
	s.title = title
	return []byte("%PDF"), nil
}

func newSubmissionFixture() (*submissionRepoStub, *gradeRepoStub, *assignmentReaderStub, *courseReaderStub, *enrollmentReaderStub, *pdfRendererStub) {
	submissions := &submissionRepoStub{byID: map[string]*models.Submission{}}
	grades := &gradeRepoStub{}
	assignments := &assignmentReaderStub{byID: map[string]*models.AssignmentDetail{
		"a-1": {
			Assignment:       models.Assignment{ID: "a-1"},
			ActivityTypeName: "Melody practice",
			CourseID:         "c-1",
			UserID:           "u-1",
		},
	}}
	courses := &courseReaderStub{course: &models.Course{ID: "c-1", Slug: "general-music"}}
	enrollments := &enrollmentReaderStub{memberships: map[string]*models.Enrollment{
		"u-teacher": {ID: "e-t", UserID: "u-teacher", CourseID: "c-1", Role: models.EnrollmentRoleTeacher},
		"u-1":       {ID: "e-1", UserID: "u-1", CourseID: "c-1", Role: models.EnrollmentRoleStudent},
	}}
	pdf := &pdfRendererStub{}
	return submissions, grades, assignments, courses, enrollments, pdf
}

func TestSubmissionCreateOwnerOnly(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)

	created, err := svc.Create(context.Background(), "a-1", dto.CreateSubmissionRequest{Content: "take 1"}, &models.JWTClaims{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "a-1", created.AssignmentID)
	assert.False(t, created.Submitted.IsZero())

	_, err = svc.Create(context.Background(), "a-1", dto.CreateSubmissionRequest{Content: "take 2"}, &models.JWTClaims{UserID: "u-other"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmissionsAreAppendOnly(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)

	claims := &models.JWTClaims{UserID: "u-1"}
	_, err := svc.Create(context.Background(), "a-1", dto.CreateSubmissionRequest{Content: "take 1"}, claims)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "a-1", dto.CreateSubmissionRequest{Content: "take 2"}, claims)
	require.NoError(t, err)
	assert.Len(t, submissions.created, 2)
}

func TestRecentRequiresFilterParams(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)
	claims := &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher}

	for _, filter := range []dto.RecentSubmissionsFilter{
		{CourseSlug: "general-music", ActivityName: "Melody practice"},
		{CourseSlug: "general-music", PieceSlug: "air"},
	} {
		_, err := svc.Recent(context.Background(), filter, claims)
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		assert.Equal(t, "missing piece_slug or activity_name", appErr.Message)
	}
}

func TestRecentReturnsRepositoryRows(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	submissions.latest = []models.SubmissionDetail{
		{Submission: models.Submission{ID: "s-2", Submitted: time.Now()}, EnrollmentID: "e-1", Username: "ada"},
	}
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)
	claims := &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher}

	filter := dto.RecentSubmissionsFilter{CourseSlug: "general-music", PieceSlug: "air", ActivityName: "Melody practice"}
	details, err := svc.Recent(context.Background(), filter, claims)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "s-2", details[0].ID)
	assert.Equal(t, [3]string{"general-music", "air", "Melody practice"}, submissions.latestQuery)
}

func TestRecentRequiresCourseTeacher(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)

	filter := dto.RecentSubmissionsFilter{CourseSlug: "general-music", PieceSlug: "air", ActivityName: "Melody practice"}
	_, err := svc.Recent(context.Background(), filter, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRecentReportRendersDataset(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	submissions.latest = []models.SubmissionDetail{
		{Submission: models.Submission{ID: "s-1", Submitted: time.Now()}, Name: "Ada", Username: "ada", PieceSlug: "air", ActivityTypeName: "Melody practice"},
	}
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)
	claims := &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher}

	filter := dto.RecentSubmissionsFilter{CourseSlug: "general-music", PieceSlug: "air", ActivityName: "Melody practice"}
	payload, err := svc.RecentReport(context.Background(), filter, claims)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
	require.NotNil(t, pdf.rendered)
	require.Len(t, pdf.rendered.Rows, 1)
	assert.Equal(t, "ada", pdf.rendered.Rows[0][1])
	assert.Contains(t, pdf.title, "air")
}

func TestCreateGradeRequiresTeacher(t *testing.T) {
	submissions, grades, assignments, courses, enrollments, pdf := newSubmissionFixture()
	submissions.byID["s-1"] = &models.Submission{ID: "s-1", AssignmentID: "a-1"}
	svc := NewSubmissionService(submissions, grades, assignments, courses, enrollments, pdf, nil, nil)

	req := dto.CreateGradeRequest{Score: 90, Feedback: "solid"}
	grade, err := svc.CreateGrade(context.Background(), "s-1", req, &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, "u-teacher", grade.GraderID)
	assert.Equal(t, float64(90), grade.Score)

	_, err = svc.CreateGrade(context.Background(), "s-1", req, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
