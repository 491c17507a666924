package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/export"
)

type submissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error)
	ListLatestByEnrollment(ctx context.Context, courseSlug, pieceSlug, activityName string) ([]models.SubmissionDetail, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

type gradeRepository interface {
	Create(ctx context.Context, grade *models.Grade) error
	ListByCourse(ctx context.Context, courseSlug string) ([]models.Grade, error)
}

type submissionAssignmentReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// SubmissionService records student submissions and serves the teacher-facing
// review queries.
type SubmissionService struct {
	submissions submissionRepository
	grades      gradeRepository
	assignments submissionAssignmentReader
	courses     courseReader
	enrollments enrollmentReader
	pdf         pdfRenderer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(
	submissions submissionRepository,
	grades gradeRepository,
	assignments submissionAssignmentReader,
	courses courseReader,
	enrollments enrollmentReader,
	pdf pdfRenderer,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		submissions: submissions,
		grades:      grades,
		assignments: assignments,
		courses:     courses,
		enrollments: enrollments,
		pdf:         pdf,
		validator:   validate,
		logger:      logger,
	}
}

// Create records a submission for an assignment. Students may only submit to
// their own assignments; submissions are append-only.
func (s *SubmissionService) Create(ctx context.Context, assignmentID string, req dto.CreateSubmissionRequest, claims *models.JWTClaims) (*models.Submission, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}

	submission := &models.Submission{
		AssignmentID: assignment.ID,
		Content:      req.Content,
		Submitted:    time.Now().UTC(),
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// ListByAssignment returns all submissions of an assignment, visible to the
// owning student and to course teachers.
func (s *SubmissionService) ListByAssignment(ctx context.Context, assignmentID string, claims *models.JWTClaims) ([]models.Submission, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.UserID != claims.UserID {
		if err := s.requireCourseTeacher(ctx, assignment.CourseID, claims); err != nil {
			return nil, err
		}
	}
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Recent returns, for each enrollment matching the filter, only the most
// recent submission, ordered by enrollment then descending submission time.
// Both piece_slug and activity_name are required.
func (s *SubmissionService) Recent(ctx context.Context, filter dto.RecentSubmissionsFilter, claims *models.JWTClaims) ([]models.SubmissionDetail, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing piece_slug or activity_name")
	}

	course, err := s.courses.FindBySlug(ctx, filter.CourseSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.requireCourseTeacher(ctx, course.ID, claims); err != nil {
		return nil, err
	}

	details, err := s.submissions.ListLatestByEnrollment(ctx, filter.CourseSlug, filter.PieceSlug, filter.ActivityName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list latest submissions")
	}
	return details, nil
}

// RecentReport renders the latest-submission review as a PDF document.
func (s *SubmissionService) RecentReport(ctx context.Context, filter dto.RecentSubmissionsFilter, claims *models.JWTClaims) ([]byte, error) {
	details, err := s.Recent(ctx, filter, claims)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Headers: []string{"Student", "Username", "Piece", "Activity", "Submitted"},
		Rows:    make([][]string, 0, len(details)),
	}
	for _, d := range details {
		data.Rows = append(data.Rows, []string{
			d.Name,
			d.Username,
			d.PieceSlug,
			d.ActivityTypeName,
			d.Submitted.UTC().Format(time.RFC3339),
		})
	}

	title := fmt.Sprintf("Latest submissions: %s / %s", filter.PieceSlug, filter.ActivityName)
	report, err := s.pdf.Render(data, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return report, nil
}

// CreateGrade records a teacher review for one submission.
func (s *SubmissionService) CreateGrade(ctx context.Context, submissionID string, req dto.CreateGradeRequest, claims *models.JWTClaims) (*models.Grade, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	assignment, err := s.loadAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCourseTeacher(ctx, assignment.CourseID, claims); err != nil {
		return nil, err
	}

	grade := &models.Grade{
		SubmissionID: submission.ID,
		GraderID:     claims.UserID,
		Score:        req.Score,
		Feedback:     req.Feedback,
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}
	return grade, nil
}

// ListGrades returns every grade given within a course. Teacher only.
func (s *SubmissionService) ListGrades(ctx context.Context, courseSlug string, claims *models.JWTClaims) ([]models.Grade, error) {
	course, err := s.courses.FindBySlug(ctx, courseSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.requireCourseTeacher(ctx, course.ID, claims); err != nil {
		return nil, err
	}
	grades, err := s.grades.ListByCourse(ctx, courseSlug)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

func (s *SubmissionService) loadAssignment(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	assignment, err := s.assignments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *SubmissionService) requireCourseTeacher(ctx context.Context, courseID string, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, claims.UserID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "not enrolled in course")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Role != models.EnrollmentRoleTeacher {
		return appErrors.ErrForbidden
	}
	return nil
}
