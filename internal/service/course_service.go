package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/export"
)

type courseRepository interface {
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
}

type rosterReader interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
	UpdateInstrument(ctx context.Context, id, instrument string) error
	Create(ctx context.Context, enrollment *models.Enrollment) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Slug string `json:"slug" validate:"required,lowercase,excludesall= "`
	Name string `json:"name" validate:"required"`
}

// UpdateInstrumentRequest carries the student-editable enrollment field.
type UpdateInstrumentRequest struct {
	Instrument string `json:"instrument" validate:"required"`
}

// CourseService manages courses and their rosters.
type CourseService struct {
	courses     courseRepository
	enrollments rosterReader
	csv         csvRenderer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseRepository, enrollments rosterReader, csv csvRenderer, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, enrollments: enrollments, csv: csv, validator: validate, logger: logger}
}

// Create registers a new course owned by the calling teacher, who is also
// enrolled as its teacher.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, claims *models.JWTClaims) (*models.Course, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleTeacher && claims.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if _, err := s.courses.FindBySlug(ctx, req.Slug); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course slug already taken")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slug")
	}

	course := &models.Course{
		Slug:    strings.ToLower(req.Slug),
		Name:    req.Name,
		OwnerID: claims.UserID,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	enrollment := &models.Enrollment{
		UserID:   claims.UserID,
		CourseID: course.ID,
		Role:     models.EnrollmentRoleTeacher,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll course owner")
	}

	return course, nil
}

// Get returns a course by slug.
func (s *CourseService) Get(ctx context.Context, slug string) (*models.Course, error) {
	course, err := s.courses.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Roster returns all enrollments of the course joined with user identity.
// Any course member may read it.
func (s *CourseService) Roster(ctx context.Context, slug string, claims *models.JWTClaims) ([]models.RosterEntry, error) {
	course, _, err := s.membership(ctx, slug, claims)
	if err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListRoster(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}

// RosterCSV renders the course roster as a CSV download. Teacher only.
func (s *CourseService) RosterCSV(ctx context.Context, slug string, claims *models.JWTClaims) ([]byte, error) {
	course, enrollment, err := s.membership(ctx, slug, claims)
	if err != nil {
		return nil, err
	}
	if enrollment.Role != models.EnrollmentRoleTeacher {
		return nil, appErrors.ErrForbidden
	}
	roster, err := s.enrollments.ListRoster(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}

	data := export.Dataset{
		Headers: []string{"name", "username", "grade", "role", "instrument"},
		Rows:    make([][]string, 0, len(roster)),
	}
	for _, entry := range roster {
		data.Rows = append(data.Rows, []string{entry.Name, entry.Username, entry.Grade, string(entry.Role), entry.Instrument})
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	return out, nil
}

// UpdateInstrument sets the instrument on the caller's own enrollment, or on
// any enrollment when called by the course teacher.
func (s *CourseService) UpdateInstrument(ctx context.Context, slug, enrollmentID string, req UpdateInstrumentRequest, claims *models.JWTClaims) (*models.Enrollment, error) {
	course, caller, err := s.membership(ctx, slug, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instrument payload")
	}

	roster, err := s.enrollments.ListRoster(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	var target *models.Enrollment
	for i := range roster {
		if roster[i].Enrollment.ID == enrollmentID {
			target = &roster[i].Enrollment
			break
		}
	}
	if target == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	if caller.Role != models.EnrollmentRoleTeacher && target.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}

	if err := s.enrollments.UpdateInstrument(ctx, enrollmentID, req.Instrument); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instrument")
	}
	target.Instrument = req.Instrument
	return target, nil
}

func (s *CourseService) membership(ctx context.Context, slug string, claims *models.JWTClaims) (*models.Course, *models.Enrollment, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	course, err := s.Get(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, claims.UserID, course.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in course")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return course, enrollment, nil
}
