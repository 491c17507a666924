package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
)

// activityTypeOrdering maps the first word of an activity type name to its
// precedence within a piece group. Lower sorts first.
var activityTypeOrdering = map[string]float64{
	"Melody":       1,
	"Bassline":     2,
	"Creativity":   3,
	"Reflection":   4,
	"Connect":      5,
	"Aural":        3,
	"Exploratory":  3,
	"Theoretical":  3,
	"MelodyPost":   3.1,
	"BasslinePost": 3.2,
}

// orderFallbackBucket sorts unregistered activity types after every known
// precedence when the fallback is enabled.
const orderFallbackBucket = 99

type assignmentRepository interface {
	BulkCreate(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.AssignmentDetail, error)
	ListByCourseAndUser(ctx context.Context, courseID, userID string) ([]models.AssignmentDetail, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	Update(ctx context.Context, id string, instrument *string, deadline *time.Time) error
}

type activityCatalog interface {
	ListAll(ctx context.Context) ([]models.Activity, error)
	ListAssignedByCourse(ctx context.Context, courseSlug string) ([]models.Activity, error)
}

type pieceReader interface {
	FindByID(ctx context.Context, id string) (*models.Piece, error)
	FindPart(ctx context.Context, pieceID, partType string) (*models.Part, error)
}

type courseReader interface {
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
}

type enrollmentReader interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ListStudentsByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
}

type listingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AssignmentService provisions assignments in bulk and serves the grouped,
// ordered assignment listings.
type AssignmentService struct {
	assignments assignmentRepository
	activities  activityCatalog
	pieces      pieceReader
	courses     courseReader
	enrollments enrollmentReader
	cache       listingCache
	validator   *validator.Validate
	logger      *zap.Logger

	orderFallback bool
	cacheTTL      time.Duration
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(
	assignments assignmentRepository,
	activities activityCatalog,
	pieces pieceReader,
	courses courseReader,
	enrollments enrollmentReader,
	cache listingCache,
	validate *validator.Validate,
	logger *zap.Logger,
	orderFallback bool,
	cacheTTL time.Duration,
) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &AssignmentService{
		assignments:   assignments,
		activities:    activities,
		pieces:        pieces,
		courses:       courses,
		enrollments:   enrollments,
		cache:         cache,
		validator:     validate,
		logger:        logger,
		orderFallback: orderFallback,
		cacheTTL:      cacheTTL,
	}
}

// BulkAssign creates one assignment for every (activity, student enrollment)
// pairing of the course, resolving each activity's required part of the
// piece. All parts are resolved before anything is written and the insert is
// transactional, so a missing part aborts the operation with no rows created.
// Re-invocation is additive: no dedup against earlier provisioning runs.
func (s *AssignmentService) BulkAssign(ctx context.Context, courseSlug string, req dto.BulkAssignRequest, claims *models.JWTClaims) ([]models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "missing piece_id")
	}

	course, err := s.requireTeacher(ctx, courseSlug, claims)
	if err != nil {
		return nil, err
	}

	piece, err := s.pieces.FindByID(ctx, req.PieceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("assign_unknown_piece", zap.String("piece_id", req.PieceID), zap.String("course", courseSlug))
			return nil, appErrors.Clone(appErrors.ErrNotFound, "piece not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load piece")
	}

	activities, err := s.activities.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity catalog")
	}

	// Resolve every activity's part up front. An incomplete piece fails the
	// whole provisioning before any write.
	parts := make(map[string]*models.Part, len(activities))
	for _, activity := range activities {
		if _, ok := parts[activity.PartType]; ok {
			continue
		}
		part, err := s.pieces.FindPart(ctx, piece.ID, activity.PartType)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound,
					fmt.Sprintf("piece %s has no %s part required by activity %s", piece.Slug, activity.PartType, activity.ActivityTypeName))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve part")
		}
		parts[activity.PartType] = part
	}

	students, err := s.enrollments.ListStudentsByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}

	assignments := make([]models.Assignment, 0, len(activities)*len(students))
	for _, activity := range activities {
		part := parts[activity.PartType]
		for _, enrollment := range students {
			assignments = append(assignments, models.Assignment{
				ActivityID:   activity.ID,
				EnrollmentID: enrollment.ID,
				PartID:       part.ID,
				Instrument:   enrollment.Instrument,
			})
		}
	}

	created, err := s.assignments.BulkCreate(ctx, assignments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignments")
	}

	s.invalidateListing(ctx, courseSlug)
	s.logger.Info("assignments_provisioned",
		zap.String("course", courseSlug),
		zap.String("piece", piece.Slug),
		zap.Int("activities", len(activities)),
		zap.Int("students", len(students)),
		zap.Int("created", len(created)),
	)

	return created, nil
}

// ListGrouped returns the caller's assignment listing for a course, grouped
// by piece slug and ordered by activity-type precedence. Students see their
// own assignments, teachers see the whole course.
func (s *AssignmentService) ListGrouped(ctx context.Context, courseSlug string, claims *models.JWTClaims) (dto.GroupedAssignments, error) {
	course, enrollment, err := s.resolveMembership(ctx, courseSlug, claims)
	if err != nil {
		return nil, err
	}

	key := listingCacheKey(courseSlug, enrollment)
	if s.cache != nil {
		var cached dto.GroupedAssignments
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	var details []models.AssignmentDetail
	if enrollment.Role == models.EnrollmentRoleTeacher {
		details, err = s.assignments.ListByCourse(ctx, course.ID)
	} else {
		details, err = s.assignments.ListByCourseAndUser(ctx, course.ID, claims.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	grouped, err := groupAndOrder(details, s.orderFallback)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, grouped, s.cacheTTL); err != nil {
			s.logger.Warn("listing_cache_set_failed", zap.String("key", key), zap.Error(err))
		}
	}

	return grouped, nil
}

// Get returns one assignment, restricted to the owner for students.
func (s *AssignmentService) Get(ctx context.Context, courseSlug, id string, claims *models.JWTClaims) (*models.AssignmentDetail, error) {
	course, enrollment, err := s.resolveMembership(ctx, courseSlug, claims)
	if err != nil {
		return nil, err
	}

	detail, err := s.assignments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if detail.CourseID != course.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	if enrollment.Role != models.EnrollmentRoleTeacher && detail.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return detail, nil
}

// Update applies the teacher-editable fields of an assignment.
func (s *AssignmentService) Update(ctx context.Context, courseSlug, id string, req dto.UpdateAssignmentRequest, claims *models.JWTClaims) (*models.AssignmentDetail, error) {
	course, err := s.requireTeacher(ctx, courseSlug, claims)
	if err != nil {
		return nil, err
	}

	detail, err := s.assignments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if detail.CourseID != course.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}

	if req.Instrument == nil && req.Deadline == nil {
		return detail, nil
	}
	if err := s.assignments.Update(ctx, id, req.Instrument, req.Deadline); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	s.invalidateListing(ctx, courseSlug)

	updated, err := s.assignments.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload assignment")
	}
	return updated, nil
}

// ListCourseActivities returns the distinct activities that have assignments
// in the course. Teacher only.
func (s *AssignmentService) ListCourseActivities(ctx context.Context, courseSlug string, claims *models.JWTClaims) ([]models.Activity, error) {
	if _, err := s.requireTeacher(ctx, courseSlug, claims); err != nil {
		return nil, err
	}
	activities, err := s.activities.ListAssignedByCourse(ctx, courseSlug)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course activities")
	}
	return activities, nil
}

func (s *AssignmentService) resolveMembership(ctx context.Context, courseSlug string, claims *models.JWTClaims) (*models.Course, *models.Enrollment, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	course, err := s.courses.FindBySlug(ctx, courseSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
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

func (s *AssignmentService) requireTeacher(ctx context.Context, courseSlug string, claims *models.JWTClaims) (*models.Course, error) {
	course, enrollment, err := s.resolveMembership(ctx, courseSlug, claims)
	if err != nil {
		return nil, err
	}
	if enrollment.Role != models.EnrollmentRoleTeacher {
		return nil, appErrors.ErrForbidden
	}
	return course, nil
}

func (s *AssignmentService) invalidateListing(ctx context.Context, courseSlug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("assignments:%s:*", courseSlug)); err != nil {
		s.logger.Warn("listing_cache_invalidation_failed", zap.String("course", courseSlug), zap.Error(err))
	}
}

func listingCacheKey(courseSlug string, enrollment *models.Enrollment) string {
	if enrollment.Role == models.EnrollmentRoleTeacher {
		return fmt.Sprintf("assignments:%s:course", courseSlug)
	}
	return fmt.Sprintf("assignments:%s:user:%s", courseSlug, enrollment.UserID)
}

// groupAndOrder groups assignment details by piece slug and stable-sorts each
// group by activity-type precedence. An activity type whose first word has no
// registered precedence fails the listing unless fallback is enabled, in
// which case it lands in a trailing bucket.
func groupAndOrder(details []models.AssignmentDetail, fallback bool) (dto.GroupedAssignments, error) {
	grouped := make(dto.GroupedAssignments, 0)
	index := make(map[string]int, len(details))
	for _, detail := range details {
		i, ok := index[detail.PieceSlug]
		if !ok {
			i = len(grouped)
			index[detail.PieceSlug] = i
			grouped = append(grouped, dto.AssignmentGroup{PieceSlug: detail.PieceSlug})
		}
		grouped[i].Assignments = append(grouped[i].Assignments, dto.AssignmentSummary{
			ID:               detail.ID,
			ActivityTypeName: detail.ActivityTypeName,
			PartType:         detail.PartType,
			PieceSlug:        detail.PieceSlug,
			PieceName:        detail.PieceName,
			Username:         detail.Username,
			Instrument:       detail.Instrument,
			Deadline:         detail.Deadline,
			CreatedAt:        detail.CreatedAt,
		})
	}

	for gi := range grouped {
		summaries := grouped[gi].Assignments
		orders := make(map[string]float64, len(summaries))
		for _, summary := range summaries {
			order, err := orderForActivityType(summary.ActivityTypeName, fallback)
			if err != nil {
				return nil, err
			}
			orders[summary.ID] = order
		}
		sort.SliceStable(summaries, func(i, j int) bool {
			return orders[summaries[i].ID] < orders[summaries[j].ID]
		})
	}

	return grouped, nil
}

func orderForActivityType(name string, fallback bool) (float64, error) {
	words := strings.Fields(name)
	if len(words) > 0 {
		if order, ok := activityTypeOrdering[words[0]]; ok {
			return order, nil
		}
	}
	if fallback {
		return orderFallbackBucket, nil
	}
	return 0, appErrors.Clone(appErrors.ErrUnknownActivityOrder, fmt.Sprintf("activity type %q has no registered ordering", name))
}
