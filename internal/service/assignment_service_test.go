package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
)

type assignmentRepoStub struct {
	created []models.Assignment
	details []models.AssignmentDetail
	byID    map[string]*models.AssignmentDetail
	err     error
}

func (s *assignmentRepoStub) BulkCreate(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = assignments
	return assignments, nil
}

func (s *assignmentRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.AssignmentDetail, error) {
	return s.details, s.err
}

func (s *assignmentRepoStub) ListByCourseAndUser(ctx context.Context, courseID, userID string) ([]models.AssignmentDetail, error) {
	var mine []models.AssignmentDetail
	for _, d := range s.details {
		if d.UserID == userID {
			mine = append(mine, d)
		}
	}
	return mine, s.err
}

func (s *assignmentRepoStub) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	if d, ok := s.byID[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentRepoStub) Update(ctx context.Context, id string, instrument *string, deadline *time.Time) error {
	return s.err
}

type activityCatalogStub struct {
	activities []models.Activity
	err        error
}

func (s *activityCatalogStub) ListAll(ctx context.Context) ([]models.Activity, error) {
	return s.activities, s.err
}

func (s *activityCatalogStub) ListAssignedByCourse(ctx context.Context, courseSlug string) ([]models.Activity, error) {
	return s.activities, s.err
}

type pieceReaderStub struct {
	piece *models.Piece
	parts map[string]*models.Part
}

func (s *pieceReaderStub) FindByID(ctx context.Context, id string) (*models.Piece, error) {
	if s.piece == nil || s.piece.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.piece, nil
}

func (s *pieceReaderStub) FindPart(ctx context.Context, pieceID, partType string) (*models.Part, error) {
	if part, ok := s.parts[partType]; ok {
		return part, nil
	}
	return nil, sql.ErrNoRows
}

type courseReaderStub struct {
	course *models.Course
}

func (s *courseReaderStub) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	if s.course == nil || s.course.Slug != slug {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

type enrollmentReaderStub struct {
	memberships map[string]*models.Enrollment
	students    []models.Enrollment
}

func (s *enrollmentReaderStub) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if e, ok := s.memberships[userID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentReaderStub) ListStudentsByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	return s.students, nil
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-teacher", Username: "teacher", Role: models.RoleTeacher}
}

func newAssignmentFixture() (*assignmentRepoStub, *activityCatalogStub, *pieceReaderStub, *courseReaderStub, *enrollmentReaderStub) {
	repo := &assignmentRepoStub{}
	activities := &activityCatalogStub{activities: []models.Activity{
		{ID: "act-1", ActivityTypeName: "Melody", PartType: "melody"},
		{ID: "act-2", ActivityTypeName: "Bassline", PartType: "bassline"},
	}}
	pieces := &pieceReaderStub{
		piece: &models.Piece{ID: "p-1", Slug: "air"},
		parts: map[string]*models.Part{
			"melody":   {ID: "part-m", PieceID: "p-1", PartType: "melody"},
			"bassline": {ID: "part-b", PieceID: "p-1", PartType: "bassline"},
		},
	}
	courses := &courseReaderStub{course: &models.Course{ID: "c-1", Slug: "general-music"}}
	enrollments := &enrollmentReaderStub{
		memberships: map[string]*models.Enrollment{
			"u-teacher": {ID: "e-t", UserID: "u-teacher", CourseID: "c-1", Role: models.EnrollmentRoleTeacher},
		},
		students: []models.Enrollment{
			{ID: "e-1", UserID: "u-1", CourseID: "c-1", Instrument: "violin"},
			{ID: "e-2", UserID: "u-2", CourseID: "c-1", Instrument: "cello"},
			{ID: "e-3", UserID: "u-3", CourseID: "c-1"},
		},
	}
	return repo, activities, pieces, courses, enrollments
}

func TestBulkAssignCreatesActivityTimesStudents(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	created, err := svc.BulkAssign(context.Background(), "general-music", dto.BulkAssignRequest{PieceID: "p-1"}, teacherClaims())
	require.NoError(t, err)
	assert.Len(t, created, 6)

	// Every assignment resolves the part matching its activity's part type
	// and carries the enrollment's instrument.
	for _, a := range repo.created {
		switch a.ActivityID {
		case "act-1":
			assert.Equal(t, "part-m", a.PartID)
		case "act-2":
			assert.Equal(t, "part-b", a.PartID)
		}
		if a.EnrollmentID == "e-1" {
			assert.Equal(t, "violin", a.Instrument)
		}
	}
}

func TestBulkAssignUnknownPiece(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	_, err := svc.BulkAssign(context.Background(), "general-music", dto.BulkAssignRequest{PieceID: "missing"}, teacherClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestBulkAssignMissingPartAbortsBeforeWrite(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	delete(pieces.parts, "bassline")
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	_, err := svc.BulkAssign(context.Background(), "general-music", dto.BulkAssignRequest{PieceID: "p-1"}, teacherClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestBulkAssignMissingPieceID(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	_, err := svc.BulkAssign(context.Background(), "general-music", dto.BulkAssignRequest{}, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBulkAssignRequiresTeacher(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	enrollments.memberships["u-student"] = &models.Enrollment{ID: "e-s", UserID: "u-student", CourseID: "c-1", Role: models.EnrollmentRoleStudent}
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	claims := &models.JWTClaims{UserID: "u-student", Role: models.RoleStudent}
	_, err := svc.BulkAssign(context.Background(), "general-music", dto.BulkAssignRequest{PieceID: "p-1"}, claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func detail(id, pieceSlug, activityType string) models.AssignmentDetail {
	return models.AssignmentDetail{
		Assignment:       models.Assignment{ID: id},
		ActivityTypeName: activityType,
		PieceSlug:        pieceSlug,
		CourseID:         "c-1",
	}
}

func groupFor(t *testing.T, grouped dto.GroupedAssignments, pieceSlug string) []dto.AssignmentSummary {
	t.Helper()
	for _, group := range grouped {
		if group.PieceSlug == pieceSlug {
			return group.Assignments
		}
	}
	t.Fatalf("no group for piece %s", pieceSlug)
	return nil
}

func TestGroupAndOrderSortsByActivityPrecedence(t *testing.T) {
	details := []models.AssignmentDetail{
		detail("a-1", "air", "Reflection on performance"),
		detail("a-2", "air", "Melody practice"),
		detail("a-3", "air", "Bassline practice"),
	}
	grouped, err := groupAndOrder(details, false)
	require.NoError(t, err)

	air := groupFor(t, grouped, "air")
	require.Len(t, air, 3)
	assert.Equal(t, "a-2", air[0].ID)
	assert.Equal(t, "a-3", air[1].ID)
	assert.Equal(t, "a-1", air[2].ID)
}

func TestGroupAndOrderGroupsByPiece(t *testing.T) {
	details := []models.AssignmentDetail{
		detail("a-1", "air", "Melody practice"),
		detail("a-2", "minuet", "Creativity exercise"),
		detail("a-3", "minuet", "MelodyPost analysis"),
		detail("a-4", "minuet", "BasslinePost analysis"),
	}
	grouped, err := groupAndOrder(details, false)
	require.NoError(t, err)

	require.Len(t, grouped, 2)
	minuet := groupFor(t, grouped, "minuet")
	require.Len(t, minuet, 3)
	// Creativity (3) < MelodyPost (3.1) < BasslinePost (3.2).
	assert.Equal(t, "a-2", minuet[0].ID)
	assert.Equal(t, "a-3", minuet[1].ID)
	assert.Equal(t, "a-4", minuet[2].ID)
}

func TestGroupAndOrderKeepsFirstAppearanceGroupOrder(t *testing.T) {
	details := []models.AssignmentDetail{
		detail("a-1", "minuet", "Melody practice"),
		detail("a-2", "air", "Melody practice"),
		detail("a-3", "minuet", "Bassline practice"),
	}
	grouped, err := groupAndOrder(details, false)
	require.NoError(t, err)

	require.Len(t, grouped, 2)
	assert.Equal(t, "minuet", grouped[0].PieceSlug)
	assert.Equal(t, "air", grouped[1].PieceSlug)
	assert.Len(t, grouped[0].Assignments, 2)
}

func TestGroupAndOrderStableWithinEqualPrecedence(t *testing.T) {
	details := []models.AssignmentDetail{
		detail("a-1", "air", "Aural quiz"),
		detail("a-2", "air", "Exploratory session"),
		detail("a-3", "air", "Theoretical drill"),
	}
	grouped, err := groupAndOrder(details, false)
	require.NoError(t, err)

	// All share precedence 3, so input order is preserved.
	air := groupFor(t, grouped, "air")
	assert.Equal(t, "a-1", air[0].ID)
	assert.Equal(t, "a-2", air[1].ID)
	assert.Equal(t, "a-3", air[2].ID)
}

func TestGroupAndOrderUnknownTypeFails(t *testing.T) {
	details := []models.AssignmentDetail{
		detail("a-1", "air", "Improvisation jam"),
	}
	_, err := groupAndOrder(details, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownActivityOrder.Code, appErrors.FromError(err).Code)
}

func TestGroupAndOrderUnknownTypeFallback(t *testing.T) {
	details := []models.AssignmentDetail{
		detail("a-1", "air", "Improvisation jam"),
		detail("a-2", "air", "Reflection essay"),
	}
	grouped, err := groupAndOrder(details, true)
	require.NoError(t, err)

	// The unregistered type sinks to the trailing bucket.
	air := groupFor(t, grouped, "air")
	assert.Equal(t, "a-2", air[0].ID)
	assert.Equal(t, "a-1", air[1].ID)
}

func TestListGroupedStudentSeesOwnAssignmentsOnly(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	repo.details = []models.AssignmentDetail{
		func() models.AssignmentDetail {
			d := detail("a-1", "air", "Melody practice")
			d.UserID = "u-1"
			return d
		}(),
		func() models.AssignmentDetail {
			d := detail("a-2", "air", "Melody practice")
			d.UserID = "u-2"
			return d
		}(),
	}
	enrollments.memberships["u-1"] = &models.Enrollment{ID: "e-1", UserID: "u-1", CourseID: "c-1", Role: models.EnrollmentRoleStudent}
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent}
	grouped, err := svc.ListGrouped(context.Background(), "general-music", claims)
	require.NoError(t, err)
	air := groupFor(t, grouped, "air")
	require.Len(t, air, 1)
	assert.Equal(t, "a-1", air[0].ID)
}

func TestListGroupedUsesCache(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	cache := &listingCacheStub{entries: map[string]dto.GroupedAssignments{}}
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, cache, nil, nil, false, time.Minute)

	repo.details = []models.AssignmentDetail{detail("a-1", "air", "Melody practice")}
	grouped, err := svc.ListGrouped(context.Background(), "general-music", teacherClaims())
	require.NoError(t, err)
	require.Len(t, groupFor(t, grouped, "air"), 1)
	assert.Equal(t, 1, cache.sets)

	// Second call is served from cache even after the repo changes.
	repo.details = nil
	again, err := svc.ListGrouped(context.Background(), "general-music", teacherClaims())
	require.NoError(t, err)
	assert.Len(t, groupFor(t, again, "air"), 1)
	assert.Equal(t, 1, cache.sets)
}

type listingCacheStub struct {
	entries map[string]dto.GroupedAssignments
	sets    int
}

func (s *listingCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	if cached, ok := s.entries[key]; ok {
		if out, ok := dest.(*dto.GroupedAssignments); ok {
			*out = cached
			return nil
		}
	}
	return errors.New("cache miss")
}

func (s *listingCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if grouped, ok := value.(dto.GroupedAssignments); ok {
		s.entries[key] = grouped
	}
	s.sets++
	return nil
}

func (s *listingCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.entries = map[string]dto.GroupedAssignments{}
	return nil
}

func TestAssignmentGetEnforcesOwnership(t *testing.T) {
	repo, activities, pieces, courses, enrollments := newAssignmentFixture()
	owned := detail("a-1", "air", "Melody practice")
	owned.UserID = "u-1"
	repo.byID = map[string]*models.AssignmentDetail{"a-1": &owned}
	enrollments.memberships["u-1"] = &models.Enrollment{ID: "e-1", UserID: "u-1", CourseID: "c-1", Role: models.EnrollmentRoleStudent}
	enrollments.memberships["u-2"] = &models.Enrollment{ID: "e-2", UserID: "u-2", CourseID: "c-1", Role: models.EnrollmentRoleStudent}
	svc := NewAssignmentService(repo, activities, pieces, courses, enrollments, nil, nil, nil, false, 0)

	_, err := svc.Get(context.Background(), "general-music", "a-1", &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "general-music", "a-1", &models.JWTClaims{UserID: "u-2", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
