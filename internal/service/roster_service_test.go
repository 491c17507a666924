package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
)

type rosterUserStub struct {
	users map[string]models.User
	err   error
}

func (s *rosterUserStub) FindByUsernames(ctx context.Context, usernames []string) (map[string]models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[string]models.User)
	for _, username := range usernames {
		if user, ok := s.users[username]; ok {
			result[username] = user
		}
	}
	return result, nil
}

type rosterApplierStub struct {
	courseID string
	newUsers []models.User
	userIDs  []string
	existing map[string]bool
	err      error
}

func (s *rosterApplierStub) Apply(ctx context.Context, courseID string, newUsers []models.User, userIDs []string) ([]models.Enrollment, []models.Enrollment, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.courseID = courseID
	s.newUsers = newUsers
	s.userIDs = userIDs

	var created, kept []models.Enrollment
	for _, id := range userIDs {
		enrollment := models.Enrollment{UserID: id, CourseID: courseID, Role: models.EnrollmentRoleStudent}
		if s.existing[id] {
			kept = append(kept, enrollment)
		} else {
			created = append(created, enrollment)
		}
	}
	return created, kept, nil
}

type rosterCourseStub struct {
	course *models.Course
	err    error
}

func (s *rosterCourseStub) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.course, nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return hash
}

func TestRosterParseRoster(t *testing.T) {
	svc := NewRosterService(&rosterUserStub{}, &rosterApplierStub{}, &rosterCourseStub{}, nil, 0)

	rows, err := svc.ParseRoster(strings.NewReader("Ada Lovelace,ada,pw1,6\nCharles Babbage,charles,pw2,7\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, dto.RosterRow{Name: "Ada Lovelace", Username: "ada", Password: "pw1", Grade: "6"}, rows[0])
	assert.Equal(t, "charles", rows[1].Username)
}

func TestRosterParseRosterRejectsWrongColumnCount(t *testing.T) {
	svc := NewRosterService(&rosterUserStub{}, &rosterApplierStub{}, &rosterCourseStub{}, nil, 0)

	_, err := svc.ParseRoster(strings.NewReader("Ada,ada,pw1\n"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRosterParseRosterEnforcesMaxRows(t *testing.T) {
	svc := NewRosterService(&rosterUserStub{}, &rosterApplierStub{}, &rosterCourseStub{}, nil, 2)

	_, err := svc.ParseRoster(strings.NewReader("a,a,p,1\nb,b,p,1\nc,c,p,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestRosterReconcilePartitionsRows(t *testing.T) {
	users := &rosterUserStub{users: map[string]models.User{
		"ada": {ID: "u-ada", Username: "ada", PasswordHash: mustHash(t, "pw1")},
	}}
	applier := &rosterApplierStub{existing: map[string]bool{"u-ada": true}}
	courses := &rosterCourseStub{course: &models.Course{ID: "c-1", Slug: "general-music"}}
	svc := NewRosterService(users, applier, courses, nil, 0)

	rows := []dto.RosterRow{
		{Name: "Ada", Username: "ada", Password: "pw1", Grade: "6"},
		{Name: "Grace", Username: "grace", Password: "pw2", Grade: "6"},
		{Name: "Imposter", Username: "ada", Password: "wrong", Grade: "6"},
	}
	result, err := svc.Reconcile(context.Background(), "general-music", rows)
	require.NoError(t, err)

	require.Len(t, result.Users.Existing, 1)
	assert.Equal(t, "u-ada", result.Users.Existing[0].ID)

	require.Len(t, result.Users.Created, 1)
	assert.Equal(t, "grace", result.Users.Created[0].Username)
	assert.Equal(t, models.RoleStudent, result.Users.Created[0].Role)
	assert.NotEqual(t, "pw2", result.Users.Created[0].PasswordHash)

	require.Len(t, result.Users.Invalid, 1)
	assert.Equal(t, "ada", result.Users.Invalid[0].Username)
	assert.Equal(t, "Wrong password", result.Users.Invalid[0].Reason)

	// Created users enroll first, then existing ones.
	require.Len(t, applier.userIDs, 2)
	assert.Equal(t, result.Users.Created[0].ID, applier.userIDs[0])
	assert.Equal(t, "u-ada", applier.userIDs[1])
	require.Len(t, applier.newUsers, 1)

	require.Len(t, result.Enrollments.Created, 1)
	require.Len(t, result.Enrollments.Existing, 1)
	assert.Equal(t, "u-ada", result.Enrollments.Existing[0].UserID)
}

func TestRosterReconcileRerunCreatesNothing(t *testing.T) {
	users := &rosterUserStub{users: map[string]models.User{
		"ada":   {ID: "u-ada", Username: "ada", PasswordHash: mustHash(t, "pw1")},
		"grace": {ID: "u-grace", Username: "grace", PasswordHash: mustHash(t, "pw2")},
	}}
	applier := &rosterApplierStub{existing: map[string]bool{"u-ada": true, "u-grace": true}}
	courses := &rosterCourseStub{course: &models.Course{ID: "c-1", Slug: "general-music"}}
	svc := NewRosterService(users, applier, courses, nil, 0)

	rows := []dto.RosterRow{
		{Name: "Ada", Username: "ada", Password: "pw1", Grade: "6"},
		{Name: "Grace", Username: "grace", Password: "pw2", Grade: "6"},
	}
	result, err := svc.Reconcile(context.Background(), "general-music", rows)
	require.NoError(t, err)

	assert.Empty(t, result.Users.Created)
	assert.Empty(t, result.Users.Invalid)
	assert.Len(t, result.Users.Existing, 2)
	assert.Empty(t, result.Enrollments.Created)
	assert.Len(t, result.Enrollments.Existing, 2)
	assert.Empty(t, applier.newUsers)
}

func TestRosterReconcileDuplicateUsernameInUpload(t *testing.T) {
	users := &rosterUserStub{}
	applier := &rosterApplierStub{}
	courses := &rosterCourseStub{course: &models.Course{ID: "c-1", Slug: "general-music"}}
	svc := NewRosterService(users, applier, courses, nil, 0)

	rows := []dto.RosterRow{
		{Name: "Ada", Username: "ada", Password: "pw1", Grade: "6"},
		{Name: "Ada Again", Username: "ada", Password: "pw1", Grade: "6"},
		{Name: "Ada Wrong", Username: "ada", Password: "other", Grade: "6"},
	}
	result, err := svc.Reconcile(context.Background(), "general-music", rows)
	require.NoError(t, err)

	// The first row creates the user, the matching repeat reads as existing
	// and the mismatching repeat is invalid.
	assert.Len(t, result.Users.Created, 1)
	assert.Len(t, result.Users.Existing, 1)
	assert.Len(t, result.Users.Invalid, 1)
}

func TestRosterReconcileEmptyUploadHasEmptySlices(t *testing.T) {
	courses := &rosterCourseStub{course: &models.Course{ID: "c-1", Slug: "general-music"}}
	svc := NewRosterService(&rosterUserStub{}, &rosterApplierStub{}, courses, nil, 0)

	result, err := svc.Reconcile(context.Background(), "general-music", nil)
	require.NoError(t, err)
	assert.NotNil(t, result.Users.Created)
	assert.NotNil(t, result.Users.Existing)
	assert.NotNil(t, result.Users.Invalid)
	assert.NotNil(t, result.Enrollments.Created)
	assert.NotNil(t, result.Enrollments.Existing)
}
