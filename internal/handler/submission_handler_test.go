package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/ensemble-api/internal/middleware"
	"github.com/noah-isme/ensemble-api/internal/models"
	"github.com/noah-isme/ensemble-api/internal/service"
)

type recentSubmissionsStub struct {
	details []models.SubmissionDetail
}

func (s *recentSubmissionsStub) Create(context.Context, *models.Submission) error { return nil }

func (s *recentSubmissionsStub) ListByAssignment(context.Context, string) ([]models.Submission, error) {
	return nil, nil
}

func (s *recentSubmissionsStub) ListLatestByEnrollment(context.Context, string, string, string) ([]models.SubmissionDetail, error) {
	return s.details, nil
}

func (s *recentSubmissionsStub) FindByID(context.Context, string) (*models.Submission, error) {
	return nil, nil
}

type recentCourseStub struct {
	course models.Course
}

func (s *recentCourseStub) FindBySlug(context.Context, string) (*models.Course, error) {
	c := s.course
	return &c, nil
}

type recentEnrollmentStub struct {
	enrollment models.Enrollment
}

func (s *recentEnrollmentStub) FindByUserAndCourse(context.Context, string, string) (*models.Enrollment, error) {
	e := s.enrollment
	return &e, nil
}

func (s *recentEnrollmentStub) ListStudentsByCourse(context.Context, string) ([]models.Enrollment, error) {
	return nil, nil
}

func newRecentHandler(details []models.SubmissionDetail) *SubmissionHandler {
	submissions := service.NewSubmissionService(
		&recentSubmissionsStub{details: details},
		nil,
		nil,
		&recentCourseStub{course: models.Course{ID: "c-1", Slug: "general-music"}},
		&recentEnrollmentStub{enrollment: models.Enrollment{
			ID:       "e-t",
			UserID:   "u-teacher",
			CourseID: "c-1",
			Role:     models.EnrollmentRoleTeacher,
		}},
		nil,
		nil,
		nil,
	)
	return NewSubmissionHandler(submissions)
}

func newRecentContext(t *testing.T, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	c.Params = gin.Params{{Key: "slug", Value: "general-music"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher})
	return c, rec
}

func TestSubmissionHandlerRecentRequiresFilterParams(t *testing.T) {
	handler := newRecentHandler(nil)

	c, rec := newRecentContext(t, "/courses/general-music/submissions/recent?piece_slug=air")
	handler.Recent(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	assert.Equal(t, "missing piece_slug or activity_name", envelope.Error.Message)
}

func TestSubmissionHandlerRecentReturnsLatestRows(t *testing.T) {
	handler := newRecentHandler([]models.SubmissionDetail{{
		Submission: models.Submission{
			ID:           "s-1",
			AssignmentID: "asg-1",
			Content:      "take 3",
			Submitted:    time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		},
		EnrollmentID:     "e-1",
		Username:         "ada",
		Name:             "Ada",
		PieceSlug:        "air",
		ActivityTypeName: "Melody practice",
	}})

	c, rec := newRecentContext(t, "/courses/general-music/submissions/recent?piece_slug=air&activity_name=Melody+practice")
	handler.Recent(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
	assert.Equal(t, "s-1", envelope.Data[0]["id"])
	assert.Equal(t, "ada", envelope.Data[0]["username"])
}
