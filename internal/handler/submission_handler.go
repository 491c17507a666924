package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/service"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/response"
)

// SubmissionHandler exposes submission and grading endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler constructs handler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Create godoc
// @Summary Submit work against an assignment
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assignment ID"
// @Param payload body dto.CreateSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.submissions.Create(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions for an assignment
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	submissions, err := h.submissions.ListByAssignment(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions)
}

// Recent godoc
// @Summary List each student's latest submission for a piece and activity
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param piece_slug query string true "Piece slug"
// @Param activity_name query string true "Activity type name"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{slug}/submissions/recent [get]
func (h *SubmissionHandler) Recent(c *gin.Context) {
	filter := dto.RecentSubmissionsFilter{
		CourseSlug:   c.Param("slug"),
		PieceSlug:    c.Query("piece_slug"),
		ActivityName: c.Query("activity_name"),
	}
	details, err := h.submissions.Recent(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details)
}

// RecentReport godoc
// @Summary Download the latest-submission overview as PDF
// @Tags Submissions
// @Produce application/pdf
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param piece_slug query string true "Piece slug"
// @Param activity_name query string true "Activity type name"
// @Success 200 {file} file
// @Router /courses/{slug}/submissions/recent/export [get]
func (h *SubmissionHandler) RecentReport(c *gin.Context) {
	filter := dto.RecentSubmissionsFilter{
		CourseSlug:   c.Param("slug"),
		PieceSlug:    c.Query("piece_slug"),
		ActivityName: c.Query("activity_name"),
	}
	data, err := h.submissions.RecentReport(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"submissions-%s-%s.pdf\"", filter.CourseSlug, filter.PieceSlug))
	c.Data(http.StatusOK, "application/pdf", data)
}

// CreateGrade godoc
// @Summary Grade a submission
// @Tags Grades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body dto.CreateGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/grades [post]
func (h *SubmissionHandler) CreateGrade(c *gin.Context) {
	var req dto.CreateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.submissions.CreateGrade(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// ListGrades godoc
// @Summary List grades recorded within a course
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/grades [get]
func (h *SubmissionHandler) ListGrades(c *gin.Context) {
	grades, err := h.submissions.ListGrades(c.Request.Context(), c.Param("slug"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades)
}
