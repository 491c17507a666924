package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ensemble-api/internal/service"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/response"
)

// CourseHandler exposes course and roster endpoints.
type CourseHandler struct {
	courses *service.CourseService
	roster  *service.RosterService
}

// NewCourseHandler constructs handler.
func NewCourseHandler(courses *service.CourseService, roster *service.RosterService) *CourseHandler {
	return &CourseHandler{courses: courses, roster: roster}
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Get godoc
// @Summary Fetch a course by slug
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course)
}

// Roster godoc
// @Summary List course roster
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/roster [get]
func (h *CourseHandler) Roster(c *gin.Context) {
	entries, err := h.courses.Roster(c.Request.Context(), c.Param("slug"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}

// UploadRoster godoc
// @Summary Reconcile a CSV roster upload against the course
// @Tags Courses
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param file formData file true "Roster CSV (name,username,password,grade)"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/roster [post]
func (h *CourseHandler) UploadRoster(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	rows, err := h.roster.ParseRoster(src)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.roster.Reconcile(c.Request.Context(), c.Param("slug"), rows)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ExportRoster godoc
// @Summary Download the course roster as CSV
// @Tags Courses
// @Produce text/csv
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Success 200 {file} file
// @Router /courses/{slug}/roster/export [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	slug := c.Param("slug")
	data, err := h.courses.RosterCSV(c.Request.Context(), slug, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"roster-%s.csv\"", slug))
	c.Data(http.StatusOK, "text/csv", data)
}

// UpdateInstrument godoc
// @Summary Update the instrument recorded on an enrollment
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param enrollmentId path string true "Enrollment ID"
// @Param payload body service.UpdateInstrumentRequest true "Instrument payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/enrollments/{enrollmentId}/instrument [patch]
func (h *CourseHandler) UpdateInstrument(c *gin.Context) {
	var req service.UpdateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.courses.UpdateInstrument(c.Request.Context(), c.Param("slug"), c.Param("enrollmentId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}
