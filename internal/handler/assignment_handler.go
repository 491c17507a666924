package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/service"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/response"
)

// AssignmentHandler exposes assignment endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// BulkAssign godoc
// @Summary Provision one assignment per activity and enrolled student for a piece
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param payload body dto.BulkAssignRequest true "Piece reference"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{slug}/assign [post]
func (h *AssignmentHandler) BulkAssign(c *gin.Context) {
	var req dto.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.assignments.BulkAssign(c.Request.Context(), c.Param("slug"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// ListGrouped godoc
// @Summary List course assignments grouped by piece and ordered by activity kind
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/assignments [get]
func (h *AssignmentHandler) ListGrouped(c *gin.Context) {
	grouped, err := h.assignments.ListGrouped(c.Request.Context(), c.Param("slug"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grouped)
}

// Get godoc
// @Summary Fetch a single assignment
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	detail, err := h.assignments.Get(c.Request.Context(), c.Param("slug"), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Update godoc
// @Summary Update assignment instrument or deadline
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Param id path string true "Assignment ID"
// @Param payload body dto.UpdateAssignmentRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/assignments/{id} [patch]
func (h *AssignmentHandler) Update(c *gin.Context) {
	var req dto.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.assignments.Update(c.Request.Context(), c.Param("slug"), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Activities godoc
// @Summary List activities assigned within the course
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/activities [get]
func (h *AssignmentHandler) Activities(c *gin.Context) {
	activities, err := h.assignments.ListCourseActivities(c.Request.Context(), c.Param("slug"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities)
}
