package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edukit-vn/tcm-api/internal/models"
	"github.com/edukit-vn/tcm-api/internal/service"
	"github.com/edukit-vn/tcm-api/pkg/response"
)

// ClassEnrollmentHandler exposes class-scoped enrollment reads: roster,
// capacity and available students.
type ClassEnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewClassEnrollmentHandler constructs ClassEnrollmentHandler.
func NewClassEnrollmentHandler(enrollments *service.EnrollmentService) *ClassEnrollmentHandler {
	return &ClassEnrollmentHandler{enrollments: enrollments}
}

// Roster godoc
// @Summary List enrollments of a class
// @Tags Enrollments
// @Produce json
// @Param classId path string true "Class ID"
// @Param search query string false "Search by student name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments/class/{classId} [get]
func (h *ClassEnrollmentHandler) Roster(c *gin.Context) {
	filter := enrollmentFilterFromQuery(c)
	enrollments, pagination, err := h.enrollments.ListByClass(c.Request.Context(), c.Param("classId"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Capacity godoc
// @Summary Check class capacity
// @Tags Enrollments
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/class/{classId}/capacity [get]
func (h *ClassEnrollmentHandler) Capacity(c *gin.Context) {
	capacity, err := h.enrollments.Capacity(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, capacity, nil)
}

// AvailableStudents godoc
// @Summary List students available for enrollment into a class
// @Tags Enrollments
// @Produce json
// @Param classId path string true "Class ID"
// @Param search query string false "Search by name or phone"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments/class/{classId}/available-students [get]
func (h *ClassEnrollmentHandler) AvailableStudents(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, pagination, err := h.enrollments.AvailableStudents(c.Request.Context(), c.Param("classId"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}
