package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorclass-api/internal/dto"
	"github.com/noah-isme/tutorclass-api/internal/middleware"
	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
	"github.com/noah-isme/tutorclass-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	UsedCount(ctx context.Context, id string, classType models.ClassType) (*dto.UsedCountResponse, bool, error)
	Balance(ctx context.Context, id string) (*models.StudentBalance, bool, error)
}

// StudentHandler exposes the student directory and class balances.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler constructs a student handler.
func NewStudentHandler(svc studentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	students, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UsedCount godoc
// @Summary Count consumed classes of one type
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param class_type query string true "Regular, Premium or Group"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/used-count [get]
func (h *StudentHandler) UsedCount(c *gin.Context) {
	classType, ok := models.ParseClassType(c.Query("class_type"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class_type must be Regular, Premium or Group"))
		return
	}
	used, cached, err := h.service.UsedCount(c.Request.Context(), c.Param("id"), classType)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, used, nil, middleware.ExtractMeta(c))
}

// Balance godoc
// @Summary Purchased, used and remaining classes per type
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/balance [get]
func (h *StudentHandler) Balance(c *gin.Context) {
	balance, cached, err := h.service.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, balance, nil, middleware.ExtractMeta(c))
}
