package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorclass-api/internal/dto"
	"github.com/noah-isme/tutorclass-api/internal/middleware"
	"github.com/noah-isme/tutorclass-api/internal/models"
	"github.com/noah-isme/tutorclass-api/internal/service"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
	"github.com/noah-isme/tutorclass-api/pkg/response"
)

type classService interface {
	List(ctx context.Context, filter models.ClassFilter, actor *models.JWTClaims) ([]models.ClassInstance, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ClassInstance, error)
	Occupants(ctx context.Context, key models.SlotKey) (*dto.SlotOccupantsResponse, error)
	Create(ctx context.Context, req dto.CreateClassRequest, actor *models.JWTClaims) (*models.GroupBatchResult, error)
	Update(ctx context.Context, id string, req dto.UpdateClassRequest, actor *models.JWTClaims) (*models.ClassInstance, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateClassStatusRequest, actor *models.JWTClaims) (*models.ClassInstance, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type classExporter interface {
	ExportClasses(ctx context.Context, filter models.ClassFilter, format string, actor *models.JWTClaims) (*service.ExportFile, error)
}

// ClassHandler exposes class scheduling endpoints.
type ClassHandler struct {
	service  classService
	exporter classExporter
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classService, exporter classExporter) *ClassHandler {
	return &ClassHandler{service: svc, exporter: exporter}
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param teacher_id query string false "Teacher ID"
// @Param student_name query string false "Student name"
// @Param class_type query string false "Regular, Premium or Group"
// @Param status query string false "Class status"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	filter, err := classFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	classes, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher && claims.UserID != class.TeacherID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Schedule a class
// @Description Group submissions create one class per student. A partially scheduled group answers 207.
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	var req dto.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	classType, _ := models.ParseClassType(req.ClassType)
	if classType.Exclusive() && len(result.Created) == 1 {
		response.Created(c, result.Created[0])
		return
	}
	middleware.SetBatchOutcome(c, len(result.Created), len(result.Failed))
	if result.Partial() {
		response.Partial(c, result, appErrors.ErrPartialBatch, middleware.ExtractMeta(c))
		return
	}
	response.JSON(c, http.StatusCreated, result, nil, middleware.ExtractMeta(c))
}

// Update godoc
// @Summary Update class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.UpdateClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req dto.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// UpdateStatus godoc
// @Summary Change class status
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.UpdateClassStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/status [patch]
func (h *ClassHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateClassStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Delete godoc
// @Summary Delete class
// @Tags Classes
// @Param id path string true "Class ID"
// @Success 204
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export classes
// @Tags Classes
// @Produce octet-stream
// @Param format query string false "csv or xlsx"
// @Success 200 {file} binary
// @Router /classes/export [get]
func (h *ClassHandler) Export(c *gin.Context) {
	filter, err := classFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.ExportClasses(c.Request.Context(), filter, c.DefaultQuery("format", "csv"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Occupants godoc
// @Summary List the classes in a slot
// @Tags Slots
// @Produce json
// @Param teacher_id query string true "Teacher ID"
// @Param date query string true "YYYY-MM-DD"
// @Param time query string true "HH:MM"
// @Success 200 {object} response.Envelope
// @Router /slots/occupants [get]
func (h *ClassHandler) Occupants(c *gin.Context) {
	key, err := slotKeyFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher && claims.UserID != key.TeacherID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	occupants, err := h.service.Occupants(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupants, nil)
}

func classFilterFromQuery(c *gin.Context) (models.ClassFilter, error) {
	filter := models.ClassFilter{
		TeacherID:   strings.TrimSpace(c.Query("teacher_id")),
		StudentName: strings.TrimSpace(c.Query("student_name")),
		SortOrder:   c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	if raw := c.Query("class_type"); raw != "" {
		classType, ok := models.ParseClassType(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid class_type")
		}
		filter.ClassType = classType
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseClassStatus(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrInvalidClassStatus, "invalid status filter")
		}
		filter.Status = status
	}
	for param, dest := range map[string]**models.ClassDate{"date_from": &filter.DateFrom, "date_to": &filter.DateTo} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		date, err := models.ParseClassDate(raw)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+param)
		}
		*dest = &date
	}
	return filter, nil
}

func slotKeyFromQuery(c *gin.Context) (models.SlotKey, error) {
	teacherID := strings.TrimSpace(c.Query("teacher_id"))
	if teacherID == "" {
		return models.SlotKey{}, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
	}
	date, err := models.ParseClassDate(c.Query("date"))
	if err != nil {
		return models.SlotKey{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	slotTime, err := models.ParseClassTime(c.Query("time"))
	if err != nil {
		return models.SlotKey{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time")
	}
	return models.SlotKey{TeacherID: teacherID, Date: date, Time: slotTime}, nil
}
