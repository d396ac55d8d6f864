package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorclass-api/internal/dto"
	"github.com/noah-isme/tutorclass-api/internal/middleware"
	"github.com/noah-isme/tutorclass-api/internal/models"
	"github.com/noah-isme/tutorclass-api/internal/service"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

type classServiceMock struct {
	createResp *models.GroupBatchResult
	createErr  error
	lastCreate dto.CreateClassRequest
	class      *models.ClassInstance
	err        error
	lastFilter models.ClassFilter
	lastKey    models.SlotKey
	lastStatus dto.UpdateClassStatusRequest
	deleted    string
}

func (m *classServiceMock) List(ctx context.Context, filter models.ClassFilter, actor *models.JWTClaims) ([]models.ClassInstance, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.ClassInstance{}, &models.Pagination{Page: 1, PageSize: 50}, m.err
}

func (m *classServiceMock) Get(ctx context.Context, id string) (*models.ClassInstance, error) {
	return m.class, m.err
}

func (m *classServiceMock) Occupants(ctx context.Context, key models.SlotKey) (*dto.SlotOccupantsResponse, error) {
	m.lastKey = key
	return &dto.SlotOccupantsResponse{Slot: key, Occupants: []models.ClassInstance{}}, m.err
}

func (m *classServiceMock) Create(ctx context.Context, req dto.CreateClassRequest, actor *models.JWTClaims) (*models.GroupBatchResult, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *classServiceMock) Update(ctx context.Context, id string, req dto.UpdateClassRequest, actor *models.JWTClaims) (*models.ClassInstance, error) {
	return m.class, m.err
}

func (m *classServiceMock) UpdateStatus(ctx context.Context, id string, req dto.UpdateClassStatusRequest, actor *models.JWTClaims) (*models.ClassInstance, error) {
	m.lastStatus = req
	return m.class, m.err
}

func (m *classServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	m.deleted = id
	return m.err
}

type exporterMock struct {
	format string
	file   *service.ExportFile
	err    error
}

func (m *exporterMock) ExportClasses(ctx context.Context, filter models.ClassFilter, format string, actor *models.JWTClaims) (*service.ExportFile, error) {
	m.format = format
	return m.file, m.err
}

var adminClaims = &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}

func newContext(method, target string, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestClassHandlerCreateExclusive(t *testing.T) {
	svc := &classServiceMock{createResp: &models.GroupBatchResult{Created: []models.ClassInstance{{ID: "c1", StudentName: "Alice"}}}}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodPost, "/classes", `{"teacher_id":"T1","student_name":"Alice","class_type":"Regular","schedule":"2024-01-10","time":"14:00"}`, adminClaims)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Alice", svc.lastCreate.StudentName)
	var class models.ClassInstance
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &class))
	assert.Equal(t, "c1", class.ID)
}

func TestClassHandlerCreatePartialGroup(t *testing.T) {
	svc := &classServiceMock{createResp: &models.GroupBatchResult{
		Created: []models.ClassInstance{{ID: "c1", StudentName: "Alice"}},
		Failed:  []models.GroupMemberFailure{{StudentName: "Bob", Code: appErrors.ErrSlotConflict.Code}},
	}}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodPost, "/classes", `{"teacher_id":"T1","student_names":["Alice","Bob"],"class_type":"Group","schedule":"2024-01-10","time":"15:00"}`, adminClaims)
	handler.Create(c)

	require.Equal(t, http.StatusMultiStatus, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrPartialBatch.Code, env.Error.Code)
	var result models.GroupBatchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Created, 1)
	assert.Equal(t, "Bob", result.Failed[0].StudentName)
	assert.Equal(t, float64(1), env.Meta["created_count"])
	assert.Equal(t, float64(1), env.Meta["failed_count"])
}

func TestClassHandlerCreateConflict(t *testing.T) {
	conflict := &models.SlotConflictError{Message: "slot taken", ConflictingClass: models.ConflictingClass{StudentName: "Alice", ClassType: models.ClassTypeRegular, Time: "14:00"}}
	appErr := appErrors.Wrap(conflict, appErrors.ErrSlotConflict.Code, appErrors.ErrSlotConflict.Status, conflict.Message)
	appErr.Details = map[string]interface{}{"conflicting_class": conflict.ConflictingClass}
	handler := NewClassHandler(&classServiceMock{createErr: appErr}, nil)

	c, w := newContext(http.MethodPost, "/classes", `{"teacher_id":"T1","student_name":"Bob","class_type":"Premium","schedule":"2024-01-10","time":"14:00"}`, adminClaims)
	handler.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SLOT_CONFLICT", env.Error.Code)
	occupant, ok := env.Error.Details["conflicting_class"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Alice", occupant["student_name"])
}

func TestClassHandlerCreateInvalidBody(t *testing.T) {
	svc := &classServiceMock{}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodPost, "/classes", `{"teacher_id":`, adminClaims)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastCreate.TeacherID)
}

func TestClassHandlerListParsesFilters(t *testing.T) {
	svc := &classServiceMock{}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodGet, "/classes?teacher_id=T1&class_type=group&status=completed&date_from=2024-01-01&page=2&limit=10", "", adminClaims)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T1", svc.lastFilter.TeacherID)
	assert.Equal(t, models.ClassTypeGroup, svc.lastFilter.ClassType)
	assert.Equal(t, models.StatusCompleted, svc.lastFilter.Status)
	require.NotNil(t, svc.lastFilter.DateFrom)
	assert.Equal(t, "2024-01-01", svc.lastFilter.DateFrom.String())
	assert.Nil(t, svc.lastFilter.DateTo)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 10, svc.lastFilter.PageSize)

	c, w = newContext(http.MethodGet, "/classes?date_to=yesterday", "", adminClaims)
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassHandlerGetHidesOtherTeachersClasses(t *testing.T) {
	handler := NewClassHandler(&classServiceMock{class: &models.ClassInstance{ID: "c1", TeacherID: "T2"}}, nil)

	c, w := newContext(http.MethodGet, "/classes/c1", "", &models.JWTClaims{UserID: "T1", Role: models.RoleTeacher})
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Get(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext(http.MethodGet, "/classes/c1", "", adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassHandlerUpdateStatus(t *testing.T) {
	svc := &classServiceMock{class: &models.ClassInstance{ID: "c1", Status: models.StatusCompleted}}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodPatch, "/classes/c1/status", `{"status":"Completed"}`, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Completed", svc.lastStatus.Status)
}

func TestClassHandlerDelete(t *testing.T) {
	svc := &classServiceMock{}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodDelete, "/classes/c1", "", adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Delete(c)

	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "c1", svc.deleted)
}

func TestClassHandlerOccupants(t *testing.T) {
	svc := &classServiceMock{}
	handler := NewClassHandler(svc, nil)

	c, w := newContext(http.MethodGet, "/slots/occupants?teacher_id=T1&date=2024-01-10&time=15:00", "", adminClaims)
	handler.Occupants(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T1|2024-01-10|15:00", svc.lastKey.String())

	c, w = newContext(http.MethodGet, "/slots/occupants?teacher_id=T1&date=2024-01-10&time=15:10", "", adminClaims)
	handler.Occupants(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassHandlerExport(t *testing.T) {
	exporter := &exporterMock{file: &service.ExportFile{Filename: "classes.xlsx", ContentType: "application/test", Data: []byte("xlsx")}}
	handler := NewClassHandler(&classServiceMock{}, exporter)

	c, w := newContext(http.MethodGet, "/classes/export?format=xlsx", "", adminClaims)
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx", exporter.format)
	assert.Equal(t, `attachment; filename="classes.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "xlsx", w.Body.String())
}
