package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/dto"
	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

type classStore interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassInstance, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassInstance, error)
	UpdateStatus(ctx context.Context, id string, status models.ClassStatus) (*models.ClassInstance, error)
	Delete(ctx context.Context, id string) error
}

type teacherGate interface {
	RequireActive(ctx context.Context, id string) (*models.Teacher, error)
}

type classEventPublisher interface {
	Publish(ctx context.Context, event models.ClassEvent)
}

// ClassService coordinates class scheduling use-cases.
type ClassService struct {
	store     classStore
	resolver  *ConflictResolver
	registry  *SlotRegistry
	teachers  teacherGate
	events    classEventPublisher
	lifecycle ClassLifecycle
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService instantiates ClassService.
func NewClassService(store classStore, resolver *ConflictResolver, registry *SlotRegistry, teachers teacherGate, events classEventPublisher, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		store:     store,
		resolver:  resolver,
		registry:  registry,
		teachers:  teachers,
		events:    events,
		validator: validate,
		logger:    logger,
	}
}

// List returns classes with pagination metadata. Teachers only see their own classes.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter, actor *models.JWTClaims) ([]models.ClassInstance, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleTeacher {
		filter.TeacherID = actor.UserID
	}
	classes, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if classes == nil {
		classes = []models.ClassInstance{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a class by id.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassInstance, error) {
	class, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Occupants lists the classes in a slot.
func (s *ClassService) Occupants(ctx context.Context, key models.SlotKey) (*dto.SlotOccupantsResponse, error) {
	occupants, err := s.registry.Occupants(ctx, key)
	if err != nil {
		return nil, err
	}
	shared := len(occupants) > 0
	for _, occ := range occupants {
		if occ.ClassType.Exclusive() {
			shared = false
			break
		}
	}
	return &dto.SlotOccupantsResponse{Slot: key, Occupants: occupants, Shared: shared}, nil
}

// Create schedules one class, or one class per student for Group submissions.
// A Group result may be partial; callers inspect result.Failed.
func (s *ClassService) Create(ctx context.Context, req dto.CreateClassRequest, actor *models.JWTClaims) (*models.GroupBatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	admission, err := s.admissionFrom(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.teachers.RequireActive(ctx, admission.TeacherID); err != nil {
		return nil, err
	}

	result, err := s.resolver.Resolve(ctx, admission)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, class := range result.Created {
		s.events.Publish(ctx, models.ClassEvent{Type: models.EventClassCreated, Class: class, Actor: actor.Actor(), OccurredAt: now})
	}
	return result, nil
}

// Update edits a class. The slot check is repeated only when the slot, class
// type or student changes.
func (s *ClassService) Update(ctx context.Context, id string, req dto.UpdateClassRequest, actor *models.JWTClaims) (*models.ClassInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.TeacherID = strings.TrimSpace(req.TeacherID)
	updated.StudentName = strings.TrimSpace(req.StudentName)
	updated.ClassType, _ = models.ParseClassType(req.ClassType)
	updated.ScheduleDate, _ = models.ParseClassDate(req.Schedule)
	updated.Time, _ = models.ParseClassTime(req.Time)
	updated.Notes = req.Notes
	if updated.Status, err = s.lifecycle.Parse(req.Status); err != nil {
		return nil, err
	}
	if !s.lifecycle.CanTransition(existing.Status, updated.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidClassStatus, "status change not allowed")
	}

	if updated.TeacherID != existing.TeacherID {
		if _, err := s.teachers.RequireActive(ctx, updated.TeacherID); err != nil {
			return nil, err
		}
	}

	if err := s.resolver.Move(ctx, existing, &updated); err != nil {
		return nil, err
	}

	previous := *existing
	s.events.Publish(ctx, models.ClassEvent{
		Type:           models.EventClassUpdated,
		Class:          updated,
		Previous:       &previous,
		PreviousStatus: existing.Status,
		Actor:          actor.Actor(),
		OccurredAt:     time.Now().UTC(),
	})
	return &updated, nil
}

// UpdateStatus sets a new status. Teachers may only update their own classes.
func (s *ClassService) UpdateStatus(ctx context.Context, id string, req dto.UpdateClassStatusRequest, actor *models.JWTClaims) (*models.ClassInstance, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	status, err := s.lifecycle.Parse(req.Status)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Authorize(actor.Actor(), *existing); err != nil {
		return nil, err
	}
	if !s.lifecycle.CanTransition(existing.Status, status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidClassStatus, "status change not allowed")
	}

	updated, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class status")
	}

	s.logger.Info("class status changed",
		zap.String("class_id", id),
		zap.String("from", string(existing.Status)),
		zap.String("to", string(status)),
		zap.String("actor", actor.UserID))
	s.events.Publish(ctx, models.ClassEvent{
		Type:           models.EventClassStatusChanged,
		Class:          *updated,
		PreviousStatus: existing.Status,
		Actor:          actor.Actor(),
		OccurredAt:     time.Now().UTC(),
	})
	return updated, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.events.Publish(ctx, models.ClassEvent{
		Type:           models.EventClassDeleted,
		Class:          *existing,
		PreviousStatus: existing.Status,
		Actor:          actor.Actor(),
		OccurredAt:     time.Now().UTC(),
	})
	return nil
}

func (s *ClassService) admissionFrom(req dto.CreateClassRequest) (AdmissionRequest, error) {
	classType, _ := models.ParseClassType(req.ClassType)
	date, _ := models.ParseClassDate(req.Schedule)
	slotTime, _ := models.ParseClassTime(req.Time)

	var status models.ClassStatus
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := s.lifecycle.Parse(req.Status)
		if err != nil {
			return AdmissionRequest{}, err
		}
		status = parsed
	}

	return AdmissionRequest{
		TeacherID:    strings.TrimSpace(req.TeacherID),
		StudentNames: req.Names(),
		ClassType:    classType,
		Date:         date,
		Time:         slotTime,
		Status:       s.lifecycle.Initial(status),
		Notes:        req.Notes,
	}, nil
}
