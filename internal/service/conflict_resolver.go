package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/models"
	"github.com/noah-isme/tutorclass-api/internal/repository"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

type slotLocker interface {
	WithSlotLock(ctx context.Context, key models.SlotKey, fn func(repository.SlotScope) error) error
}

type studentFinder interface {
	FindByName(ctx context.Context, name string) (*models.Student, error)
}

// AdmissionRequest is a validated create request headed for a single slot.
type AdmissionRequest struct {
	TeacherID    string
	StudentNames []string
	ClassType    models.ClassType
	Date         models.ClassDate
	Time         models.ClassTime
	Status       models.ClassStatus
	Notes        *string
}

// Slot returns the slot key targeted by the request.
func (r AdmissionRequest) Slot() models.SlotKey {
	return models.SlotKey{TeacherID: r.TeacherID, Date: r.Date, Time: r.Time}
}

// ConflictResolverConfig toggles optional admission rules.
type ConflictResolverConfig struct {
	// EnforceGroupQuota applies the purchased_class_group balance to Group members.
	EnforceGroupQuota bool
}

// ConflictResolver runs slot and quota checks for new and moved classes and
// persists the accepted ones while the slot lock is held.
type ConflictResolver struct {
	locker    slotLocker
	students  studentFinder
	registry  *SlotRegistry
	ledger    *QuotaLedger
	lifecycle ClassLifecycle
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ConflictResolverConfig
}

// NewConflictResolver constructs a ConflictResolver.
func NewConflictResolver(locker slotLocker, students studentFinder, registry *SlotRegistry, ledger *QuotaLedger, metrics *MetricsService, logger *zap.Logger, cfg ConflictResolverConfig) *ConflictResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewSlotRegistry(nil, logger)
	}
	if ledger == nil {
		ledger = NewQuotaLedger(nil, logger)
	}
	return &ConflictResolver{
		locker:   locker,
		students: students,
		registry: registry,
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Resolve admits the request. Regular and Premium requests either create one
// class or fail with SLOT_CONFLICT, QUOTA_EXCEEDED or NOT_FOUND. Group requests
// admit members one at a time; members that fail are reported in the result
// while the others stay persisted. When no member is admitted the first
// failure is returned as the error.
func (r *ConflictResolver) Resolve(ctx context.Context, req AdmissionRequest) (*models.GroupBatchResult, error) {
	names := uniqueNames(req.StudentNames)

	if req.ClassType == models.ClassTypeGroup {
		if len(names) == 0 {
			r.record(req.ClassType, ResolutionEmpty)
			return nil, appErrors.Clone(appErrors.ErrEmptySelection, "")
		}
		return r.resolveGroup(ctx, req, names)
	}

	switch len(names) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_name is required")
	case 1:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s classes take exactly one student", req.ClassType))
	}

	class, err := r.admitMember(ctx, req, names[0])
	if err != nil {
		return nil, err
	}
	return &models.GroupBatchResult{Created: []models.ClassInstance{*class}}, nil
}

func (r *ConflictResolver) resolveGroup(ctx context.Context, req AdmissionRequest, names []string) (*models.GroupBatchResult, error) {
	result := &models.GroupBatchResult{Created: []models.ClassInstance{}}
	var firstErr error
	for _, name := range names {
		class, err := r.admitMember(ctx, req, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.Failed = append(result.Failed, memberFailure(name, err))
			continue
		}
		result.Created = append(result.Created, *class)
	}

	if len(result.Created) == 0 {
		return nil, groupRejected(firstErr, result.Failed)
	}
	if result.Partial() {
		r.logger.Warn("group class partially scheduled",
			zap.String("slot", req.Slot().String()),
			zap.Int("created", len(result.Created)),
			zap.Int("failed", len(result.Failed)))
	}
	return result, nil
}

func (r *ConflictResolver) admitMember(ctx context.Context, req AdmissionRequest, name string) (*models.ClassInstance, error) {
	key := req.Slot()
	class := models.ClassInstance{
		TeacherID:    req.TeacherID,
		StudentName:  name,
		ClassType:    req.ClassType,
		ScheduleDate: req.Date,
		Time:         req.Time,
		Status:       r.lifecycle.Initial(req.Status),
		Notes:        req.Notes,
	}

	var student *models.Student
	if r.quotaApplies(req.ClassType) {
		found, err := r.findStudent(ctx, name)
		if err != nil {
			r.record(req.ClassType, ResolutionFailed)
			return nil, err
		}
		student = found
		class.StudentName = found.Name
	}

	start := time.Now()
	err := r.locker.WithSlotLock(ctx, key, func(scope repository.SlotScope) error {
		occupants, err := r.registry.Within(scope).Occupants(ctx, key)
		if err != nil {
			return err
		}
		if conflict := admit(occupants, class.ClassType, class.StudentName, ""); conflict != nil {
			return conflict
		}
		if student != nil {
			if err := r.ledger.Within(scope).CanSchedule(ctx, *student, class.ClassType); err != nil {
				return err
			}
		}
		return scope.Insert(ctx, &class)
	})
	r.metrics.ObserveDBQuery("slot_admission", time.Since(start))
	if err != nil {
		return nil, r.translate(ctx, key, class, err)
	}

	r.record(class.ClassType, ResolutionAccepted)
	return &class, nil
}

// Move persists updated under the lock of its slot. The exclusivity check runs
// only when the slot key, class type or student changed relative to existing.
// Quota is not re-checked on update.
func (r *ConflictResolver) Move(ctx context.Context, existing, updated *models.ClassInstance) error {
	recheck := !existing.Slot().Equal(updated.Slot()) ||
		existing.ClassType != updated.ClassType ||
		!strings.EqualFold(existing.StudentName, updated.StudentName)

	key := updated.Slot()
	err := r.locker.WithSlotLock(ctx, key, func(scope repository.SlotScope) error {
		if recheck {
			occupants, err := r.registry.Within(scope).Occupants(ctx, key)
			if err != nil {
				return err
			}
			if conflict := admit(occupants, updated.ClassType, updated.StudentName, updated.ID); conflict != nil {
				return conflict
			}
		}
		return scope.Update(ctx, updated)
	})
	if err != nil {
		return r.translate(ctx, key, *updated, err)
	}
	if recheck {
		r.record(updated.ClassType, ResolutionAccepted)
	}
	return nil
}

func (r *ConflictResolver) quotaApplies(classType models.ClassType) bool {
	return classType.Exclusive() || r.cfg.EnforceGroupQuota
}

func (r *ConflictResolver) findStudent(ctx context.Context, name string) (*models.Student, error) {
	if r.students == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "student directory unavailable")
	}
	student, err := r.students.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// translate maps errors raised inside the slot lock onto API errors.
func (r *ConflictResolver) translate(ctx context.Context, key models.SlotKey, class models.ClassInstance, err error) error {
	var conflict *models.SlotConflictError
	var quota *models.QuotaExceededError
	switch {
	case errors.As(err, &conflict):
		r.record(class.ClassType, ResolutionSlotConflict)
		r.logger.Info("slot conflict",
			zap.String("slot", key.String()),
			zap.String("student", class.StudentName),
			zap.String("occupant", conflict.ConflictingClass.StudentName))
		return slotConflictError(conflict)
	case errors.Is(err, repository.ErrSlotTaken):
		r.record(class.ClassType, ResolutionSlotConflict)
		r.logger.Info("slot taken by concurrent write", zap.String("slot", key.String()), zap.String("student", class.StudentName))
		return slotConflictError(r.conflictAfterRace(ctx, key, class))
	case errors.As(err, &quota):
		r.record(class.ClassType, ResolutionQuotaExceeded)
		return quotaExceededError(quota)
	}

	r.record(class.ClassType, ResolutionFailed)
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	r.logger.Error("failed to persist class", zap.String("slot", key.String()), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule class")
}

// conflictAfterRace describes the occupant that won a unique index race. The
// winner is read outside the lock so it may already be gone.
func (r *ConflictResolver) conflictAfterRace(ctx context.Context, key models.SlotKey, class models.ClassInstance) *models.SlotConflictError {
	if r.registry.reader == nil {
		return &models.SlotConflictError{
			Message:          "slot was taken by a concurrent request",
			ConflictingClass: models.ConflictingClass{Time: key.Time, Schedule: key.Date},
		}
	}
	occupants, err := r.registry.Occupants(ctx, key)
	if err == nil {
		if conflict := admit(occupants, class.ClassType, class.StudentName, class.ID); conflict != nil {
			return conflict
		}
		if len(occupants) > 0 {
			return newSlotConflict(occupants[0], "slot was taken by a concurrent request")
		}
	}
	return &models.SlotConflictError{
		Message:          "slot was taken by a concurrent request",
		ConflictingClass: models.ConflictingClass{Time: key.Time, Schedule: key.Date},
	}
}

func (r *ConflictResolver) record(classType models.ClassType, outcome string) {
	r.metrics.RecordResolution(classType, outcome)
}

// groupRejected keeps the code and status of the first failure and attaches
// every member failure so no refusal is lost.
func groupRejected(first error, failed []models.GroupMemberFailure) error {
	appErr := appErrors.FromError(first)
	details := map[string]interface{}{}
	switch d := appErr.Details.(type) {
	case nil:
	case map[string]interface{}:
		for k, v := range d {
			details[k] = v
		}
	default:
		details["cause"] = d
	}
	details["failed"] = failed
	return appErrors.WithDetails(appErr, details)
}

func memberFailure(name string, err error) models.GroupMemberFailure {
	appErr := appErrors.FromError(err)
	failure := models.GroupMemberFailure{StudentName: name, Code: appErr.Code, Message: appErr.Message}
	var conflict *models.SlotConflictError
	if errors.As(err, &conflict) {
		occupant := conflict.ConflictingClass
		failure.ConflictingClass = &occupant
	}
	return failure
}

// uniqueNames trims names, drops blanks and removes case-insensitive duplicates
// keeping the first spelling.
func uniqueNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}
