package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

type slotReader interface {
	Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error)
}

// SlotRegistry answers who occupies a (teacher, date, time) slot and whether a
// class of a given type may join it.
type SlotRegistry struct {
	reader slotReader
	logger *zap.Logger
}

// NewSlotRegistry constructs a SlotRegistry.
func NewSlotRegistry(reader slotReader, logger *zap.Logger) *SlotRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotRegistry{reader: reader, logger: logger}
}

// Within returns a registry reading through the given reader, typically a
// locked transaction scope.
func (r *SlotRegistry) Within(reader slotReader) *SlotRegistry {
	return &SlotRegistry{reader: reader, logger: r.logger}
}

// Occupants returns every class in the slot. An empty slot yields an empty slice.
func (r *SlotRegistry) Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error) {
	occupants, err := r.reader.Occupants(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot occupants")
	}
	if occupants == nil {
		occupants = []models.ClassInstance{}
	}
	return occupants, nil
}

// CanAdmit loads the slot and checks whether a class of classType for student
// may be added. ignoreID excludes the class being moved on update.
func (r *SlotRegistry) CanAdmit(ctx context.Context, key models.SlotKey, classType models.ClassType, student, ignoreID string) (*models.SlotConflictError, error) {
	occupants, err := r.Occupants(ctx, key)
	if err != nil {
		return nil, err
	}
	return admit(occupants, classType, student, ignoreID), nil
}

// admit applies the exclusivity rules to a loaded occupant set and returns the
// conflict, if any.
//
// An exclusive class needs an empty slot. A Group class may join a slot whose
// occupants are all Group classes, but the same student cannot appear twice.
func admit(occupants []models.ClassInstance, classType models.ClassType, student, ignoreID string) *models.SlotConflictError {
	var others []models.ClassInstance
	for _, occ := range occupants {
		if ignoreID != "" && occ.ID == ignoreID {
			continue
		}
		others = append(others, occ)
	}
	if len(others) == 0 {
		return nil
	}

	if classType.Exclusive() {
		return newSlotConflict(others[0], fmt.Sprintf("teacher already has a %s class with %s at %s on %s", others[0].ClassType, others[0].StudentName, others[0].Time, others[0].ScheduleDate))
	}

	for _, occ := range others {
		if occ.ClassType.Exclusive() {
			return newSlotConflict(occ, fmt.Sprintf("slot is held by a %s class with %s and cannot be shared", occ.ClassType, occ.StudentName))
		}
	}
	for _, occ := range others {
		if strings.EqualFold(strings.TrimSpace(occ.StudentName), strings.TrimSpace(student)) {
			return newSlotConflict(occ, fmt.Sprintf("%s is already in this group class", occ.StudentName))
		}
	}
	return nil
}

func newSlotConflict(occupant models.ClassInstance, message string) *models.SlotConflictError {
	return &models.SlotConflictError{Message: message, ConflictingClass: models.ConflictFrom(occupant)}
}

// slotConflictError converts a domain conflict into the API error carrying the
// conflicting_class payload.
func slotConflictError(conflict *models.SlotConflictError) *appErrors.Error {
	err := appErrors.Wrap(conflict, appErrors.ErrSlotConflict.Code, appErrors.ErrSlotConflict.Status, conflict.Message)
	err.Details = map[string]interface{}{"conflicting_class": conflict.ConflictingClass}
	return err
}
