package service

import (
	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

// ClassLifecycle holds the status rules for scheduled classes. Every status may
// be set from every other status; the guards here cover status validity and
// who may apply the change.
type ClassLifecycle struct{}

// Initial returns the status a new class starts in.
func (ClassLifecycle) Initial(requested models.ClassStatus) models.ClassStatus {
	if requested == "" {
		return models.StatusValidForCancellation
	}
	return requested
}

// Parse resolves a raw status into a known value.
func (ClassLifecycle) Parse(raw string) (models.ClassStatus, error) {
	status, ok := models.ParseClassStatus(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidClassStatus, "unknown class status: "+raw)
	}
	return status, nil
}

// CanTransition reports whether from may move to to.
func (ClassLifecycle) CanTransition(from, to models.ClassStatus) bool {
	return to.Valid()
}

// Authorize checks that actor may change the status of class. Admins may change
// any class, teachers only their own.
func (ClassLifecycle) Authorize(actor models.Actor, class models.ClassInstance) error {
	switch {
	case actor.Role.IsAdmin():
		return nil
	case actor.Role == models.RoleTeacher && actor.UserID != "" && actor.UserID == class.TeacherID:
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "cannot change the status of another teacher's class")
	}
}

// NeedsStatsRecalculation reports whether setting a class to status should
// refresh the student's aggregate stats. Setting it again counts.
func (ClassLifecycle) NeedsStatsRecalculation(status models.ClassStatus) bool {
	return status.TriggersStatsRecalculation()
}
