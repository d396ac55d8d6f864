package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

type consumptionCounter interface {
	CountConsumed(ctx context.Context, studentName string, classType models.ClassType) (int, error)
}

// QuotaLedger derives a student's remaining balance from purchased counts and
// the classes already in a consuming status.
type QuotaLedger struct {
	counter consumptionCounter
	logger  *zap.Logger
}

// NewQuotaLedger constructs a QuotaLedger.
func NewQuotaLedger(counter consumptionCounter, logger *zap.Logger) *QuotaLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaLedger{counter: counter, logger: logger}
}

// Within returns a ledger counting through the given counter.
func (l *QuotaLedger) Within(counter consumptionCounter) *QuotaLedger {
	return &QuotaLedger{counter: counter, logger: l.logger}
}

// Used counts the student's classes of classType in a consuming status.
func (l *QuotaLedger) Used(ctx context.Context, studentName string, classType models.ClassType) (int, error) {
	used, err := l.counter.CountConsumed(ctx, studentName, classType)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count used classes")
	}
	return used, nil
}

// Remaining returns purchased minus used. The result may be negative when a
// student has been over-scheduled.
func (l *QuotaLedger) Remaining(ctx context.Context, student models.Student, classType models.ClassType) (int, error) {
	used, err := l.Used(ctx, student.Name, classType)
	if err != nil {
		return 0, err
	}
	return student.Purchased(classType) - used, nil
}

// CanSchedule returns a *models.QuotaExceededError when the student has no
// remaining classes of the type.
func (l *QuotaLedger) CanSchedule(ctx context.Context, student models.Student, classType models.ClassType) error {
	used, err := l.Used(ctx, student.Name, classType)
	if err != nil {
		return err
	}
	purchased := student.Purchased(classType)
	if remaining := purchased - used; remaining <= 0 {
		l.logger.Info("quota exhausted",
			zap.String("student", student.Name),
			zap.String("class_type", string(classType)),
			zap.Int("purchased", purchased),
			zap.Int("used", used))
		return &models.QuotaExceededError{
			StudentName: student.Name,
			ClassType:   classType,
			Purchased:   purchased,
			Used:        used,
			Remaining:   remaining,
		}
	}
	return nil
}

// Balance computes the ledger entry for one class type from a known used count.
func Balance(student models.Student, classType models.ClassType, used int) models.ClassBalance {
	purchased := student.Purchased(classType)
	return models.ClassBalance{ClassType: classType, Purchased: purchased, Used: used, Remaining: purchased - used}
}

func quotaExceededError(q *models.QuotaExceededError) *appErrors.Error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrQuotaExceeded, q.Error()), q)
}
