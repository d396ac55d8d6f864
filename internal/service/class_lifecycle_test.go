package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

func TestLifecycleAllowsEveryTransition(t *testing.T) {
	var lc ClassLifecycle
	for _, from := range models.ClassStatuses {
		for _, to := range models.ClassStatuses {
			assert.True(t, lc.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, lc.CanTransition(models.StatusCompleted, "Rescheduled"))
}

func TestLifecycleInitialAndParse(t *testing.T) {
	var lc ClassLifecycle
	assert.Equal(t, models.StatusValidForCancellation, lc.Initial(""))
	assert.Equal(t, models.StatusFreeClassNotConsumed, lc.Initial(models.StatusFreeClassNotConsumed))

	status, err := lc.Parse("AbsentWithoutNotice")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusAbsentWithoutNotice, status)

	_, err = lc.Parse("Rescheduled")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidClassStatus.Code))
}

func TestLifecycleAuthorize(t *testing.T) {
	var lc ClassLifecycle
	class := models.ClassInstance{TeacherID: "T1"}

	assert.NoError(t, lc.Authorize(models.Actor{UserID: "admin", Role: models.RoleAdmin}, class))
	assert.NoError(t, lc.Authorize(models.Actor{UserID: "root", Role: models.RoleSuperAdmin}, class))
	assert.NoError(t, lc.Authorize(models.Actor{UserID: "T1", Role: models.RoleTeacher}, class))

	err := lc.Authorize(models.Actor{UserID: "T2", Role: models.RoleTeacher}, class)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestLifecycleStatsTrigger(t *testing.T) {
	var lc ClassLifecycle
	assert.True(t, lc.NeedsStatsRecalculation(models.StatusCompleted))
	assert.True(t, lc.NeedsStatsRecalculation(models.StatusAbsentWithoutNotice))
	assert.False(t, lc.NeedsStatsRecalculation(models.StatusCancelled))
	assert.False(t, lc.NeedsStatsRecalculation(models.StatusValidForCancellation))
}
