package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorclass-api/internal/models"
)

type sinkFunc func(ctx context.Context, event models.ClassEvent) error

func (f sinkFunc) Publish(ctx context.Context, event models.ClassEvent) error { return f(ctx, event) }

func TestClassEventBusRunsSubscribersInOrder(t *testing.T) {
	bus := NewClassEventBus(nil)
	var calls []string
	bus.Subscribe("first", func(ctx context.Context, event models.ClassEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe("second", func(ctx context.Context, event models.ClassEvent) error {
		calls = append(calls, "second")
		assert.False(t, event.OccurredAt.IsZero())
		return nil
	})

	bus.Publish(context.Background(), models.ClassEvent{Type: models.EventClassCreated})
	assert.Equal(t, []string{"first", "second"}, calls)

	var nilBus *ClassEventBus
	assert.NotPanics(t, func() { nilBus.Publish(context.Background(), models.ClassEvent{}) })
}

func TestForwardClassEvents(t *testing.T) {
	var got []models.ClassEventType
	handler := ForwardClassEvents(sinkFunc(func(ctx context.Context, event models.ClassEvent) error {
		got = append(got, event.Type)
		return nil
	}))

	require.NoError(t, handler(context.Background(), models.ClassEvent{Type: models.EventClassDeleted}))
	assert.Equal(t, []models.ClassEventType{models.EventClassDeleted}, got)
}

func TestInvalidateStudentCaches(t *testing.T) {
	cache := newMemoryCache()
	svc := NewCacheService(cache, nil, 0, nil, true)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, cache.Set(ctx, usedCountCacheKey(name, models.ClassTypeRegular), 1, 0))
		require.NoError(t, cache.Set(ctx, studentBalanceCacheKey(name), 1, 0))
	}

	class := occupant(t, "c1", "Bob", models.ClassTypeRegular, "14:00")
	previous := occupant(t, "c1", "Alice", models.ClassTypeRegular, "14:00")
	handler := InvalidateStudentCaches(svc)
	require.NoError(t, handler(ctx, models.ClassEvent{Type: models.EventClassUpdated, Class: class, Previous: &previous}))

	assert.False(t, cache.has("classes:used:alice:regular"))
	assert.False(t, cache.has("students:balance:alice"))
	assert.False(t, cache.has("classes:used:bob:regular"))
	assert.False(t, cache.has("students:balance:bob"))
	assert.True(t, cache.has("classes:used:carol:regular"))
	assert.True(t, cache.has("students:balance:carol"))

	assert.NoError(t, InvalidateStudentCaches(nil)(ctx, models.ClassEvent{Class: class}))
}

func TestScheduleStatsRecalculation(t *testing.T) {
	queue := &recordingQueue{}
	handler := ScheduleStatsRecalculation(queue)
	ctx := context.Background()

	class := occupant(t, "c1", " Alice ", models.ClassTypeRegular, "14:00")
	class.Status = models.StatusCompleted

	require.NoError(t, handler(ctx, models.ClassEvent{Type: models.EventClassCreated, Class: class}))
	require.NoError(t, handler(ctx, models.ClassEvent{Type: models.EventClassUpdated, Class: class, PreviousStatus: models.StatusCompleted}))
	assert.Empty(t, queue.jobs)

	require.NoError(t, handler(ctx, models.ClassEvent{Type: models.EventClassStatusChanged, Class: class, PreviousStatus: models.StatusValidForCancellation}))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, StatsJobType, queue.jobs[0].Type)
	assert.Equal(t, "student:alice", queue.jobs[0].Key)
	assert.Equal(t, " Alice ", queue.jobs[0].Payload)

	absent := class
	absent.Status = models.StatusAbsentWithoutNotice
	require.NoError(t, handler(ctx, models.ClassEvent{Type: models.EventClassUpdated, Class: absent, PreviousStatus: models.StatusCompleted}))
	assert.Len(t, queue.jobs, 2)

	cancelled := class
	cancelled.Status = models.StatusCancelled
	require.NoError(t, handler(ctx, models.ClassEvent{Type: models.EventClassStatusChanged, Class: cancelled, PreviousStatus: models.StatusCompleted}))
	assert.Len(t, queue.jobs, 2)

	queue.err = errors.New("queue full")
	assert.Error(t, handler(ctx, models.ClassEvent{Type: models.EventClassStatusChanged, Class: class, PreviousStatus: models.StatusCancelled}))
}

func TestScheduleStatsRecalculationOnRepeatedStatusUpdate(t *testing.T) {
	queue := &recordingQueue{}
	handler := ScheduleStatsRecalculation(queue)

	class := occupant(t, "c1", "Alice", models.ClassTypeRegular, "14:00")
	class.Status = models.StatusCompleted
	require.NoError(t, handler(context.Background(), models.ClassEvent{Type: models.EventClassStatusChanged, Class: class, PreviousStatus: models.StatusCompleted}))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "student:alice", queue.jobs[0].Key)

	absent := class
	absent.Status = models.StatusAbsentWithoutNotice
	require.NoError(t, handler(context.Background(), models.ClassEvent{Type: models.EventClassStatusChanged, Class: absent, PreviousStatus: models.StatusAbsentWithoutNotice}))
	assert.Len(t, queue.jobs, 2)
}
