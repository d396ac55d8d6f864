package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/models"
	"github.com/noah-isme/tutorclass-api/pkg/jobs"
)

// StatsJobType identifies student stats recalculation jobs.
const StatsJobType = "student_stats"

// ClassEventHandler reacts to a committed class change.
type ClassEventHandler func(ctx context.Context, event models.ClassEvent) error

type classEventSubscriber struct {
	name    string
	handler ClassEventHandler
}

// ClassEventBus fans class events out to in-process subscribers. Subscribers
// run synchronously in registration order after the change is committed; their
// failures are logged and never undo the change.
type ClassEventBus struct {
	mu          sync.RWMutex
	subscribers []classEventSubscriber
	logger      *zap.Logger
}

// NewClassEventBus constructs an empty bus.
func NewClassEventBus(logger *zap.Logger) *ClassEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassEventBus{logger: logger}
}

// Subscribe registers a named handler.
func (b *ClassEventBus) Subscribe(name string, handler ClassEventHandler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, classEventSubscriber{name: name, handler: handler})
}

// Publish delivers the event to every subscriber.
func (b *ClassEventBus) Publish(ctx context.Context, event models.ClassEvent) {
	if b == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	subscribers := make([]classEventSubscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subscribers {
		if err := sub.handler(ctx, event); err != nil {
			b.logger.Warn("class event subscriber failed",
				zap.String("subscriber", sub.name),
				zap.String("event", string(event.Type)),
				zap.String("class_id", event.Class.ID),
				zap.Error(err))
		}
	}
}

type classEventSink interface {
	Publish(ctx context.Context, event models.ClassEvent) error
}

// ForwardClassEvents relays events to an external sink such as Redis pub/sub.
func ForwardClassEvents(sink classEventSink) ClassEventHandler {
	return func(ctx context.Context, event models.ClassEvent) error {
		return sink.Publish(ctx, event)
	}
}

// InvalidateStudentCaches drops cached used counts and balances for every
// student touched by the event.
func InvalidateStudentCaches(cache *CacheService) ClassEventHandler {
	return func(ctx context.Context, event models.ClassEvent) error {
		names := []string{event.Class.StudentName}
		if event.Previous != nil {
			names = append(names, event.Previous.StudentName)
		}
		return cache.ForgetStudents(ctx, names...)
	}
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ScheduleStatsRecalculation queues a stats refresh for the student when a
// status update sets Completed or AbsentWithoutNotice. Full edits only count
// when they change the status.
func ScheduleStatsRecalculation(queue jobEnqueuer) ClassEventHandler {
	var lifecycle ClassLifecycle
	return func(ctx context.Context, event models.ClassEvent) error {
		switch event.Type {
		case models.EventClassStatusChanged:
		case models.EventClassUpdated:
			if event.PreviousStatus == event.Class.Status {
				return nil
			}
		default:
			return nil
		}
		if !lifecycle.NeedsStatsRecalculation(event.Class.Status) {
			return nil
		}
		name := event.Class.StudentName
		return queue.Enqueue(jobs.Job{
			ID:      fmt.Sprintf("%s:%s:%d", StatsJobType, event.Class.ID, event.OccurredAt.UnixNano()),
			Type:    StatsJobType,
			Key:     "student:" + normalisedName(name),
			Payload: name,
		})
	}
}
