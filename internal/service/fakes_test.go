package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/tutorclass-api/internal/models"
	"github.com/noah-isme/tutorclass-api/internal/repository"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
	"github.com/noah-isme/tutorclass-api/pkg/jobs"
)

// memoryClassStore is an in-memory stand-in for repository.ClassRepository.
// WithSlotLock serialises all callers on one mutex.
type memoryClassStore struct {
	lock    sync.Mutex
	mu      sync.Mutex
	classes map[string]models.ClassInstance
	order   []string
	seq     int

	// insertErr lets a test fail specific inserts, e.g. to simulate a
	// concurrent writer winning the unique index.
	insertErr func(class models.ClassInstance) error
}

func newMemoryClassStore(seed ...models.ClassInstance) *memoryClassStore {
	s := &memoryClassStore{classes: map[string]models.ClassInstance{}}
	for _, c := range seed {
		c := c
		_ = s.insert(&c)
	}
	return s
}

func (s *memoryClassStore) WithSlotLock(ctx context.Context, key models.SlotKey, fn func(repository.SlotScope) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return fn(memoryScope{store: s})
}

func (s *memoryClassStore) Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClassInstance
	for _, id := range s.order {
		c, ok := s.classes[id]
		if ok && c.Slot().Equal(key) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryClassStore) CountConsumed(ctx context.Context, studentName string, classType models.ClassType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := 0
	for _, c := range s.classes {
		if strings.EqualFold(c.StudentName, studentName) && c.ClassType == classType && c.Status.Consumes() {
			used++
		}
	}
	return used, nil
}

func (s *memoryClassStore) CountConsumedByType(ctx context.Context, studentName string) (map[models.ClassType]int, error) {
	out := map[models.ClassType]int{}
	for _, t := range models.ClassTypes {
		n, _ := s.CountConsumed(ctx, studentName, t)
		if n > 0 {
			out[t] = n
		}
	}
	return out, nil
}

func (s *memoryClassStore) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassInstance, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.ClassInstance
	for _, id := range s.order {
		c, ok := s.classes[id]
		if !ok {
			continue
		}
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentName != "" && !strings.EqualFold(c.StudentName, filter.StudentName) {
			continue
		}
		all = append(all, c)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].ScheduleDate.Equal(all[j].ScheduleDate) {
			return all[i].ScheduleDate.Before(all[j].ScheduleDate.Time)
		}
		return all[i].Time < all[j].Time
	})
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(all) {
		return []models.ClassInstance{}, len(all), nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *memoryClassStore) FindByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *memoryClassStore) UpdateStatus(ctx context.Context, id string, status models.ClassStatus) (*models.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c.Status = status
	s.classes[id] = c
	return &c, nil
}

func (s *memoryClassStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.classes, id)
	return nil
}

func (s *memoryClassStore) all() []models.ClassInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ClassInstance, 0, len(s.classes))
	for _, id := range s.order {
		if c, ok := s.classes[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *memoryClassStore) insert(class *models.ClassInstance) error {
	if s.insertErr != nil {
		if err := s.insertErr(*class); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if class.ID == "" {
		s.seq++
		class.ID = fmt.Sprintf("class-%d", s.seq)
	}
	s.classes[class.ID] = *class
	s.order = append(s.order, class.ID)
	return nil
}

type memoryScope struct {
	store *memoryClassStore
}

func (m memoryScope) Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error) {
	return m.store.Occupants(ctx, key)
}

func (m memoryScope) CountConsumed(ctx context.Context, studentName string, classType models.ClassType) (int, error) {
	return m.store.CountConsumed(ctx, studentName, classType)
}

func (m memoryScope) Insert(ctx context.Context, class *models.ClassInstance) error {
	return m.store.insert(class)
}

func (m memoryScope) Update(ctx context.Context, class *models.ClassInstance) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	m.store.classes[class.ID] = *class
	return nil
}

type memoryStudents struct {
	students []models.Student
	err      error
}

func (m *memoryStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.students, len(m.students), nil
}

func (m *memoryStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	for _, s := range m.students {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryStudents) FindByName(ctx context.Context, name string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.students {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			s := s
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

type memoryTeachers struct {
	teachers []models.Teacher
}

func (m *memoryTeachers) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	return m.teachers, len(m.teachers), nil
}

func (m *memoryTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	for _, t := range m.teachers {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, sql.ErrNoRows
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.ClassEvent
}

func (r *recordingEvents) Publish(ctx context.Context, event models.ClassEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []models.ClassEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ClassEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.values {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.values, k)
		}
	}
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}
