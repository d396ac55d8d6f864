package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/dto"
	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
	"github.com/noah-isme/tutorclass-api/pkg/jobs"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByName(ctx context.Context, name string) (*models.Student, error)
}

type consumptionSummary interface {
	CountConsumedByType(ctx context.Context, studentName string) (map[models.ClassType]int, error)
}

// StudentServiceConfig sets cache lifetimes for derived student data.
type StudentServiceConfig struct {
	UsedCountTTL time.Duration
	BalanceTTL   time.Duration
}

// StudentService serves the student directory, used counts and balances.
type StudentService struct {
	repo    studentRepository
	ledger  *QuotaLedger
	summary consumptionSummary
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     StudentServiceConfig
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, ledger *QuotaLedger, summary consumptionSummary, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg StudentServiceConfig) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UsedCountTTL <= 0 {
		cfg.UsedCountTTL = 5 * time.Minute
	}
	if cfg.BalanceTTL <= 0 {
		cfg.BalanceTTL = 30 * time.Minute
	}
	return &StudentService{repo: repo, ledger: ledger, summary: summary, cache: cache, metrics: metrics, logger: logger, cfg: cfg}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// UsedCount returns how many classes of classType the student has consumed.
// The bool reports whether the value came from cache.
func (s *StudentService) UsedCount(ctx context.Context, id string, classType models.ClassType) (*dto.UsedCountResponse, bool, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	resp := &dto.UsedCountResponse{StudentID: student.ID, StudentName: student.Name, ClassType: classType}

	key := usedCountCacheKey(student.Name, classType)
	if hit, err := s.cache.Get(ctx, key, &resp.Used); err == nil && hit {
		return resp, true, nil
	}

	used, err := s.ledger.Used(ctx, student.Name, classType)
	if err != nil {
		return nil, false, err
	}
	resp.Used = used
	_ = s.cache.Set(ctx, key, used, s.cfg.UsedCountTTL)
	return resp, false, nil
}

// Balance returns purchased, used and remaining counts for every class type.
func (s *StudentService) Balance(ctx context.Context, id string) (*models.StudentBalance, bool, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	var cached models.StudentBalance
	if hit, err := s.cache.Get(ctx, studentBalanceCacheKey(student.Name), &cached); err == nil && hit {
		return &cached, true, nil
	}

	balance, err := s.computeBalance(ctx, *student)
	if err != nil {
		return nil, false, err
	}
	return balance, false, nil
}

// RecalculateStats recomputes and caches a student's balance, looked up by name.
func (s *StudentService) RecalculateStats(ctx context.Context, studentName string) (*models.StudentBalance, error) {
	student, err := s.repo.FindByName(ctx, studentName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", studentName))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.computeBalance(ctx, *student)
}

// HandleStatsJob is the jobs.Handler for stats recalculation jobs.
func (s *StudentService) HandleStatsJob(ctx context.Context, job jobs.Job) error {
	name, ok := job.Payload.(string)
	if !ok || name == "" {
		return fmt.Errorf("stats job %s: missing student name", job.ID)
	}
	balance, err := s.RecalculateStats(ctx, name)
	s.metrics.RecordStatsJob(err)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			s.logger.Warn("stats recalculation skipped", zap.String("student", name), zap.Error(err))
			return nil
		}
		return err
	}
	s.logger.Info("student stats recalculated", zap.String("student", balance.StudentName), zap.Int("attempt", job.Attempt))
	return nil
}

func (s *StudentService) computeBalance(ctx context.Context, student models.Student) (*models.StudentBalance, error) {
	used, err := s.summary.CountConsumedByType(ctx, student.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute student balance")
	}
	balance := &models.StudentBalance{
		StudentID:   student.ID,
		StudentName: student.Name,
		Balances:    make([]models.ClassBalance, 0, len(models.ClassTypes)),
		ComputedAt:  time.Now().UTC(),
	}
	for _, t := range models.ClassTypes {
		balance.Balances = append(balance.Balances, Balance(student, t, used[t]))
	}
	_ = s.cache.Set(ctx, studentBalanceCacheKey(student.Name), balance, s.cfg.BalanceTTL)
	return balance, nil
}
