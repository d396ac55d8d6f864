package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
)

// Cached read models. Both are keyed by the lower-cased student name, which is
// what classes reference.
const (
	usedCountKeyPrefix = "classes:used:"
	balanceKeyPrefix   = "students:balance:"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the used-count and balance caches. A disabled or nil
// service behaves as a permanent miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was a hit. Redis failures
// count as misses for the caller but are still returned.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// ForgetStudents drops every cached used count and balance for the named
// students. Blank names are skipped.
func (s *CacheService) ForgetStudents(ctx context.Context, names ...string) error {
	if !s.Enabled() {
		return nil
	}
	var keys []string
	seen := map[string]struct{}{}
	for _, name := range names {
		n := normalisedName(name)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		keys = append(keys, studentCacheKeys(n)...)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.repo.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

// Purge drops all cached read models. It runs at startup so counts written by
// an older release are never served.
func (s *CacheService) Purge(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	for _, prefix := range []string{usedCountKeyPrefix, balanceKeyPrefix} {
		if err := s.repo.DeleteByPattern(ctx, prefix+"*"); err != nil {
			s.logger.Warn("cache purge failed", zap.String("prefix", prefix), zap.Error(err))
			return err
		}
	}
	return nil
}

func usedCountCacheKey(studentName string, classType models.ClassType) string {
	return fmt.Sprintf("%s%s:%s", usedCountKeyPrefix, normalisedName(studentName), strings.ToLower(string(classType)))
}

func studentBalanceCacheKey(studentName string) string {
	return balanceKeyPrefix + normalisedName(studentName)
}

func studentCacheKeys(studentName string) []string {
	keys := make([]string, 0, len(models.ClassTypes)+1)
	for _, t := range models.ClassTypes {
		keys = append(keys, usedCountCacheKey(studentName, t))
	}
	return append(keys, studentBalanceCacheKey(studentName))
}

func normalisedName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
