package rediscache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// ReportStore decorates a primary report store with the cache. Writes go
// through to the primary and refresh the cache; id reads are served from the
// cache when possible. List queries always hit the primary, since history
// windows are unbounded.
type ReportStore struct {
	primary repository.ReportStore
	cache   *Cache
	logger  *zap.Logger
}

// NewReportStore creates the caching decorator.
func NewReportStore(primary repository.ReportStore, cache *Cache, logger *zap.Logger) *ReportStore {
	return &ReportStore{primary: primary, cache: cache, logger: logger}
}

// SaveReport writes through to the primary store and refreshes the cache.
func (s *ReportStore) SaveReport(ctx context.Context, report *entity.ReconciliationReport) error {
	if err := s.primary.SaveReport(ctx, report); err != nil {
		return err
	}
	if err := s.cache.SetReport(ctx, report); err != nil {
		// The cache is best effort; the primary write already succeeded.
		s.logger.Warn("Failed to cache report", zap.String("report_id", report.ID), zap.Error(err))
	}
	return nil
}

// GetReport serves from the cache when possible, falling back to the primary.
func (s *ReportStore) GetReport(ctx context.Context, id string) (*entity.ReconciliationReport, error) {
	if cached, err := s.cache.GetReport(ctx, id); err == nil && cached != nil {
		return cached, nil
	}
	return s.primary.GetReport(ctx, id)
}

// ListReports always queries the primary store.
func (s *ReportStore) ListReports(ctx context.Context, entityType entity.EntityType, since time.Time) ([]entity.ReconciliationReport, error) {
	return s.primary.ListReports(ctx, entityType, since)
}
