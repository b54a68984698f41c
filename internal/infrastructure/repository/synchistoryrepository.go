package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/persistence/models"
)

const defaultHistoryLimit = 50

// SyncHistoryFilter narrows ListRecent. Empty fields match everything.
type SyncHistoryFilter struct {
	ProductID  string
	Operation  string
	FailedOnly bool
	Limit      int
}

type SyncHistoryRepository struct {
	db     *gorm.DB
	mapper mappers.SyncHistoryMapper
}

func NewSyncHistoryRepository(db *gorm.DB) *SyncHistoryRepository {
	return &SyncHistoryRepository{
		db:     db,
		mapper: mappers.NewSyncHistoryMapper(),
	}
}

// Record appends one attempt to the audit log.
func (r *SyncHistoryRepository) Record(ctx context.Context, attempt services.SyncAttempt) error {
	model, err := r.mapper.ToModel(attempt)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save sync history: %w", err)
	}
	return nil
}

// ListRecent returns the newest attempts first.
func (r *SyncHistoryRepository) ListRecent(ctx context.Context, filter SyncHistoryFilter) ([]*models.SyncHistoryModel, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := r.db.WithContext(ctx).Model(&models.SyncHistoryModel{})
	if filter.ProductID != "" {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}
	if filter.FailedOnly {
		query = query.Where("success = ?", false)
	}

	var out []*models.SyncHistoryModel
	if err := query.Order("attempted_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	return out, nil
}
