package repository

import (
	"context"

	"gorm.io/gorm"

	"omnibus_dev_v1_202610/internal/model"
)

// SyncRunRepository 对账运行记录仓储
type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	Update(ctx context.Context, runID string, fields map[string]interface{}) error
	GetByRunID(ctx context.Context, runID string) (*model.SyncRun, error)
	ListByShop(ctx context.Context, shop string, limit int) ([]model.SyncRun, error)
}

type syncRunRepo struct {
	db *gorm.DB
}

// NewSyncRunRepository 创建运行记录仓储
func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepo{db: db}
}

func (r *syncRunRepo) Create(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *syncRunRepo) Update(ctx context.Context, runID string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.SyncRun{}).
		Where("run_id = ?", runID).
		Updates(fields).Error
}

func (r *syncRunRepo) GetByRunID(ctx context.Context, runID string) (*model.SyncRun, error) {
	var run model.SyncRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByShop 最近的运行记录，按开始时间倒序
func (r *syncRunRepo) ListByShop(ctx context.Context, shop string, limit int) ([]model.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []model.SyncRun
	err := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
