package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"omnibus_dev_v1_202610/internal/model"
)

// ShopRepository 店铺仓储
type ShopRepository interface {
	Upsert(ctx context.Context, shop *model.Shop) error
	GetByDomain(ctx context.Context, domain string) (*model.Shop, error)
	ListActive(ctx context.Context) ([]model.Shop, error)
	UpdateFields(ctx context.Context, domain string, fields map[string]interface{}) error

	SetCalculationInProgress(ctx context.Context, domain string, inProgress bool) error
	MarkSynced(ctx context.Context, domain, bulkOperationID string, at time.Time) error
	MarkUninstalled(ctx context.Context, domain string) error
}

type shopRepo struct {
	db *gorm.DB
}

// NewShopRepository 创建店铺仓储
func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepo{db: db}
}

// Upsert 按域名 upsert，重新安装时恢复为正常状态
func (r *shopRepo) Upsert(ctx context.Context, shop *model.Shop) error {
	if shop.Status == 0 {
		shop.Status = model.ShopStatusActive
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "currency_code", "access_token", "status", "updated_at"}),
		}).
		Create(shop).Error
}

func (r *shopRepo) GetByDomain(ctx context.Context, domain string) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).Where("domain = ?", domain).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepo) ListActive(ctx context.Context) ([]model.Shop, error) {
	var shops []model.Shop
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ShopStatusActive).
		Order("id ASC").
		Find(&shops).Error
	return shops, err
}

func (r *shopRepo) UpdateFields(ctx context.Context, domain string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Shop{}).
		Where("domain = ?", domain).
		Updates(fields).Error
}

func (r *shopRepo) SetCalculationInProgress(ctx context.Context, domain string, inProgress bool) error {
	return r.UpdateFields(ctx, domain, map[string]interface{}{"calculation_in_progress": inProgress})
}

func (r *shopRepo) MarkSynced(ctx context.Context, domain, bulkOperationID string, at time.Time) error {
	return r.UpdateFields(ctx, domain, map[string]interface{}{
		"last_bulk_operation_id": bulkOperationID,
		"last_synced_at":         at,
	})
}

func (r *shopRepo) MarkUninstalled(ctx context.Context, domain string) error {
	return r.UpdateFields(ctx, domain, map[string]interface{}{
		"status":                  model.ShopStatusUninstalled,
		"access_token":            "",
		"calculation_in_progress": false,
	})
}
