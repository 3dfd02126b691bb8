package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"omnibus_dev_v1_202610/internal/model"
)

// ErrImmutable 价格历史不允许修改
var ErrImmutable = errors.New("价格历史只允许追加")

// PriceHistoryRepository 价格历史仓储，只有追加和查询
type PriceHistoryRepository interface {
	Append(ctx context.Context, history *model.PriceHistory) error
	ListByVariant(ctx context.Context, variantRowID int64, since time.Time) ([]model.PriceHistory, error)
	CountByVariant(ctx context.Context, variantRowID int64) (int64, error)
}

type priceHistoryRepo struct {
	db *gorm.DB
}

// NewPriceHistoryRepository 创建价格历史仓储
func NewPriceHistoryRepository(db *gorm.DB) PriceHistoryRepository {
	return &priceHistoryRepo{db: db}
}

func (r *priceHistoryRepo) Append(ctx context.Context, history *model.PriceHistory) error {
	if history.ID != 0 {
		return ErrImmutable
	}
	if history.Date.IsZero() {
		history.Date = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(history).Error
}

// ListByVariant 按时间升序返回 since 之后的记录
func (r *priceHistoryRepo) ListByVariant(ctx context.Context, variantRowID int64, since time.Time) ([]model.PriceHistory, error) {
	var list []model.PriceHistory
	err := r.db.WithContext(ctx).
		Where("variant_row_id = ? AND date >= ?", variantRowID, since.UTC()).
		Order("date ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (r *priceHistoryRepo) CountByVariant(ctx context.Context, variantRowID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PriceHistory{}).
		Where("variant_row_id = ?", variantRowID).
		Count(&count).Error
	return count, err
}
