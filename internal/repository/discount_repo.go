package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"omnibus_dev_v1_202610/internal/model"
)

// DiscountRepository 折扣仓储
type DiscountRepository interface {
	// MergeUpsert 首次插入；已存在时目标 ID 取并集，其余字段以本次为准
	// 完成后 discount 被替换为数据库中的最终结果
	MergeUpsert(ctx context.Context, discount *model.Discount) error
	// Replace 覆盖写入（单条折扣重新计算的结果），目标列表整体替换
	Replace(ctx context.Context, discount *model.Discount) error
	DeleteByDiscountID(ctx context.Context, shop string, discountID int64) (int64, error)
	GetByDiscountID(ctx context.Context, discountID int64) (*model.Discount, error)
	ListByShop(ctx context.Context, shop string) ([]model.Discount, error)
}

type discountRepo struct {
	db *gorm.DB
}

// NewDiscountRepository 创建折扣仓储
func NewDiscountRepository(db *gorm.DB) DiscountRepository {
	return &discountRepo{db: db}
}

func (r *discountRepo) MergeUpsert(ctx context.Context, discount *model.Discount) error {
	discount.ProductIDs = discount.ProductIDs.Union()
	discount.CollectionIDs = discount.CollectionIDs.Union()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "discount_id"}},
			DoNothing: true,
		}).Create(discount)
		if res.Error != nil {
			return fmt.Errorf("插入折扣 %d 失败: %w", discount.DiscountID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		// 已存在：锁行后合并，避免并发运行互相覆盖目标列表
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing model.Discount
		if err := q.Where("discount_id = ?", discount.DiscountID).First(&existing).Error; err != nil {
			return fmt.Errorf("读取折扣 %d 失败: %w", discount.DiscountID, err)
		}

		merged := existing
		merged.Shop = discount.Shop
		merged.Kind = discount.Kind
		merged.Title = discount.Title
		merged.Status = discount.Status
		merged.StartsAt = discount.StartsAt
		merged.EndsAt = discount.EndsAt
		merged.Type = discount.Type
		merged.Amount = discount.Amount
		merged.AppliesTo = discount.AppliesTo
		merged.ProductIDs = existing.ProductIDs.Union(discount.ProductIDs...)
		merged.CollectionIDs = existing.CollectionIDs.Union(discount.CollectionIDs...)

		err := tx.Model(&model.Discount{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"shop":           merged.Shop,
				"kind":           merged.Kind,
				"title":          merged.Title,
				"status":         merged.Status,
				"starts_at":      merged.StartsAt,
				"ends_at":        merged.EndsAt,
				"type":           merged.Type,
				"amount":         merged.Amount,
				"applies_to":     merged.AppliesTo,
				"product_ids":    merged.ProductIDs,
				"collection_ids": merged.CollectionIDs,
			}).Error
		if err != nil {
			return fmt.Errorf("合并折扣 %d 失败: %w", discount.DiscountID, err)
		}

		*discount = merged
		return nil
	})
}

func (r *discountRepo) Replace(ctx context.Context, discount *model.Discount) error {
	discount.ProductIDs = discount.ProductIDs.Union()
	discount.CollectionIDs = discount.CollectionIDs.Union()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "discount_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shop", "kind", "title", "status", "starts_at", "ends_at",
			"type", "amount", "applies_to", "product_ids", "collection_ids", "updated_at",
		}),
	}).Create(discount).Error
	if err != nil {
		return fmt.Errorf("写入折扣 %d 失败: %w", discount.DiscountID, err)
	}
	return nil
}

func (r *discountRepo) DeleteByDiscountID(ctx context.Context, shop string, discountID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("shop = ? AND discount_id = ?", shop, discountID).
		Delete(&model.Discount{})
	return res.RowsAffected, res.Error
}

func (r *discountRepo) GetByDiscountID(ctx context.Context, discountID int64) (*model.Discount, error) {
	var d model.Discount
	if err := r.db.WithContext(ctx).Where("discount_id = ?", discountID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *discountRepo) ListByShop(ctx context.Context, shop string) ([]model.Discount, error) {
	var list []model.Discount
	err := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Order("discount_id ASC").
		Find(&list).Error
	return list, err
}
