package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"omnibus_dev_v1_202610/internal/model"
)

// ==================== 接口定义 ====================

// CatalogRepository 商品 / 变体 / 集合仓储
// 所有写入都是幂等 upsert，同一数据重复写入结果不变
type CatalogRepository interface {
	// 商品
	UpsertProduct(ctx context.Context, product *model.Product) error
	GetProduct(ctx context.Context, productID int64) (*model.Product, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
	DeleteProduct(ctx context.Context, productID int64) error

	// 变体，返回变体行 ID（价格历史外键）
	UpsertVariant(ctx context.Context, variant *model.Variant) (int64, error)
	ListVariantsByProduct(ctx context.Context, productID int64) ([]model.Variant, error)

	// 集合
	UpsertCollection(ctx context.Context, collection *model.Collection) error
	DeleteCollection(ctx context.Context, collectionID int64) error

	// 商品 -> 集合关系，商品不存在时返回 false
	LinkProductToCollection(ctx context.Context, productID, collectionID int64) (bool, error)
	ListCollectionIDsByProduct(ctx context.Context, productID int64) ([]int64, error)

	// 统计
	CountByShop(ctx context.Context, shop string) (*CatalogCounts, error)

	// 事务
	WithTx(tx *gorm.DB) CatalogRepository
	Transaction(ctx context.Context, fn func(txRepo CatalogRepository) error) error
}

// CatalogCounts 店铺数据量
type CatalogCounts struct {
	Products    int64 `json:"products"`
	Variants    int64 `json:"variants"`
	Collections int64 `json:"collections"`
}

// ==================== 仓储实现 ====================

type catalogRepo struct {
	db *gorm.DB
}

// NewCatalogRepository 创建商品目录仓储
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepo{db: db}
}

// ==================== 商品 ====================

func (r *catalogRepo) UpsertProduct(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"shop", "handle", "status", "updated_at"}),
		}).
		Create(product).Error
}

func (r *catalogRepo) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *catalogRepo) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count > 0, err
}

// DeleteProduct 删除商品及其变体与集合关系（价格历史保留）
func (r *catalogRepo) DeleteProduct(ctx context.Context, productID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&model.Variant{}).Error; err != nil {
			return fmt.Errorf("删除变体失败: %w", err)
		}
		if err := tx.Where("product_id = ?", productID).Delete(&model.ProductCollection{}).Error; err != nil {
			return fmt.Errorf("删除集合关系失败: %w", err)
		}
		return tx.Where("product_id = ?", productID).Delete(&model.Product{}).Error
	})
}

// ==================== 变体 ====================

// UpsertVariant 按 (shop, variant_id) upsert
// 合规字段不在更新列中，由合规计算服务维护
func (r *catalogRepo) UpsertVariant(ctx context.Context, variant *model.Variant) (int64, error) {
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "variant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "status", "updated_at"}),
	}).Create(variant).Error
	if err != nil {
		return 0, err
	}

	// 冲突更新时部分驱动不回填主键，统一回查
	var rowID int64
	err = db.Model(&model.Variant{}).
		Where("shop = ? AND variant_id = ?", variant.Shop, variant.VariantID).
		Select("id").
		Scan(&rowID).Error
	if err != nil {
		return 0, err
	}
	if rowID == 0 {
		return 0, fmt.Errorf("变体 %d upsert 后未找到", variant.VariantID)
	}
	variant.ID = rowID
	return rowID, nil
}

func (r *catalogRepo) ListVariantsByProduct(ctx context.Context, productID int64) ([]model.Variant, error) {
	var variants []model.Variant
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("variant_id ASC").
		Find(&variants).Error
	return variants, err
}

// ==================== 集合 ====================

func (r *catalogRepo) UpsertCollection(ctx context.Context, collection *model.Collection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"shop", "handle", "title", "updated_at"}),
		}).
		Create(collection).Error
}

func (r *catalogRepo) DeleteCollection(ctx context.Context, collectionID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", collectionID).Delete(&model.ProductCollection{}).Error; err != nil {
			return fmt.Errorf("删除集合关系失败: %w", err)
		}
		return tx.Where("collection_id = ?", collectionID).Delete(&model.Collection{}).Error
	})
}

// ==================== 关系 ====================

func (r *catalogRepo) LinkProductToCollection(ctx context.Context, productID, collectionID int64) (bool, error) {
	exists, err := r.ProductExists(ctx, productID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProductCollection{ProductID: productID, CollectionID: collectionID}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *catalogRepo) ListCollectionIDsByProduct(ctx context.Context, productID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.ProductCollection{}).
		Where("product_id = ?", productID).
		Order("collection_id ASC").
		Pluck("collection_id", &ids).Error
	return ids, err
}

// ==================== 统计 ====================

func (r *catalogRepo) CountByShop(ctx context.Context, shop string) (*CatalogCounts, error) {
	counts := &CatalogCounts{}
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Product{}).Where("shop = ?", shop).Count(&counts.Products).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Variant{}).Where("shop = ?", shop).Count(&counts.Variants).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Collection{}).Where("shop = ?", shop).Count(&counts.Collections).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// ==================== 事务 ====================

func (r *catalogRepo) WithTx(tx *gorm.DB) CatalogRepository {
	return &catalogRepo{db: tx}
}

func (r *catalogRepo) Transaction(ctx context.Context, fn func(txRepo CatalogRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// IsNotFound 是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
