package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
)

// Reconciler 商品 / 变体 / 集合写入
// productStatus 与 touched 都是运行级状态
type Reconciler struct {
	catalog repository.CatalogRepository
	history repository.PriceHistoryRepository

	shop   string
	market string
	runID  string

	productStatus map[int64]string
	touched       *TouchedSet

	now func() time.Time
	log *zap.SugaredLogger
}

// NewReconciler 创建一次运行使用的写入器
func NewReconciler(
	catalog repository.CatalogRepository,
	history repository.PriceHistoryRepository,
	shop, market, runID string,
	touched *TouchedSet,
	log *zap.SugaredLogger,
) *Reconciler {
	return &Reconciler{
		catalog:       catalog,
		history:       history,
		shop:          shop,
		market:        market,
		runID:         runID,
		productStatus: make(map[int64]string),
		touched:       touched,
		now:           func() time.Time { return time.Now().UTC() },
		log:           log,
	}
}

// UpsertProduct 写入商品并记录其状态，供后续变体行使用
func (r *Reconciler) UpsertProduct(ctx context.Context, productID int64, handle, platformStatus string) error {
	status := model.MapProductStatus(platformStatus)
	r.productStatus[productID] = status
	r.touched.Add(productID)

	err := r.catalog.UpsertProduct(ctx, &model.Product{
		ProductID: productID,
		Shop:      r.shop,
		Handle:    handle,
		Status:    status,
	})
	if err != nil {
		return fmt.Errorf("写入商品 %d 失败: %w", productID, err)
	}
	return nil
}

// UpsertVariant 写入变体并追加一条价格快照
// 变体状态跟随本次运行中已见过的父商品，未见过时为 archived
func (r *Reconciler) UpsertVariant(ctx context.Context, variantID, productID int64, price, compareAt decimal.NullDecimal) error {
	r.touched.Add(productID)

	status, ok := r.productStatus[productID]
	if !ok {
		status = model.ProductStatusArchived
	}

	rowID, err := r.catalog.UpsertVariant(ctx, &model.Variant{
		Shop:      r.shop,
		VariantID: variantID,
		ProductID: productID,
		Status:    status,
	})
	if err != nil {
		return fmt.Errorf("写入变体 %d 失败: %w", variantID, err)
	}

	p := decimal.Zero
	if price.Valid {
		p = price.Decimal
	}
	cmp := p
	if compareAt.Valid {
		cmp = compareAt.Decimal
	}

	err = r.history.Append(ctx, &model.PriceHistory{
		VariantRowID:   rowID,
		Date:           r.now(),
		Market:         r.market,
		Price:          p,
		CompareAtPrice: cmp,
		RunID:          r.runID,
	})
	if err != nil {
		return fmt.Errorf("写入变体 %d 价格历史失败: %w", variantID, err)
	}
	return nil
}

// UpsertCollection 写入集合
func (r *Reconciler) UpsertCollection(ctx context.Context, collectionID int64, handle, title string) error {
	err := r.catalog.UpsertCollection(ctx, &model.Collection{
		CollectionID: collectionID,
		Shop:         r.shop,
		Handle:       handle,
		Title:        title,
	})
	if err != nil {
		return fmt.Errorf("写入集合 %d 失败: %w", collectionID, err)
	}
	return nil
}

// LinkProductToCollection 商品不存在时不建立关系，返回 false（由集合全量同步补齐）
func (r *Reconciler) LinkProductToCollection(ctx context.Context, productID, collectionID int64) (bool, error) {
	linked, err := r.catalog.LinkProductToCollection(ctx, productID, collectionID)
	if err != nil {
		return false, fmt.Errorf("关联商品 %d -> 集合 %d 失败: %w", productID, collectionID, err)
	}
	if !linked {
		r.log.Debugf("[Reconciler] 商品 %d 尚不存在，跳过集合 %d 关联", productID, collectionID)
	}
	return linked, nil
}
