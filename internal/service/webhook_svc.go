package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/bulk"
	"omnibus_dev_v1_202610/internal/config"
	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/shopify"
)

// ErrInvalidPayload webhook 内容无法解析
var ErrInvalidPayload = errors.New("webhook 内容无效")

// Webhook 主题（统一为 GraphQL 枚举形式）
const (
	TopicBulkOperationsFinish = "BULK_OPERATIONS_FINISH"
	TopicProductsCreate       = "PRODUCTS_CREATE"
	TopicProductsUpdate       = "PRODUCTS_UPDATE"
	TopicProductsDelete       = "PRODUCTS_DELETE"
	TopicCollectionsCreate    = "COLLECTIONS_CREATE"
	TopicCollectionsUpdate    = "COLLECTIONS_UPDATE"
	TopicCollectionsDelete    = "COLLECTIONS_DELETE"
	TopicDiscountsCreate      = "DISCOUNTS_CREATE"
	TopicDiscountsUpdate      = "DISCOUNTS_UPDATE"
	TopicDiscountsDelete      = "DISCOUNTS_DELETE"
	TopicAppUninstalled       = "APP_UNINSTALLED"
)

// NormalizeTopic "products/update" -> "PRODUCTS_UPDATE"
func NormalizeTopic(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(topic), "/", "_"))
}

// ==================== Webhook 内容 ====================

type productPayload struct {
	ID       bulk.RawID `json:"id"`
	Handle   string     `json:"handle"`
	Status   string     `json:"status"`
	Variants []struct {
		ID             bulk.RawID          `json:"id"`
		Price          decimal.NullDecimal `json:"price"`
		CompareAtPrice decimal.NullDecimal `json:"compare_at_price"`
	} `json:"variants"`
}

type collectionPayload struct {
	ID                bulk.RawID `json:"id"`
	AdminGraphqlAPIID string     `json:"admin_graphql_api_id"`
	Handle            string     `json:"handle"`
	Title             string     `json:"title"`
}

type deletePayload struct {
	ID bulk.RawID `json:"id"`
}

type graphqlPayload struct {
	AdminGraphqlAPIID string `json:"admin_graphql_api_id"`
	Status            string `json:"status"`
	ErrorCode         string `json:"error_code"`
}

// ==================== 服务 ====================

// BulkFinishHandler 批量操作完成处理
type BulkFinishHandler interface {
	HandleBulkFinish(ctx context.Context, domain, operationID string) error
}

// DiscountSource 单条折扣查询
type DiscountSource interface {
	GetDiscount(ctx context.Context, creds shopify.Credentials, id string) (*shopify.DiscountNode, error)
}

// WebhookService 按主题处理 webhook
type WebhookService struct {
	shops       repository.ShopRepository
	catalog     repository.CatalogRepository
	history     repository.PriceHistoryRepository
	discounts   repository.DiscountRepository
	bulk        BulkFinishHandler
	collections *CollectionSyncService
	discountSrc DiscountSource
	gateway     *bulk.Gateway
	cfg         config.BulkConfig
	log         *zap.SugaredLogger
}

func NewWebhookService(
	shops repository.ShopRepository,
	catalog repository.CatalogRepository,
	history repository.PriceHistoryRepository,
	discounts repository.DiscountRepository,
	bulkHandler BulkFinishHandler,
	collections *CollectionSyncService,
	discountSrc DiscountSource,
	calc bulk.ComplianceCalculator,
	cfg config.BulkConfig,
	log *zap.SugaredLogger,
) *WebhookService {
	return &WebhookService{
		shops:       shops,
		catalog:     catalog,
		history:     history,
		discounts:   discounts,
		bulk:        bulkHandler,
		collections: collections,
		discountSrc: discountSrc,
		gateway:     bulk.NewGateway(calc, cfg.ComputeConcurrency, log),
		cfg:         cfg,
		log:         log,
	}
}

// Handle 分发 webhook，未订阅的主题直接确认
func (s *WebhookService) Handle(ctx context.Context, topic, domain string, body []byte) error {
	topic = NormalizeTopic(topic)

	if topic == TopicAppUninstalled {
		s.log.Infof("[Webhook] 店铺 %s 已卸载应用", domain)
		return s.shops.MarkUninstalled(ctx, domain)
	}

	shop, err := loadActiveShop(ctx, s.shops, domain)
	if err != nil {
		return err
	}

	switch topic {
	case TopicBulkOperationsFinish:
		return s.handleBulkFinish(ctx, shop, body)
	case TopicProductsCreate, TopicProductsUpdate:
		return s.handleProductUpsert(ctx, shop, body)
	case TopicProductsDelete:
		return s.handleProductDelete(ctx, body)
	case TopicCollectionsCreate, TopicCollectionsUpdate:
		return s.handleCollectionUpsert(ctx, shop, body)
	case TopicCollectionsDelete:
		return s.handleCollectionDelete(ctx, body)
	case TopicDiscountsCreate, TopicDiscountsUpdate:
		return s.handleDiscountUpsert(ctx, shop, body)
	case TopicDiscountsDelete:
		return s.handleDiscountDelete(ctx, shop, body)
	default:
		s.log.Infof("[Webhook] 忽略主题 %s (%s)", topic, domain)
		return nil
	}
}

func decodePayload(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func parsePayloadID(raw string) (int64, error) {
	id, err := shopify.ParseID(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return id, nil
}

// ==================== 批量操作 ====================

func (s *WebhookService) handleBulkFinish(ctx context.Context, shop *model.Shop, body []byte) error {
	var p graphqlPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	if p.AdminGraphqlAPIID == "" {
		return fmt.Errorf("%w: 缺少 admin_graphql_api_id", ErrInvalidPayload)
	}
	if !strings.EqualFold(p.Status, shopify.BulkStatusCompleted) {
		s.log.Warnf("[Webhook] 批量操作 %s 未成功 (status=%s, error=%s)", p.AdminGraphqlAPIID, p.Status, p.ErrorCode)
		return nil
	}
	return s.bulk.HandleBulkFinish(ctx, shop.Domain, p.AdminGraphqlAPIID)
}

// ==================== 商品 ====================

func (s *WebhookService) handleProductUpsert(ctx context.Context, shop *model.Shop, body []byte) error {
	var p productPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	productID, err := parsePayloadID(string(p.ID))
	if err != nil {
		return err
	}

	touched := bulk.NewTouchedSet()
	rec := bulk.NewReconciler(s.catalog, s.history, shop.Domain, shop.Market(s.cfg.DefaultCurrency), uuid.NewString(), touched, s.log)
	if err := rec.UpsertProduct(ctx, productID, p.Handle, p.Status); err != nil {
		return err
	}
	for _, v := range p.Variants {
		variantID, err := shopify.ParseID(string(v.ID))
		if err != nil {
			s.log.Warnf("[Webhook] 商品 %d 的变体标识符无效: %v", productID, err)
			continue
		}
		if err := rec.UpsertVariant(ctx, variantID, productID, v.Price, v.CompareAtPrice); err != nil {
			return err
		}
	}

	s.gateway.Fire(ctx, shop.Domain, shop.ResolveSettings(s.cfg.DefaultTimeframe), touched)
	return nil
}

func (s *WebhookService) handleProductDelete(ctx context.Context, body []byte) error {
	var p deletePayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	productID, err := parsePayloadID(string(p.ID))
	if err != nil {
		return err
	}
	return s.catalog.DeleteProduct(ctx, productID)
}

// ==================== 集合 ====================

func (s *WebhookService) handleCollectionUpsert(ctx context.Context, shop *model.Shop, body []byte) error {
	var p collectionPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	gid := p.AdminGraphqlAPIID
	if gid == "" {
		id, err := parsePayloadID(string(p.ID))
		if err != nil {
			return err
		}
		gid = shopify.FormatGID(shopify.KindCollection, id)
	}

	_, err := s.collections.RefreshCollection(ctx, shop, gid)
	return err
}

func (s *WebhookService) handleCollectionDelete(ctx context.Context, body []byte) error {
	var p deletePayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	collectionID, err := parsePayloadID(string(p.ID))
	if err != nil {
		return err
	}
	return s.catalog.DeleteCollection(ctx, collectionID)
}

// ==================== 折扣 ====================

// handleDiscountUpsert 单条查询是完整结果，覆盖写入
func (s *WebhookService) handleDiscountUpsert(ctx context.Context, shop *model.Shop, body []byte) error {
	var p graphqlPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	discountID, err := parsePayloadID(p.AdminGraphqlAPIID)
	if err != nil {
		return err
	}

	node, err := s.discountSrc.GetDiscount(ctx, credentialsOf(shop), p.AdminGraphqlAPIID)
	if err != nil {
		return fmt.Errorf("查询折扣 %d 失败: %w", discountID, err)
	}
	if node == nil || len(node.Discount) == 0 {
		s.log.Infof("[Webhook] 折扣 %d 已不存在", discountID)
		_, err := s.discounts.DeleteByDiscountID(ctx, shop.Domain, discountID)
		return err
	}

	var payload bulk.DiscountPayload
	if err := json.Unmarshal(node.Discount, &payload); err != nil {
		return fmt.Errorf("解析折扣 %d 失败: %w", discountID, err)
	}
	discount, err := bulk.NormalizeDiscountNode(shop.Domain, discountID, &payload)
	if errors.Is(err, bulk.ErrUnsupportedDiscountArchetype) {
		s.log.Infof("[Webhook] 跳过折扣 %d: %v", discountID, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("归一化折扣 %d 失败: %w", discountID, err)
	}
	if err := s.discounts.Replace(ctx, discount); err != nil {
		return err
	}

	// 直接指定的商品重新计算
	touched := bulk.NewTouchedSet()
	for _, productID := range discount.ProductIDs {
		exists, err := s.catalog.ProductExists(ctx, productID)
		if err != nil {
			return err
		}
		if exists {
			touched.Add(productID)
		}
	}
	s.gateway.Fire(ctx, shop.Domain, shop.ResolveSettings(s.cfg.DefaultTimeframe), touched)
	return nil
}

func (s *WebhookService) handleDiscountDelete(ctx context.Context, shop *model.Shop, body []byte) error {
	var p graphqlPayload
	if err := decodePayload(body, &p); err != nil {
		return err
	}
	discountID, err := parsePayloadID(p.AdminGraphqlAPIID)
	if err != nil {
		return err
	}
	n, err := s.discounts.DeleteByDiscountID(ctx, shop.Domain, discountID)
	if err != nil {
		return fmt.Errorf("删除折扣 %d 失败: %w", discountID, err)
	}
	s.log.Infof("[Webhook] 删除折扣 %d (%d 行)", discountID, n)
	return nil
}
