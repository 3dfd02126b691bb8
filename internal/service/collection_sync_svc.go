package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/shopify"
)

// CollectionSource 在线查询集合
type CollectionSource interface {
	WalkCollections(ctx context.Context, creds shopify.Credentials, fn func(*shopify.CollectionNode) error) error
	GetCollection(ctx context.Context, creds shopify.Credentials, id string) (*shopify.CollectionNode, error)
}

// CollectionSyncResult 一次集合同步的统计
type CollectionSyncResult struct {
	Collections  int `json:"collections"`
	Links        int `json:"links"`
	LinksDropped int `json:"links_dropped"`
	MalformedIDs int `json:"malformed_ids"`
	Truncated    int `json:"truncated"` // 商品超过单页上限的集合数
}

// CollectionSyncService 集合在线同步
// 批量导出中商品出现在集合之后时关联会被丢弃，这里补齐
type CollectionSyncService struct {
	shops   repository.ShopRepository
	catalog repository.CatalogRepository
	source  CollectionSource
	log     *zap.SugaredLogger
}

func NewCollectionSyncService(
	shops repository.ShopRepository,
	catalog repository.CatalogRepository,
	source CollectionSource,
	log *zap.SugaredLogger,
) *CollectionSyncService {
	return &CollectionSyncService{shops: shops, catalog: catalog, source: source, log: log}
}

// SyncShop 全量同步店铺的集合及商品关联
func (s *CollectionSyncService) SyncShop(ctx context.Context, domain string) (*CollectionSyncResult, error) {
	shop, err := loadActiveShop(ctx, s.shops, domain)
	if err != nil {
		return nil, err
	}

	res := &CollectionSyncResult{}
	err = s.source.WalkCollections(ctx, credentialsOf(shop), func(node *shopify.CollectionNode) error {
		return s.apply(ctx, shop.Domain, node, res)
	})
	if err != nil {
		return res, fmt.Errorf("同步 %s 集合失败: %w", domain, err)
	}

	s.log.Infof("[CollectionSync] %s 完成: 集合 %d, 关联 %d, 跳过 %d",
		domain, res.Collections, res.Links, res.LinksDropped)
	return res, nil
}

// SyncAll 同步所有正常店铺，单个店铺失败不影响其他店铺
func (s *CollectionSyncService) SyncAll(ctx context.Context) error {
	shops, err := s.shops.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("查询店铺列表失败: %w", err)
	}

	var errs []error
	for _, shop := range shops {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.SyncShop(ctx, shop.Domain); err != nil {
			s.log.Errorf("[CollectionSync] %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RefreshCollection 重新拉取单个集合；平台上已不存在时删除本地记录
func (s *CollectionSyncService) RefreshCollection(ctx context.Context, shop *model.Shop, gid string) (*CollectionSyncResult, error) {
	node, err := s.source.GetCollection(ctx, credentialsOf(shop), gid)
	if err != nil {
		return nil, fmt.Errorf("查询集合 %s 失败: %w", gid, err)
	}

	res := &CollectionSyncResult{}
	if node == nil {
		id, err := shopify.ParseID(gid)
		if err != nil {
			return nil, err
		}
		s.log.Infof("[CollectionSync] 集合 %d 已不存在，删除本地记录", id)
		return res, s.catalog.DeleteCollection(ctx, id)
	}
	return res, s.apply(ctx, shop.Domain, node, res)
}

func (s *CollectionSyncService) apply(ctx context.Context, shop string, node *shopify.CollectionNode, res *CollectionSyncResult) error {
	collectionID, err := shopify.ParseID(node.ID)
	if err != nil {
		res.MalformedIDs++
		s.log.Warnf("[CollectionSync] 集合标识符无效 %q: %v", node.ID, err)
		return nil
	}

	err = s.catalog.UpsertCollection(ctx, &model.Collection{
		CollectionID: collectionID,
		Shop:         shop,
		Handle:       node.Handle,
		Title:        node.Title,
	})
	if err != nil {
		return fmt.Errorf("写入集合 %d 失败: %w", collectionID, err)
	}
	res.Collections++

	if node.Products.PageInfo.HasNextPage {
		res.Truncated++
		s.log.Warnf("[CollectionSync] 集合 %d 商品超过 %d 个，只关联第一页", collectionID, shopify.CollectionPageSize)
	}

	for _, raw := range node.ProductIDs() {
		productID, err := shopify.ParseID(raw)
		if err != nil {
			res.MalformedIDs++
			continue
		}
		linked, err := s.catalog.LinkProductToCollection(ctx, productID, collectionID)
		if err != nil {
			return fmt.Errorf("关联商品 %d -> 集合 %d 失败: %w", productID, collectionID, err)
		}
		if linked {
			res.Links++
		} else {
			res.LinksDropped++
		}
	}
	return nil
}
