package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/bulk"
	"omnibus_dev_v1_202610/internal/config"
	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/shopify"
)

var (
	ErrShopNotFound = errors.New("店铺不存在")
	ErrShopInactive = errors.New("店铺已卸载")
	ErrBulkNotReady = errors.New("批量操作尚未完成")
)

const defaultRunTimeout = 2 * time.Hour

// BulkOperationSource 查询批量操作状态
type BulkOperationSource interface {
	GetBulkOperation(ctx context.Context, creds shopify.Credentials, id string) (*shopify.BulkOperation, error)
}

// BulkSyncService 批量导出对账编排
// 店铺有运行进行中时标记为 calculation_in_progress，最后一个运行结束后清除
type BulkSyncService struct {
	shops  repository.ShopRepository
	engine *bulk.Engine
	ops    BulkOperationSource
	cfg    config.BulkConfig
	log    *zap.SugaredLogger

	inflightMu sync.Mutex
	inflight   map[string]int // 店铺 -> 进行中的运行数

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBulkSyncService(
	shops repository.ShopRepository,
	engine *bulk.Engine,
	ops BulkOperationSource,
	cfg config.BulkConfig,
	log *zap.SugaredLogger,
) *BulkSyncService {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BulkSyncService{
		shops:    shops,
		engine:   engine,
		ops:      ops,
		cfg:      cfg,
		log:      log,
		inflight: make(map[string]int),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// HandleBulkFinish 批量操作完成回调：确认状态后异步对账
func (s *BulkSyncService) HandleBulkFinish(ctx context.Context, domain, operationID string) error {
	shop, err := loadActiveShop(ctx, s.shops, domain)
	if err != nil {
		return err
	}

	op, err := s.ops.GetBulkOperation(ctx, credentialsOf(shop), operationID)
	if err != nil {
		return fmt.Errorf("查询批量操作 %s 失败: %w", operationID, err)
	}
	if !op.Ready() {
		return fmt.Errorf("%w: %s (status=%s, error=%s)", ErrBulkNotReady, op.ID, op.Status, op.ErrorCode)
	}

	s.log.Infof("[BulkSync] 批量操作 %s 已完成 (objects=%s)，开始对账 %s", op.ID, op.ObjectCount, domain)
	s.startAsync(s.request(shop, op.URL, op.ID, model.RunSourceWebhook))
	return nil
}

// StartRun 手动触发：从指定 URL 异步对账
func (s *BulkSyncService) StartRun(ctx context.Context, domain, url string) error {
	shop, err := loadActiveShop(ctx, s.shops, domain)
	if err != nil {
		return err
	}
	s.startAsync(s.request(shop, url, "", model.RunSourceManual))
	return nil
}

// RunNow 同步执行一次对账，r 非空时从 r 读取而不是下载 url
func (s *BulkSyncService) RunNow(ctx context.Context, domain, url string, r io.Reader) (*bulk.RunResult, error) {
	shop, err := loadActiveShop(ctx, s.shops, domain)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()
	return s.execute(ctx, s.request(shop, url, "", model.RunSourceCLI), r)
}

// Wait 等待所有异步运行结束
func (s *BulkSyncService) Wait() {
	s.wg.Wait()
}

// Close 取消进行中的运行并等待退出
func (s *BulkSyncService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *BulkSyncService) request(shop *model.Shop, url, operationID, source string) bulk.RunRequest {
	return bulk.RunRequest{
		Shop:            shop.Domain,
		URL:             url,
		BulkOperationID: operationID,
		Source:          source,
		Settings:        shop.ResolveSettings(s.cfg.DefaultTimeframe),
		Market:          shop.Market(s.cfg.DefaultCurrency),
	}
}

func (s *BulkSyncService) startAsync(req bulk.RunRequest) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RunTimeout)
		defer cancel()
		// 失败已由引擎记录到运行记录和日志
		_, _ = s.execute(ctx, req, nil)
	}()
}

func (s *BulkSyncService) execute(ctx context.Context, req bulk.RunRequest, r io.Reader) (*bulk.RunResult, error) {
	s.beginRun(ctx, req.Shop)
	defer s.endRun(context.WithoutCancel(ctx), req.Shop)

	var (
		res *bulk.RunResult
		err error
	)
	if r != nil {
		res, err = s.engine.RunReader(ctx, req, r)
	} else {
		res, err = s.engine.Run(ctx, req)
	}
	if err != nil {
		return res, err
	}

	now := time.Now().UTC()
	if req.BulkOperationID != "" {
		err = s.shops.MarkSynced(ctx, req.Shop, req.BulkOperationID, now)
	} else {
		err = s.shops.UpdateFields(ctx, req.Shop, map[string]interface{}{"last_synced_at": now})
	}
	if err != nil {
		s.log.Warnf("[BulkSync] 更新 %s 同步时间失败: %v", req.Shop, err)
	}
	return res, nil
}

// beginRun 店铺的第一个运行设置计算中标记
func (s *BulkSyncService) beginRun(ctx context.Context, domain string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	s.inflight[domain]++
	if s.inflight[domain] > 1 {
		return
	}
	if err := s.shops.SetCalculationInProgress(ctx, domain, true); err != nil {
		s.log.Warnf("[BulkSync] 设置 %s 计算中标记失败: %v", domain, err)
	}
}

// endRun 店铺的最后一个运行结束时清除标记
func (s *BulkSyncService) endRun(ctx context.Context, domain string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	s.inflight[domain]--
	if s.inflight[domain] > 0 {
		return
	}
	delete(s.inflight, domain)
	if err := s.shops.SetCalculationInProgress(ctx, domain, false); err != nil {
		s.log.Warnf("[BulkSync] 清除 %s 计算中标记失败: %v", domain, err)
	}
}

// ==================== 辅助函数 ====================

func loadActiveShop(ctx context.Context, shops repository.ShopRepository, domain string) (*model.Shop, error) {
	shop, err := shops.GetByDomain(ctx, domain)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrShopNotFound, domain)
		}
		return nil, fmt.Errorf("查询店铺 %s 失败: %w", domain, err)
	}
	if shop.Status != model.ShopStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrShopInactive, domain)
	}
	return shop, nil
}

func credentialsOf(shop *model.Shop) shopify.Credentials {
	return shopify.Credentials{Domain: shop.Domain, AccessToken: shop.AccessToken}
}
