package task

import (
	"context"
	"sync"
	"time"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/service"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ShopLister 活跃店铺查询
type ShopLister interface {
	ListActive(ctx context.Context) ([]model.Shop, error)
}

// ShopCollectionSyncer 单店铺集合同步
type ShopCollectionSyncer interface {
	SyncShop(ctx context.Context, domain string) (*service.CollectionSyncResult, error)
}

// CollectionSyncTask 集合修复同步任务
// 补齐 webhook 丢失造成的集合与商品关联缺口
type CollectionSyncTask struct {
	shops  ShopLister
	syncer ShopCollectionSyncer
	log    *zap.SugaredLogger
	cron   *cron.Cron

	spec             string
	concurrencyLimit int
	timeout          time.Duration
}

// CollectionSyncSummary 一轮同步的汇总
type CollectionSyncSummary struct {
	Shops       int
	Succeeded   int
	Failed      int
	Collections int
	Links       int
}

// NewCollectionSyncTask 创建集合同步任务
func NewCollectionSyncTask(shops ShopLister, syncer ShopCollectionSyncer, spec string, log *zap.SugaredLogger) *CollectionSyncTask {
	return &CollectionSyncTask{
		shops:            shops,
		syncer:           syncer,
		log:              log,
		cron:             cron.New(cron.WithSeconds()),
		spec:             spec,
		concurrencyLimit: 3,
		timeout:          time.Hour,
	}
}

// SetConcurrency 设置并发参数
func (t *CollectionSyncTask) SetConcurrency(limit int) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
}

// Start 启动定时任务
func (t *CollectionSyncTask) Start() error {
	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.SyncAll(ctx)
	})
	if err != nil {
		t.log.Errorf("[CollectionSyncTask] 定时任务启动失败: %v", err)
		return err
	}

	t.cron.Start()
	t.log.Infof("[CollectionSyncTask] 已启动 (%s)", t.spec)
	return nil
}

// Stop 停止任务，等待执行中的同步结束
func (t *CollectionSyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("[CollectionSyncTask] 已停止")
}

// SyncAll 同步全部活跃店铺，单店失败不影响其他店铺
func (t *CollectionSyncTask) SyncAll(ctx context.Context) CollectionSyncSummary {
	var summary CollectionSyncSummary

	shops, err := t.shops.ListActive(ctx)
	if err != nil {
		t.log.Errorf("[CollectionSyncTask] 获取店铺列表失败: %v", err)
		return summary
	}
	if len(shops) == 0 {
		t.log.Info("[CollectionSyncTask] 无活跃店铺需要同步")
		return summary
	}
	summary.Shops = len(shops)

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup
	var mu sync.Mutex

	t.log.Infof("[CollectionSyncTask] 开始处理 %d 个店铺", len(shops))

	for i := range shops {
		domain := shops[i].Domain
		select {
		case <-ctx.Done():
			t.log.Warn("[CollectionSyncTask] 任务超时停止")
			wg.Wait()
			return summary
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := t.syncer.SyncShop(ctx, domain)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.log.Errorf("[CollectionSyncTask] 店铺 %s 同步失败: %v", domain, err)
				summary.Failed++
				return
			}
			summary.Succeeded++
			if res != nil {
				summary.Collections += res.Collections
				summary.Links += res.Links
			}
		}()
	}

	wg.Wait()
	t.log.Infof("[CollectionSyncTask] 同步完成: 成功 %d, 失败 %d, 集合 %d, 关联 %d",
		summary.Succeeded, summary.Failed, summary.Collections, summary.Links)
	return summary
}
