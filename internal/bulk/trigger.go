package bulk

import (
	"context"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/pkg/metrics"
)

// ComplianceCalculator 外部合规计算：读取价格历史，回写变体的合规状态
type ComplianceCalculator interface {
	ComputeForProduct(ctx context.Context, productID int64, shop string, settings model.ShopSettings) error
}

// TouchedSet 本次运行涉及的商品
type TouchedSet struct {
	ids map[int64]struct{}
}

// NewTouchedSet 创建空集合
func NewTouchedSet() *TouchedSet {
	return &TouchedSet{ids: make(map[int64]struct{})}
}

func (s *TouchedSet) Add(productID int64) {
	s.ids[productID] = struct{}{}
}

func (s *TouchedSet) Len() int {
	return len(s.ids)
}

// Sorted 升序
func (s *TouchedSet) Sorted() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultComputeConcurrency 未配置时的并发上限
const DefaultComputeConcurrency = 4

// Gateway 合规计算触发器：每个商品只调用一次
type Gateway struct {
	calc        ComplianceCalculator
	concurrency int
	log         *zap.SugaredLogger
}

// NewGateway 创建触发器，concurrency 为同时计算的商品数上限
func NewGateway(calc ComplianceCalculator, concurrency int, log *zap.SugaredLogger) *Gateway {
	if concurrency <= 0 {
		concurrency = DefaultComputeConcurrency
	}
	return &Gateway{calc: calc, concurrency: concurrency, log: log}
}

// Fire 对 touched 中每个商品调用一次计算
// 单个商品失败只记录，不影响其他商品；返回成功与失败数量
func (g *Gateway) Fire(ctx context.Context, shop string, settings model.ShopSettings, touched *TouchedSet) (ok, failed int) {
	if touched.Len() == 0 {
		return 0, 0
	}

	var okCount, failCount atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for _, productID := range touched.Sorted() {
		eg.Go(func() error {
			if err := g.calc.ComputeForProduct(egCtx, productID, shop, settings); err != nil {
				failCount.Add(1)
				metrics.RecordDispatch(false)
				g.log.Warnf("[Gateway] 商品 %d 合规计算失败: %v", productID, err)
				return nil
			}
			okCount.Add(1)
			metrics.RecordDispatch(true)
			return nil
		})
	}
	_ = eg.Wait()

	return int(okCount.Load()), int(failCount.Load())
}
