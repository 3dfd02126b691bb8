package task

import (
	"time"

	"omnibus_dev_v1_202610/internal/middleware"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// GatePruneTask 清理过期的 webhook 投递记录
type GatePruneTask struct {
	gate middleware.DeliveryGate
	log  *zap.SugaredLogger
	cron *cron.Cron
	spec string
	now  func() time.Time
}

// NewGatePruneTask 创建投递记录清理任务
func NewGatePruneTask(gate middleware.DeliveryGate, spec string, log *zap.SugaredLogger) *GatePruneTask {
	return &GatePruneTask{
		gate: gate,
		log:  log,
		cron: cron.New(cron.WithSeconds()),
		spec: spec,
		now:  time.Now,
	}
}

func (t *GatePruneTask) Start() error {
	if _, err := t.cron.AddFunc(t.spec, func() { t.Prune() }); err != nil {
		t.log.Errorf("[GatePruneTask] 定时任务启动失败: %v", err)
		return err
	}
	t.cron.Start()
	t.log.Infof("[GatePruneTask] 已启动 (%s)", t.spec)
	return nil
}

func (t *GatePruneTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("[GatePruneTask] 已停止")
}

// Prune 执行一次清理，返回删除条数
func (t *GatePruneTask) Prune() int {
	removed := t.gate.Prune(t.now())
	if removed > 0 {
		t.log.Infof("[GatePruneTask] 已清理 %d 条过期投递记录", removed)
	}
	return removed
}
