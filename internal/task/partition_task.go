package task

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PartitionRunner 分区维护执行器，由 database.PartitionTask 实现
type PartitionRunner interface {
	Run(ctx context.Context)
}

// PartitionMaintainTask 价格历史分区的定时维护
type PartitionMaintainTask struct {
	runner PartitionRunner
	log    *zap.SugaredLogger
	cron   *cron.Cron
	spec   string
}

// NewPartitionMaintainTask 创建分区维护任务
func NewPartitionMaintainTask(runner PartitionRunner, spec string, log *zap.SugaredLogger) *PartitionMaintainTask {
	return &PartitionMaintainTask{
		runner: runner,
		log:    log,
		cron:   cron.New(cron.WithSeconds()),
		spec:   spec,
	}
}

func (t *PartitionMaintainTask) Start() error {
	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.runner.Run(ctx)
	})
	if err != nil {
		t.log.Errorf("[PartitionMaintainTask] 定时任务启动失败: %v", err)
		return err
	}
	t.cron.Start()
	t.log.Infof("[PartitionMaintainTask] 已启动 (%s)", t.spec)
	return nil
}

func (t *PartitionMaintainTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("[PartitionMaintainTask] 已停止")
}
