package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PartitionTask 分区维护任务，由 task.TaskManager 按 cron 调度
type PartitionTask struct {
	manager      *PartitionManager
	futureMonths int
	log          *zap.SugaredLogger
}

// NewPartitionTask 创建分区维护任务
func NewPartitionTask(manager *PartitionManager, futureMonths int, log *zap.SugaredLogger) *PartitionTask {
	if futureMonths <= 0 {
		futureMonths = 3
	}
	return &PartitionTask{manager: manager, futureMonths: futureMonths, log: log}
}

// Run 执行一次：健康检查 -> 补齐未来分区 -> 打印统计
// 历史分区永不删除
func (t *PartitionTask) Run(ctx context.Context) {
	start := time.Now()

	if err := t.manager.HealthCheck(ctx); err != nil {
		t.log.Warnf("[PartitionTask] 健康检查: %v", err)
	}

	if failed := t.manager.EnsureFuturePartitions(ctx, t.futureMonths); failed > 0 {
		t.log.Errorf("[PartitionTask] %d 个分区创建失败", failed)
	}

	t.manager.LogStats(ctx)
	t.log.Infof("[PartitionTask] 执行完成，耗时: %v", time.Since(start))
}
