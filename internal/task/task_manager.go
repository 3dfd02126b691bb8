package task

import (
	"context"

	"omnibus_dev_v1_202610/internal/middleware"

	"go.uber.org/zap"
)

// ==================== TaskManager 定时任务管理器 ====================

// TaskManager 统一管理定时任务
// 管理范围：集合修复同步、投递记录清理、价格历史分区维护
type TaskManager struct {
	collectionTask *CollectionSyncTask
	gateTask       *GatePruneTask
	partitionTask  *PartitionMaintainTask
	log            *zap.SugaredLogger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	ShopRepo        ShopLister
	CollectionSync  ShopCollectionSyncer
	Gate            middleware.DeliveryGate
	PartitionRunner PartitionRunner
	Log             *zap.SugaredLogger
}

// TaskManagerConfig 任务管理器配置，cron 表达式为空表示禁用
type TaskManagerConfig struct {
	Enabled bool

	CollectionSyncSpec    string
	CollectionConcurrency int

	GatePruneSpec string

	PartitionMaintainSpec string
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		Enabled:               true,
		CollectionSyncSpec:    "0 30 3 * * *",
		CollectionConcurrency: 3,
		GatePruneSpec:         "0 */10 * * * *",
		PartitionMaintainSpec: "0 0 2 * * *",
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	tm := &TaskManager{log: log}
	if !cfg.Enabled {
		return tm
	}

	// 集合修复同步
	if cfg.CollectionSyncSpec != "" && deps.ShopRepo != nil && deps.CollectionSync != nil {
		tm.collectionTask = NewCollectionSyncTask(deps.ShopRepo, deps.CollectionSync, cfg.CollectionSyncSpec, log)
		tm.collectionTask.SetConcurrency(cfg.CollectionConcurrency)
	}

	// 投递记录清理
	if cfg.GatePruneSpec != "" && deps.Gate != nil {
		tm.gateTask = NewGatePruneTask(deps.Gate, cfg.GatePruneSpec, log)
	}

	// 分区维护（仅 postgres）
	if cfg.PartitionMaintainSpec != "" && deps.PartitionRunner != nil {
		tm.partitionTask = NewPartitionMaintainTask(deps.PartitionRunner, cfg.PartitionMaintainSpec, log)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务，cron 表达式非法时返回错误
func (tm *TaskManager) Start() error {
	tm.log.Info("[TaskManager] 正在启动定时任务...")

	if tm.collectionTask != nil {
		if err := tm.collectionTask.Start(); err != nil {
			return err
		}
	}
	if tm.gateTask != nil {
		if err := tm.gateTask.Start(); err != nil {
			return err
		}
	}
	if tm.partitionTask != nil {
		if err := tm.partitionTask.Start(); err != nil {
			return err
		}
	}

	tm.log.Info("[TaskManager] 定时任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	tm.log.Info("[TaskManager] 正在停止定时任务...")

	if tm.collectionTask != nil {
		tm.collectionTask.Stop()
	}
	if tm.gateTask != nil {
		tm.gateTask.Stop()
	}
	if tm.partitionTask != nil {
		tm.partitionTask.Stop()
	}

	tm.log.Info("[TaskManager] 定时任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerCollectionSync 立即执行一轮集合同步
func (tm *TaskManager) TriggerCollectionSync(ctx context.Context) (CollectionSyncSummary, error) {
	if tm.collectionTask == nil {
		return CollectionSyncSummary{}, ErrTaskDisabled
	}
	return tm.collectionTask.SyncAll(ctx), nil
}

// TriggerGatePrune 立即清理投递记录
func (tm *TaskManager) TriggerGatePrune() (int, error) {
	if tm.gateTask == nil {
		return 0, ErrTaskDisabled
	}
	return tm.gateTask.Prune(), nil
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"collection_sync":    tm.collectionTask != nil,
		"gate_prune":         tm.gateTask != nil,
		"partition_maintain": tm.partitionTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
