package database

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InitOptions 初始化选项
type InitOptions struct {
	// 分区定义所在文件系统，为空时使用内置 PartitionFiles
	FS   fs.FS
	Root string

	// 分区表对应的 Model（非 postgres 时直接 AutoMigrate）
	PartitionedModels []interface{}
	// 普通表 Model
	Models []interface{}

	// 创建未来几个月的分区（默认 3）
	FutureMonths int
}

// Initializer 数据库初始化器
type Initializer struct {
	db      *gorm.DB
	opts    InitOptions
	config  *PartitionConfig
	manager *PartitionManager
	log     *zap.SugaredLogger
}

// NewInitializer 创建初始化器
func NewInitializer(db *gorm.DB, opts InitOptions, log *zap.SugaredLogger) (*Initializer, error) {
	if opts.FS == nil {
		opts.FS = PartitionFiles
		opts.Root = PartitionRoot
	}
	if opts.FutureMonths <= 0 {
		opts.FutureMonths = 3
	}

	config, err := LoadPartitionConfig(opts.FS, opts.Root)
	if err != nil {
		return nil, fmt.Errorf("加载分区配置失败: %w", err)
	}

	return &Initializer{
		db:      db,
		opts:    opts,
		config:  config,
		manager: NewPartitionManager(db, config, log),
		log:     log,
	}, nil
}

// Initialize 建表
// postgres: 分区主表走 SQL 文件 + 按月分区，其余 AutoMigrate
// 其他驱动: 全部 AutoMigrate（无分区）
func (i *Initializer) Initialize(ctx context.Context) error {
	start := time.Now()

	if i.db.Dialector.Name() != DriverPostgres {
		models := append(append([]interface{}{}, i.opts.Models...), i.opts.PartitionedModels...)
		if err := i.db.WithContext(ctx).AutoMigrate(models...); err != nil {
			return fmt.Errorf("AutoMigrate 失败: %w", err)
		}
		i.log.Infof("[DB] %s 初始化完成 (%d 张表)，耗时 %v", i.db.Dialector.Name(), len(models), time.Since(start))
		return nil
	}

	if err := i.manager.InitPartitionTables(ctx); err != nil {
		return fmt.Errorf("创建分区表失败: %w", err)
	}
	if failed := i.manager.EnsureFuturePartitions(ctx, i.opts.FutureMonths); failed > 0 {
		return fmt.Errorf("%d 个分区创建失败", failed)
	}
	if len(i.opts.Models) > 0 {
		if err := i.db.WithContext(ctx).AutoMigrate(i.opts.Models...); err != nil {
			return fmt.Errorf("AutoMigrate 失败: %w", err)
		}
	}

	i.manager.LogStats(ctx)
	i.log.Infof("[DB] 初始化完成，耗时 %v", time.Since(start))
	return nil
}

// Manager 分区管理器
func (i *Initializer) Manager() *PartitionManager {
	return i.manager
}

// Config 分区配置
func (i *Initializer) Config() *PartitionConfig {
	return i.config
}
