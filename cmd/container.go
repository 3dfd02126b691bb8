package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"omnibus_dev_v1_202610/internal/bulk"
	"omnibus_dev_v1_202610/internal/config"
	"omnibus_dev_v1_202610/internal/controller"
	"omnibus_dev_v1_202610/internal/middleware"
	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/internal/service"
	"omnibus_dev_v1_202610/internal/task"
	"omnibus_dev_v1_202610/pkg/database"
	"omnibus_dev_v1_202610/pkg/shopify"
)

// ==================== 依赖容器 ====================

// Container 依赖容器
type Container struct {
	Config *config.Config
	Log    *zap.SugaredLogger

	DB          *gorm.DB
	Redis       *redis.Client
	Initializer *database.Initializer

	Repos       *Repositories
	Shopify     *shopify.Client
	Calculator  bulk.ComplianceCalculator
	Engine      *bulk.Engine
	Services    *Services
	Gate        middleware.DeliveryGate
	Limiter     *middleware.SyncRateLimiter
	Controllers *Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Shop     repository.ShopRepository
	Catalog  repository.CatalogRepository
	History  repository.PriceHistoryRepository
	Discount repository.DiscountRepository
	SyncRun  repository.SyncRunRepository
}

// Services 服务集合
type Services struct {
	Bulk        *service.BulkSyncService
	Collections *service.CollectionSyncService
	Webhook     *service.WebhookService
}

// Controllers 控制器集合
type Controllers struct {
	Webhook *controller.WebhookController
	Sync    *controller.SyncController
}

// ==================== 初始化函数 ====================

// NewContainer 按配置初始化所有依赖
func NewContainer(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	// -------- 数据库 --------
	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}

	// -------- Repo 层 --------
	c.Repos = &Repositories{
		Shop:     repository.NewShopRepository(c.DB),
		Catalog:  repository.NewCatalogRepository(c.DB),
		History:  repository.NewPriceHistoryRepository(c.DB),
		Discount: repository.NewDiscountRepository(c.DB),
		SyncRun:  repository.NewSyncRunRepository(c.DB),
	}

	// -------- 外部服务 --------
	c.Shopify = shopify.NewClient(shopify.ClientConfig{
		APIVersion:        cfg.Shopify.APIVersion,
		Timeout:           cfg.Shopify.Timeout,
		RequestsPerSecond: cfg.Shopify.RequestsPerSecond,
		Burst:             cfg.Shopify.Burst,
		Debug:             cfg.Shopify.Debug,
	}, log)
	c.Calculator = c.initCalculator()

	// -------- 对账引擎 --------
	c.Engine = bulk.NewEngine(
		c.Repos.Catalog, c.Repos.History, c.Repos.Discount, c.Repos.SyncRun,
		c.Shopify, c.Calculator,
		bulk.Options{
			ChunkSize:          cfg.Bulk.ChunkSize,
			ComputeConcurrency: cfg.Bulk.ComputeConcurrency,
			DefaultCurrency:    cfg.Bulk.DefaultCurrency,
		},
		log,
	)

	// -------- 业务服务 --------
	services := &Services{}
	services.Bulk = service.NewBulkSyncService(c.Repos.Shop, c.Engine, c.Shopify, cfg.Bulk, log)
	services.Collections = service.NewCollectionSyncService(c.Repos.Shop, c.Repos.Catalog, c.Shopify, log)
	services.Webhook = service.NewWebhookService(
		c.Repos.Shop, c.Repos.Catalog, c.Repos.History, c.Repos.Discount,
		services.Bulk, services.Collections, c.Shopify, c.Calculator,
		cfg.Bulk, log,
	)
	c.Services = services

	return c, nil
}

// initDatabase 打开数据库并建表
func (c *Container) initDatabase(ctx context.Context) error {
	db, err := database.Open(database.Config{
		Driver:          c.Config.Database.Driver,
		DSN:             c.Config.Database.DSN,
		MaxIdleConns:    c.Config.Database.MaxIdleConns,
		MaxOpenConns:    c.Config.Database.MaxOpenConns,
		ConnMaxLifetime: c.Config.Database.ConnMaxLifetime,
		LogLevel:        c.Config.Database.LogLevel,
	})
	if err != nil {
		return err
	}
	c.DB = db

	initializer, err := database.NewInitializer(db, database.InitOptions{
		Models:            model.AllModels(),
		PartitionedModels: model.PartitionedModels(),
		FutureMonths:      c.Config.Database.FutureMonths,
	}, c.Log)
	if err != nil {
		return err
	}
	if err := initializer.Initialize(ctx); err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	c.Initializer = initializer
	return nil
}

// initCalculator 配置了 kafka 时分发到合规计算服务，否则只记日志
func (c *Container) initCalculator() bulk.ComplianceCalculator {
	if len(c.Config.Kafka.Brokers) == 0 {
		c.Log.Warn("[Container] 未配置 kafka.brokers，合规计算请求只记录日志")
		return service.NewLoggingCalculator(c.Log)
	}
	c.Log.Infof("[Container] 合规计算请求投递到 kafka topic %s", c.Config.Kafka.Topic)
	return service.NewKafkaComplianceDispatcher(service.NewKafkaWriter(c.Config.Kafka), c.Log)
}

// InitHTTP 初始化 HTTP 层依赖（去重、限流、控制器），只有 serve 需要
func (c *Container) InitHTTP() error {
	if c.Config.Redis.Addr != "" {
		rdb, err := database.OpenRedis(database.RedisConfig{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		}, c.Log)
		if err != nil {
			return err
		}
		c.Redis = rdb
		c.Gate = middleware.NewRedisGate(rdb, c.Config.Redis.KeyPrefix, c.Config.Webhook.DeliveryTTL)
	} else {
		c.Log.Warn("[Container] 未配置 redis.addr，webhook 去重使用进程内存")
		c.Gate = middleware.NewMemoryGate(c.Config.Webhook.DeliveryTTL)
	}

	c.Limiter = middleware.NewSyncRateLimiter()
	c.Controllers = &Controllers{
		Webhook: controller.NewWebhookController(c.Services.Webhook, c.Log),
		Sync:    controller.NewSyncController(c.Services.Bulk, c.Services.Collections, c.Repos.SyncRun),
	}
	return nil
}

// NewTaskManager 按配置创建定时任务
func (c *Container) NewTaskManager() *task.TaskManager {
	deps := &task.TaskManagerDeps{
		ShopRepo:       c.Repos.Shop,
		CollectionSync: c.Services.Collections,
		Gate:           c.Gate,
		Log:            c.Log,
	}
	// 分区只存在于 postgres
	if c.DB.Dialector.Name() == database.DriverPostgres {
		deps.PartitionRunner = database.NewPartitionTask(c.Initializer.Manager(), c.Config.Database.FutureMonths, c.Log)
	}

	return task.NewTaskManager(deps, &task.TaskManagerConfig{
		Enabled:               c.Config.Tasks.Enabled,
		CollectionSyncSpec:    c.Config.Tasks.CollectionSync,
		CollectionConcurrency: c.Config.Tasks.MaxConcurrency,
		GatePruneSpec:         c.Config.Tasks.GatePrune,
		PartitionMaintainSpec: c.Config.Tasks.PartitionMaintain,
	})
}

// Close 停止进行中的运行并释放连接
func (c *Container) Close() {
	if c.Services != nil && c.Services.Bulk != nil {
		c.Services.Bulk.Close()
	}
	if closer, ok := c.Calculator.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.Log.Warnf("[Container] 关闭合规分发失败: %v", err)
		}
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
