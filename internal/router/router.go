package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/controller"
	"omnibus_dev_v1_202610/internal/middleware"
)

// Options 路由依赖
type Options struct {
	WebhookCtl *controller.WebhookController
	SyncCtl    *controller.SyncController

	Gate         middleware.DeliveryGate
	Limiter      *middleware.SyncRateLimiter
	APISecret    string
	VerifyHMAC   bool
	MaxBodyBytes int64
	// ManualSyncInterval 0 表示使用默认间隔
	ManualSyncInterval time.Duration

	Log *zap.SugaredLogger
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, opts Options) {
	// 1. 运维
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 200, "message": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// 2. webhook：读取请求体 -> 签名校验 -> 投递去重
		hooks := []gin.HandlerFunc{middleware.WebhookContext(opts.MaxBodyBytes)}
		if opts.VerifyHMAC {
			hooks = append(hooks, middleware.VerifyHMAC(opts.APISecret))
		}
		hooks = append(hooks, middleware.WebhookDedupe(opts.Gate, opts.Log), opts.WebhookCtl.Receive)

		// POST /api/webhooks
		api.POST("/webhooks", hooks...)

		// 3. 手动同步
		sync := api.Group("/v1/sync")
		{
			// POST /api/v1/sync/bulk/:shop
			sync.POST("/bulk/:shop",
				middleware.SyncRateLimit(opts.Limiter, middleware.SyncTypeBulk, opts.ManualSyncInterval),
				opts.SyncCtl.TriggerBulkRun)
			// POST /api/v1/sync/collections/:shop
			sync.POST("/collections/:shop",
				middleware.SyncRateLimit(opts.Limiter, middleware.SyncTypeCollections, opts.ManualSyncInterval),
				opts.SyncCtl.SyncCollections)
			// GET /api/v1/sync/runs/:shop
			sync.GET("/runs/:shop", opts.SyncCtl.ListRuns)
		}
	}
}

// RequestLogger 访问日志
func RequestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("[HTTP] 请求完成",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}
