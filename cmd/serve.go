package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"omnibus_dev_v1_202610/internal/router"
)

// NewServeCommand 启动 HTTP 服务和定时任务
func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 webhook / 手动同步 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(parent context.Context, root *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, zl, err := loadRuntime(root)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	// 1. 初始化依赖
	c, err := NewContainer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.InitHTTP(); err != nil {
		return err
	}

	// 2. 启动定时任务
	tasks := c.NewTaskManager()
	if err := tasks.Start(); err != nil {
		return err
	}
	defer tasks.Stop()

	// 3. 初始化路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), router.RequestLogger(log))
	router.InitRoutes(r, router.Options{
		WebhookCtl:         c.Controllers.Webhook,
		SyncCtl:            c.Controllers.Sync,
		Gate:               c.Gate,
		Limiter:            c.Limiter,
		APISecret:          cfg.Shopify.APISecret,
		VerifyHMAC:         cfg.Webhook.VerifyHMAC,
		MaxBodyBytes:       cfg.Webhook.MaxBodyBytes,
		ManualSyncInterval: cfg.Server.ManualSyncInterval,
		Log:                log,
	})

	// 4. 启动服务
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("服务启动在 :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待退出信号
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Errorf("服务启动失败: %v", err)
			return err
		}
	}

	log.Info("正在关闭服务...")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("服务强制关闭: %v", err)
		return err
	}

	log.Info("服务已退出")
	return nil
}
