package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/config"
	"omnibus_dev_v1_202610/pkg/logger"
)

// RootOptions 全局参数
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "omnibus",
		Short:         "Shopify 最低前价合规对账服务",
		Long:          "对账 Shopify 批量导出的商品、集合、折扣数据，并分发变体的最低前价合规计算。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "配置文件路径 (默认查找 ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "覆盖配置中的日志级别")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))

	return cmd
}

// loadRuntime 加载配置并创建日志
func loadRuntime(opts *RootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, zl, nil
}
