package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/shopify"
)

// ReconcileOptions reconcile 命令参数
type ReconcileOptions struct {
	Shop     string
	URL      string
	File     string
	Currency string
	Token    string
}

// NewReconcileCommand 单次对账：从导出文件 URL 或本地文件读取
func NewReconcileCommand(root *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "对一份批量导出文件执行一次对账",
		Example: `  omnibus reconcile --shop demo.myshopify.com --file export.jsonl
  omnibus reconcile --shop demo.myshopify.com --url https://storage.example.com/export.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Shop, "shop", "", "店铺域名 (xxx.myshopify.com)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "导出文件 URL")
	cmd.Flags().StringVar(&opts.File, "file", "", "本地导出文件路径")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "店铺不存在时使用的币种")
	cmd.Flags().StringVar(&opts.Token, "token", "", "店铺不存在时使用的 Admin API access token")
	_ = cmd.MarkFlagRequired("shop")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	cmd.MarkFlagsOneRequired("url", "file")

	return cmd
}

func runReconcile(ctx context.Context, root *RootOptions, opts *ReconcileOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, zl, err := loadRuntime(root)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	c, err := NewContainer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := ensureShop(ctx, c.Repos.Shop, c.Shopify, opts, log); err != nil {
		return err
	}

	var r io.Reader
	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return fmt.Errorf("打开导出文件失败: %w", err)
		}
		defer f.Close()
		r = f
	}

	res, runErr := c.Services.Bulk.RunNow(ctx, opts.Shop, opts.URL, r)
	if res != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return runErr
}

// shopInfoSource 店铺信息查询
type shopInfoSource interface {
	GetShop(ctx context.Context, creds shopify.Credentials) (*shopify.ShopInfo, error)
}

// ensureShop 本地对账时店铺可能尚未安装，按参数补建
func ensureShop(ctx context.Context, shops repository.ShopRepository, src shopInfoSource, opts *ReconcileOptions, log *zap.SugaredLogger) error {
	_, err := shops.GetByDomain(ctx, opts.Shop)
	if err == nil {
		return nil
	}
	if !repository.IsNotFound(err) {
		return fmt.Errorf("查询店铺失败: %w", err)
	}

	shop := &model.Shop{
		Domain:       opts.Shop,
		CurrencyCode: strings.ToUpper(opts.Currency),
		AccessToken:  opts.Token,
		Status:       model.ShopStatusActive,
	}
	if shop.CurrencyCode == "" && opts.Token != "" {
		info, err := src.GetShop(ctx, shopify.Credentials{Domain: opts.Shop, AccessToken: opts.Token})
		if err != nil {
			return fmt.Errorf("查询店铺信息失败: %w", err)
		}
		shop.Name = info.Name
		shop.CurrencyCode = info.CurrencyCode
	}

	if err := shops.Upsert(ctx, shop); err != nil {
		return fmt.Errorf("创建店铺失败: %w", err)
	}
	log.Infof("[Reconcile] 已创建店铺 %s (币种 %s)", shop.Domain, shop.CurrencyCode)
	return nil
}
