package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"omnibus_dev_v1_202610/internal/bulk"
	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/database"
	"omnibus_dev_v1_202610/pkg/shopify"
)

const testConfig = `
database:
  driver: sqlite
  dsn: ":memory:"
  log_level: silent
webhook:
  verify_hmac: false
log:
  level: error
tasks:
  enabled: false
`

var testExport = strings.Join([]string{
	`{"id":"gid://shopify/Product/1","handle":"shirt","status":"ACTIVE"}`,
	`{"id":"gid://shopify/ProductVariant/11","price":"19.99","compareAtPrice":"25.00","__parentId":"gid://shopify/Product/1"}`,
	`{"id":"gid://shopify/ProductVariant/12","price":"21.00","__parentId":"gid://shopify/Product/1"}`,
	`{"id":"gid://shopify/Collection/100","handle":"summer","title":"Summer"}`,
	`{"id":"gid://shopify/Product/1","__parentId":"gid://shopify/Collection/100"}`,
}, "\n")

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

// ==================== reconcile ====================

func TestReconcileCommand_File(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", testConfig)
	exportPath := writeFile(t, dir, "export.jsonl", testExport)

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{
		"reconcile",
		"--config", cfgPath,
		"--shop", "demo.myshopify.com",
		"--file", exportPath,
		"--currency", "eur",
	})

	require.NoError(t, root.ExecuteContext(context.Background()))

	var res bulk.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, model.RunStateDone, res.State)
	assert.Equal(t, 5, res.Stats.Lines)
	assert.Equal(t, 1, res.Stats.Products)
	assert.Equal(t, 2, res.Stats.Variants)
	assert.Equal(t, 1, res.Stats.Collections)
	assert.Equal(t, 1, res.Stats.Links)
	assert.Equal(t, 1, res.Stats.ProductsComputed)
}

func TestReconcileCommand_RequiresSource(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reconcile", "--shop", "demo.myshopify.com"})

	assert.Error(t, root.Execute())
}

func TestReconcileCommand_SourcesExclusive(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reconcile", "--shop", "demo.myshopify.com", "--url", "https://x.test/a", "--file", "a.jsonl"})

	assert.Error(t, root.Execute())
}

// ==================== ensureShop ====================

type fakeShopInfo struct {
	info  *shopify.ShopInfo
	err   error
	calls int
}

func (f *fakeShopInfo) GetShop(ctx context.Context, creds shopify.Credentials) (*shopify.ShopInfo, error) {
	f.calls++
	return f.info, f.err
}

func setupShopRepo(t *testing.T) repository.ShopRepository {
	t.Helper()
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Shop{}))
	return repository.NewShopRepository(db)
}

func TestEnsureShop(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()

	t.Run("币种来自参数", func(t *testing.T) {
		shops := setupShopRepo(t)
		src := &fakeShopInfo{}
		opts := &ReconcileOptions{Shop: "a.myshopify.com", Currency: "pln", Token: "shpat_x"}

		require.NoError(t, ensureShop(ctx, shops, src, opts, log))
		assert.Equal(t, 0, src.calls)

		shop, err := shops.GetByDomain(ctx, "a.myshopify.com")
		require.NoError(t, err)
		assert.Equal(t, "PLN", shop.CurrencyCode)
		assert.Equal(t, model.ShopStatusActive, shop.Status)
	})

	t.Run("币种来自 Shopify", func(t *testing.T) {
		shops := setupShopRepo(t)
		src := &fakeShopInfo{info: &shopify.ShopInfo{Name: "Demo", CurrencyCode: "EUR"}}
		opts := &ReconcileOptions{Shop: "b.myshopify.com", Token: "shpat_x"}

		require.NoError(t, ensureShop(ctx, shops, src, opts, log))
		assert.Equal(t, 1, src.calls)

		shop, err := shops.GetByDomain(ctx, "b.myshopify.com")
		require.NoError(t, err)
		assert.Equal(t, "EUR", shop.CurrencyCode)
		assert.Equal(t, "Demo", shop.Name)
	})

	t.Run("已存在不覆盖", func(t *testing.T) {
		shops := setupShopRepo(t)
		require.NoError(t, shops.Upsert(ctx, &model.Shop{Domain: "c.myshopify.com", CurrencyCode: "GBP", Status: model.ShopStatusActive}))
		opts := &ReconcileOptions{Shop: "c.myshopify.com", Currency: "USD"}

		require.NoError(t, ensureShop(ctx, shops, &fakeShopInfo{}, opts, log))

		shop, err := shops.GetByDomain(ctx, "c.myshopify.com")
		require.NoError(t, err)
		assert.Equal(t, "GBP", shop.CurrencyCode)
	})

	t.Run("Shopify 查询失败", func(t *testing.T) {
		shops := setupShopRepo(t)
		src := &fakeShopInfo{err: errors.New("401")}
		opts := &ReconcileOptions{Shop: "d.myshopify.com", Token: "bad"}

		assert.Error(t, ensureShop(ctx, shops, src, opts, log))
		_, err := shops.GetByDomain(ctx, "d.myshopify.com")
		assert.True(t, repository.IsNotFound(err))
	})
}
