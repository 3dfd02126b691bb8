package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/pkg/shopify"
)

const smallExport = `{"id":"gid://shopify/Product/1","handle":"shirt","status":"ACTIVE"}
{"id":"gid://shopify/ProductVariant/11","price":"10.00","__parentId":"gid://shopify/Product/1"}
{"id":"gid://shopify/ProductVariant/12","price":"12.00","__parentId":"gid://shopify/Product/1"}
`

func TestBulkSyncService_HandleBulkFinish(t *testing.T) {
	env := setupServiceEnv(t)
	ctx := context.Background()
	env.stub.bulkOp = &shopify.BulkOperation{ID: "gid://shopify/BulkOperation/5", Status: shopify.BulkStatusCompleted, URL: "https://files/export.jsonl"}
	env.stub.export = smallExport

	svc := env.bulkService()
	require.NoError(t, svc.HandleBulkFinish(ctx, fixtureShop, "gid://shopify/BulkOperation/5"))
	svc.Wait()

	variants, err := env.catalog.ListVariantsByProduct(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, variants, 2)
	assert.Equal(t, []int64{1}, env.calc.Calls())

	shop, err := env.shops.GetByDomain(ctx, fixtureShop)
	require.NoError(t, err)
	assert.False(t, shop.CalculationInProgress)
	assert.Equal(t, "gid://shopify/BulkOperation/5", shop.LastBulkOperationID)
	assert.NotNil(t, shop.LastSyncedAt)

	runs, err := env.runs.ListByShop(ctx, fixtureShop, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunSourceWebhook, runs[0].Source)
	assert.Equal(t, model.RunStateDone, runs[0].State)
}

func TestBulkSyncService_NotReady(t *testing.T) {
	env := setupServiceEnv(t)
	env.stub.bulkOp = &shopify.BulkOperation{ID: "gid://shopify/BulkOperation/6", Status: shopify.BulkStatusFailed, ErrorCode: "TIMEOUT"}

	svc := env.bulkService()
	err := svc.HandleBulkFinish(context.Background(), fixtureShop, "gid://shopify/BulkOperation/6")
	assert.ErrorIs(t, err, ErrBulkNotReady)
	svc.Wait()
	assert.Empty(t, env.calc.Calls())
}

func TestBulkSyncService_UnknownShop(t *testing.T) {
	env := setupServiceEnv(t)
	svc := env.bulkService()

	err := svc.StartRun(context.Background(), "missing.myshopify.com", "https://files/x")
	assert.ErrorIs(t, err, ErrShopNotFound)

	require.NoError(t, env.shops.MarkUninstalled(context.Background(), fixtureShop))
	err = svc.StartRun(context.Background(), fixtureShop, "https://files/x")
	assert.ErrorIs(t, err, ErrShopInactive)
}

func TestBulkSyncService_RunNow(t *testing.T) {
	env := setupServiceEnv(t)
	ctx := context.Background()

	res, err := env.bulkService().RunNow(ctx, fixtureShop, "", strings.NewReader(smallExport))
	require.NoError(t, err)
	assert.Equal(t, model.RunStateDone, res.State)
	assert.Equal(t, 2, res.Stats.Variants)

	// 价格历史使用店铺币种
	variants, err := env.catalog.ListVariantsByProduct(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, variants)
	list, err := env.history.ListByVariant(ctx, variants[0].ID, variants[0].CreatedAt.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EUR", list[0].Market)

	run, err := env.runs.GetByRunID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSourceCLI, run.Source)
}

func TestBulkSyncService_TransportFailureClearsFlag(t *testing.T) {
	env := setupServiceEnv(t)
	ctx := context.Background()
	env.stub.err = &shopify.TransportError{URL: "https://files/gone", StatusCode: 403}

	_, err := env.bulkService().RunNow(ctx, fixtureShop, "https://files/gone", nil)
	assert.ErrorIs(t, err, shopify.ErrTransport)

	shop, err := env.shops.GetByDomain(ctx, fixtureShop)
	require.NoError(t, err)
	assert.False(t, shop.CalculationInProgress)
	assert.Nil(t, shop.LastSyncedAt)
}

func TestBulkSyncService_OverlappingRunsKeepFlag(t *testing.T) {
	env := setupServiceEnv(t)
	ctx := context.Background()
	svc := env.bulkService()

	inProgress := func() bool {
		shop, err := env.shops.GetByDomain(ctx, fixtureShop)
		return err == nil && shop.CalculationInProgress
	}

	// 第一个运行阻塞在读取上
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := svc.RunNow(ctx, fixtureShop, "", pr)
		done <- err
	}()
	assert.Eventually(t, inProgress, 2*time.Second, 10*time.Millisecond)

	// 第二个运行先结束，标记保留
	_, err := svc.RunNow(ctx, fixtureShop, "", strings.NewReader(smallExport))
	require.NoError(t, err)
	assert.True(t, inProgress())

	_, err = pw.Write([]byte(smallExport))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	assert.False(t, inProgress())
}
