package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"omnibus_dev_v1_202610/internal/bulk"
	"omnibus_dev_v1_202610/internal/config"
	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/database"
	"omnibus_dev_v1_202610/pkg/shopify"
)

const fixtureShop = "demo.myshopify.com"

// recordingCalculator 记录计算请求
type recordingCalculator struct {
	mu    sync.Mutex
	calls []int64
}

func (c *recordingCalculator) ComputeForProduct(_ context.Context, productID int64, _ string, _ model.ShopSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, productID)
	return nil
}

func (c *recordingCalculator) Calls() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.calls...)
}

// stubShopify 替代 shopify.Client
type stubShopify struct {
	bulkOp      *shopify.BulkOperation
	export      string
	collections []shopify.CollectionNode
	collection  *shopify.CollectionNode
	discount    *shopify.DiscountNode
	err         error
}

func (s *stubShopify) GetBulkOperation(context.Context, shopify.Credentials, string) (*shopify.BulkOperation, error) {
	return s.bulkOp, s.err
}

func (s *stubShopify) OpenExport(context.Context, string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.export)), nil
}

func (s *stubShopify) WalkCollections(_ context.Context, _ shopify.Credentials, fn func(*shopify.CollectionNode) error) error {
	if s.err != nil {
		return s.err
	}
	for i := range s.collections {
		if err := fn(&s.collections[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubShopify) GetCollection(context.Context, shopify.Credentials, string) (*shopify.CollectionNode, error) {
	return s.collection, s.err
}

func (s *stubShopify) GetDiscount(context.Context, shopify.Credentials, string) (*shopify.DiscountNode, error) {
	return s.discount, s.err
}

type serviceEnv struct {
	shops     repository.ShopRepository
	catalog   repository.CatalogRepository
	history   repository.PriceHistoryRepository
	discounts repository.DiscountRepository
	runs      repository.SyncRunRepository
	calc      *recordingCalculator
	stub      *stubShopify
	cfg       config.BulkConfig
	log       *zap.SugaredLogger
}

func setupServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(append(model.AllModels(), model.PartitionedModels()...)...))

	env := &serviceEnv{
		shops:     repository.NewShopRepository(db),
		catalog:   repository.NewCatalogRepository(db),
		history:   repository.NewPriceHistoryRepository(db),
		discounts: repository.NewDiscountRepository(db),
		runs:      repository.NewSyncRunRepository(db),
		calc:      &recordingCalculator{},
		stub:      &stubShopify{},
		cfg:       config.BulkConfig{ComputeConcurrency: 2, DefaultCurrency: "USD", DefaultTimeframe: 30},
		log:       zaptest.NewLogger(t).Sugar(),
	}
	require.NoError(t, env.shops.Upsert(context.Background(), &model.Shop{
		Domain:       fixtureShop,
		CurrencyCode: "EUR",
		AccessToken:  "shpat_x",
	}))
	return env
}

func (env *serviceEnv) engine() *bulk.Engine {
	return bulk.NewEngine(env.catalog, env.history, env.discounts, env.runs, env.stub, env.calc,
		bulk.Options{ComputeConcurrency: 2, DefaultCurrency: "USD"}, env.log)
}

func (env *serviceEnv) bulkService() *BulkSyncService {
	return NewBulkSyncService(env.shops, env.engine(), env.stub, env.cfg, env.log)
}

func (env *serviceEnv) collectionService() *CollectionSyncService {
	return NewCollectionSyncService(env.shops, env.catalog, env.stub, env.log)
}

func (env *serviceEnv) webhookService(bulkHandler BulkFinishHandler) *WebhookService {
	return NewWebhookService(env.shops, env.catalog, env.history, env.discounts, bulkHandler,
		env.collectionService(), env.stub, env.calc, env.cfg, env.log)
}
