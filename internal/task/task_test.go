package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"omnibus_dev_v1_202610/internal/middleware"
	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ==================== 测试替身 ====================

type fakeShops struct {
	shops []model.Shop
	err   error
}

func (f *fakeShops) ListActive(ctx context.Context) ([]model.Shop, error) {
	return f.shops, f.err
}

type fakeSyncer struct {
	mu       sync.Mutex
	calls    []string
	failing  map[string]bool
	inflight int32
	peak     int32
}

func (f *fakeSyncer) SyncShop(ctx context.Context, domain string) (*service.CollectionSyncResult, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.calls = append(f.calls, domain)
	f.mu.Unlock()

	if f.failing[domain] {
		return nil, errors.New("boom")
	}
	return &service.CollectionSyncResult{Collections: 2, Links: 3}, nil
}

type fakeRunner struct{ runs int32 }

func (f *fakeRunner) Run(ctx context.Context) { atomic.AddInt32(&f.runs, 1) }

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

func shopsNamed(names ...string) []model.Shop {
	out := make([]model.Shop, 0, len(names))
	for _, n := range names {
		out = append(out, model.Shop{Domain: n})
	}
	return out
}

// ==================== CollectionSyncTask 测试 ====================

func TestCollectionSyncTask_SyncAll(t *testing.T) {
	shops := &fakeShops{shops: shopsNamed("a.myshopify.com", "b.myshopify.com", "c.myshopify.com")}
	syncer := &fakeSyncer{failing: map[string]bool{"b.myshopify.com": true}}

	task := NewCollectionSyncTask(shops, syncer, "@every 1h", testLogger(t))
	summary := task.SyncAll(context.Background())

	assert.Equal(t, 3, summary.Shops)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Collections)
	assert.Equal(t, 6, summary.Links)
	assert.ElementsMatch(t, []string{"a.myshopify.com", "b.myshopify.com", "c.myshopify.com"}, syncer.calls)
}

func TestCollectionSyncTask_RespectsConcurrency(t *testing.T) {
	shops := &fakeShops{shops: shopsNamed("1", "2", "3", "4", "5", "6", "7", "8")}
	syncer := &fakeSyncer{}

	task := NewCollectionSyncTask(shops, syncer, "@every 1h", testLogger(t))
	task.SetConcurrency(2)
	summary := task.SyncAll(context.Background())

	assert.Equal(t, 8, summary.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&syncer.peak), int32(2))
}

func TestCollectionSyncTask_ListError(t *testing.T) {
	shops := &fakeShops{err: errors.New("db down")}
	syncer := &fakeSyncer{}

	summary := NewCollectionSyncTask(shops, syncer, "@every 1h", testLogger(t)).SyncAll(context.Background())

	assert.Equal(t, CollectionSyncSummary{}, summary)
	assert.Empty(t, syncer.calls)
}

func TestCollectionSyncTask_CancelledContext(t *testing.T) {
	shops := &fakeShops{shops: shopsNamed("a", "b")}
	syncer := &fakeSyncer{}

	task := NewCollectionSyncTask(shops, syncer, "@every 1h", testLogger(t))
	task.SetConcurrency(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := task.SyncAll(ctx)

	// 已取消的 ctx 下至多有一个店铺抢到信号量
	assert.LessOrEqual(t, summary.Succeeded+summary.Failed, 1)
}

// ==================== GatePruneTask 测试 ====================

func TestGatePruneTask_Prune(t *testing.T) {
	gate := middleware.NewMemoryGate(time.Minute)
	ctx := context.Background()

	fresh, err := gate.MarkSeen(ctx, "delivery-1")
	require.NoError(t, err)
	require.True(t, fresh)
	_, err = gate.MarkSeen(ctx, "delivery-2")
	require.NoError(t, err)

	task := NewGatePruneTask(gate, "@every 1m", testLogger(t))
	assert.Equal(t, 0, task.Prune())

	task.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 2, task.Prune())
	assert.Equal(t, 0, gate.Len())
}

// ==================== TaskManager 测试 ====================

func TestTaskManager_Status(t *testing.T) {
	deps := &TaskManagerDeps{
		ShopRepo:       &fakeShops{},
		CollectionSync: &fakeSyncer{},
		Gate:           middleware.NewMemoryGate(time.Minute),
		Log:            testLogger(t),
	}

	tm := NewTaskManager(deps, DefaultConfig())
	assert.Equal(t, map[string]bool{
		"collection_sync":    true,
		"gate_prune":         true,
		"partition_maintain": false,
	}, tm.Status())

	deps.PartitionRunner = &fakeRunner{}
	tm = NewTaskManager(deps, DefaultConfig())
	assert.True(t, tm.Status()["partition_maintain"])
}

func TestTaskManager_Disabled(t *testing.T) {
	deps := &TaskManagerDeps{
		ShopRepo:       &fakeShops{},
		CollectionSync: &fakeSyncer{},
		Gate:           middleware.NewMemoryGate(time.Minute),
	}
	cfg := DefaultConfig()
	cfg.Enabled = false

	tm := NewTaskManager(deps, cfg)

	_, err := tm.TriggerCollectionSync(context.Background())
	assert.ErrorIs(t, err, ErrTaskDisabled)
	_, err = tm.TriggerGatePrune()
	assert.ErrorIs(t, err, ErrTaskDisabled)

	require.NoError(t, tm.Start())
	tm.Stop()
}

func TestTaskManager_Trigger(t *testing.T) {
	syncer := &fakeSyncer{}
	tm := NewTaskManager(&TaskManagerDeps{
		ShopRepo:       &fakeShops{shops: shopsNamed("a.myshopify.com")},
		CollectionSync: syncer,
		Gate:           middleware.NewMemoryGate(time.Minute),
		Log:            testLogger(t),
	}, nil)

	summary, err := tm.TriggerCollectionSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	removed, err := tm.TriggerGatePrune()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestTaskManager_StartStop(t *testing.T) {
	tm := NewTaskManager(&TaskManagerDeps{
		ShopRepo:        &fakeShops{},
		CollectionSync:  &fakeSyncer{},
		Gate:            middleware.NewMemoryGate(time.Minute),
		PartitionRunner: &fakeRunner{},
		Log:             testLogger(t),
	}, DefaultConfig())

	require.NoError(t, tm.Start())
	tm.Stop()
}

func TestTaskManager_InvalidSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GatePruneSpec = "not a cron"

	tm := NewTaskManager(&TaskManagerDeps{
		Gate: middleware.NewMemoryGate(time.Minute),
		Log:  testLogger(t),
	}, cfg)

	assert.Error(t, tm.Start())
}

func TestPartitionMaintainTask_Runs(t *testing.T) {
	runner := &fakeRunner{}
	task := NewPartitionMaintainTask(runner, "@every 1s", testLogger(t))
	require.NoError(t, task.Start())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runner.runs) > 0 }, 3*time.Second, 50*time.Millisecond)
	task.Stop()
}
