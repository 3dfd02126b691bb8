package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/repository"
	"omnibus_dev_v1_202610/pkg/metrics"
	"omnibus_dev_v1_202610/pkg/ndjson"
	"omnibus_dev_v1_202610/pkg/shopify"
)

// ExportFetcher 打开导出文件流
type ExportFetcher interface {
	OpenExport(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options 引擎参数
type Options struct {
	ChunkSize          int
	ComputeConcurrency int
	DefaultCurrency    string
}

// RunRequest 一次对账运行的输入
type RunRequest struct {
	Shop            string
	URL             string
	BulkOperationID string
	Source          string // model.RunSource*
	Settings        model.ShopSettings
	Market          string // 为空时使用 Options.DefaultCurrency
}

// Stats 运行统计
type Stats struct {
	Lines             int `json:"lines"`
	Products          int `json:"products"`
	Variants          int `json:"variants"`
	Collections       int `json:"collections"`
	Links             int `json:"links"`
	LinksDropped      int `json:"links_dropped"`
	DiscountRoots     int `json:"discount_roots"`
	TargetsAttached   int `json:"targets_attached"`
	TargetsUnresolved int `json:"targets_unresolved"`
	MalformedLines    int `json:"malformed_lines"`
	MalformedIDs      int `json:"malformed_ids"`
	Unsupported       int `json:"unsupported"`
	Unrecognized      int `json:"unrecognized"`
	WriteErrors       int `json:"write_errors"`
	DiscountsSaved    int `json:"discounts_saved"`
	ProductsComputed  int `json:"products_computed"`
	ComputeFailures   int `json:"compute_failures"`
}

// RunResult 运行结果
type RunResult struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
	Stats Stats  `json:"stats"`
}

// Engine 批量导出对账引擎
// 引擎本身无状态，每次 Run 创建独立的运行对象，可并发执行
type Engine struct {
	catalog   repository.CatalogRepository
	history   repository.PriceHistoryRepository
	discounts repository.DiscountRepository
	runs      repository.SyncRunRepository
	fetcher   ExportFetcher
	gateway   *Gateway
	opts      Options
	log       *zap.SugaredLogger
}

// NewEngine 创建引擎
func NewEngine(
	catalog repository.CatalogRepository,
	history repository.PriceHistoryRepository,
	discounts repository.DiscountRepository,
	runs repository.SyncRunRepository,
	fetcher ExportFetcher,
	calc ComplianceCalculator,
	opts Options,
	log *zap.SugaredLogger,
) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = ndjson.DefaultChunkSize
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	return &Engine{
		catalog:   catalog,
		history:   history,
		discounts: discounts,
		runs:      runs,
		fetcher:   fetcher,
		gateway:   NewGateway(calc, opts.ComputeConcurrency, log),
		opts:      opts,
		log:       log,
	}
}

// ==================== 运行状态机 ====================

var transitions = map[string][]string{
	model.RunStateStreaming:  {model.RunStateFinalizing, model.RunStateFailed},
	model.RunStateFinalizing: {model.RunStateDone, model.RunStateFailed},
}

// run 一次运行的全部状态：解析器、商品状态、涉及商品集合
type run struct {
	id        string
	req       RunRequest
	state     string
	stats     Stats
	startedAt time.Time

	resolver   *Resolver
	reconciler *Reconciler
	touched    *TouchedSet
}

func (r *run) transition(to string) error {
	for _, allowed := range transitions[r.state] {
		if allowed == to {
			r.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidRunState, r.state, to)
}

func (e *Engine) newRun(req RunRequest) *run {
	if req.Market == "" {
		req.Market = e.opts.DefaultCurrency
	}
	if req.Settings.Timeframe <= 0 {
		req.Settings.Timeframe = model.DefaultTimeframe
	}
	if req.Source == "" {
		req.Source = model.RunSourceManual
	}

	id := uuid.NewString()
	touched := NewTouchedSet()
	return &run{
		id:         id,
		req:        req,
		state:      model.RunStateStreaming,
		startedAt:  time.Now().UTC(),
		resolver:   NewResolver(),
		touched:    touched,
		reconciler: NewReconciler(e.catalog, e.history, req.Shop, req.Market, id, touched, e.log),
	}
}

// ==================== 入口 ====================

// Run 下载导出文件并对账
// 下载失败时不处理任何行，返回 *TransportError
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	rn := e.newRun(req)
	e.recordStart(ctx, rn)

	body, err := e.fetcher.OpenExport(ctx, req.URL)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{URL: req.URL, Err: err}
		}
		return e.fail(ctx, rn, err)
	}
	defer body.Close()

	return e.process(ctx, rn, body)
}

// RunReader 从已打开的流对账（命令行读取本地文件、测试）
func (e *Engine) RunReader(ctx context.Context, req RunRequest, r io.Reader) (*RunResult, error) {
	rn := e.newRun(req)
	e.recordStart(ctx, rn)
	return e.process(ctx, rn, r)
}

func (e *Engine) process(ctx context.Context, rn *run, r io.Reader) (*RunResult, error) {
	e.log.Infow("[BulkEngine] 开始对账", "run_id", rn.id, "shop", rn.req.Shop, "source", rn.req.Source)

	// 阶段一：流式分类 + 累积
	err := ndjson.Stream(ctx, r, e.opts.ChunkSize, func(line string) error {
		return e.handleLine(ctx, rn, line)
	})
	if err != nil {
		var readErr *ndjson.ReadError
		if errors.As(err, &readErr) {
			err = &TransportError{URL: rn.req.URL, Err: readErr.Err}
		}
		return e.fail(ctx, rn, err)
	}

	// 阶段二：折扣落库 + 合规计算
	if err := rn.transition(model.RunStateFinalizing); err != nil {
		return e.fail(ctx, rn, err)
	}
	e.finalize(ctx, rn)
	if err := ctx.Err(); err != nil {
		return e.fail(ctx, rn, err)
	}

	if err := rn.transition(model.RunStateDone); err != nil {
		return e.fail(ctx, rn, err)
	}
	e.recordFinish(ctx, rn, nil)

	e.log.Infow("[BulkEngine] 对账完成",
		"run_id", rn.id,
		"shop", rn.req.Shop,
		"lines", rn.stats.Lines,
		"products", rn.stats.Products,
		"variants", rn.stats.Variants,
		"discounts", rn.stats.DiscountsSaved,
		"computed", rn.stats.ProductsComputed,
		"duration", time.Since(rn.startedAt).String(),
	)
	return &RunResult{RunID: rn.id, State: rn.state, Stats: rn.stats}, nil
}

func (e *Engine) fail(ctx context.Context, rn *run, cause error) (*RunResult, error) {
	if rn.state != model.RunStateFailed {
		_ = rn.transition(model.RunStateFailed)
	}
	e.recordFinish(ctx, rn, cause)
	e.log.Errorw("[BulkEngine] 对账失败", "run_id", rn.id, "shop", rn.req.Shop, "error", cause)
	return &RunResult{RunID: rn.id, State: rn.state, Stats: rn.stats}, cause
}

// ==================== 阶段一：逐行处理 ====================

// handleLine 除 ctx 取消外所有错误都在这里消化
func (e *Engine) handleLine(ctx context.Context, rn *run, line string) error {
	rn.stats.Lines++

	rec, err := DecodeRecord(line)
	if err != nil {
		rn.stats.MalformedLines++
		metrics.RecordSkip("malformed_line")
		e.log.Warnf("[BulkEngine] 第 %d 行解析失败，已跳过: %v", rn.stats.Lines, err)
		return nil
	}

	kind, err := Classify(rec)
	metrics.RecordLine(kind.String())
	if err != nil {
		rn.stats.Unsupported++
		metrics.RecordSkip("unsupported_discount")
		e.log.Infof("[BulkEngine] 跳过折扣 %s: %v", rec.ID, err)
		return nil
	}

	err = e.apply(ctx, rn, kind, rec)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrMalformedIdentifier):
		rn.stats.MalformedIDs++
		metrics.RecordSkip("malformed_identifier")
		e.log.Warnf("[BulkEngine] 第 %d 行标识符无效，已跳过: %v", rn.stats.Lines, err)
	case errors.Is(err, ErrUnresolvedTarget):
		rn.stats.TargetsUnresolved++
		metrics.RecordSkip("unresolved_target")
		e.log.Debugf("[BulkEngine] 丢弃折扣目标 %s: %v", rec.ID, err)
	default:
		rn.stats.WriteErrors++
		metrics.RecordSkip("write_error")
		e.log.Errorf("[BulkEngine] 第 %d 行写入失败: %v", rn.stats.Lines, err)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, rn *run, kind Kind, rec *Record) error {
	switch kind {
	case KindProduct:
		id, err := shopify.ParseID(string(rec.ID))
		if err != nil {
			return err
		}
		if err := rn.reconciler.UpsertProduct(ctx, id, *rec.Handle, *rec.Status); err != nil {
			return err
		}
		rn.stats.Products++

	case KindVariant:
		variantID, err := shopify.ParseID(string(rec.ID))
		if err != nil {
			return err
		}
		productID, err := shopify.ParseID(string(rec.ParentID))
		if err != nil {
			return err
		}
		if err := rn.reconciler.UpsertVariant(ctx, variantID, productID, rec.Price, rec.CompareAtPrice); err != nil {
			return err
		}
		rn.stats.Variants++

	case KindCollection:
		id, err := shopify.ParseID(string(rec.ID))
		if err != nil {
			return err
		}
		if err := rn.reconciler.UpsertCollection(ctx, id, *rec.Handle, rec.Title); err != nil {
			return err
		}
		rn.stats.Collections++

	case KindProductCollectionLink:
		productID, err := shopify.ParseID(string(rec.ID))
		if err != nil {
			return err
		}
		collectionID, err := shopify.ParseID(string(rec.ParentID))
		if err != nil {
			return err
		}
		linked, err := rn.reconciler.LinkProductToCollection(ctx, productID, collectionID)
		if err != nil {
			return err
		}
		if linked {
			rn.stats.Links++
		} else {
			rn.stats.LinksDropped++
		}

	case KindDiscountRoot:
		return e.registerDiscount(rn, rec)

	case KindDiscountTargetProduct, KindDiscountTargetCollection:
		targetID, err := shopify.ParseID(string(rec.ID))
		if err != nil {
			return err
		}
		if kind == KindDiscountTargetProduct {
			err = rn.resolver.AttachProduct(string(rec.ParentID), targetID)
		} else {
			err = rn.resolver.AttachCollection(string(rec.ParentID), targetID)
		}
		if err != nil {
			return err
		}
		rn.stats.TargetsAttached++

	default:
		rn.stats.Unrecognized++
	}
	return nil
}

func (e *Engine) registerDiscount(rn *run, rec *Record) error {
	id, err := shopify.ParseID(string(rec.ID))
	if err != nil {
		return err
	}
	d := rec.Discount
	kind, err := DiscountKind(d.TypeName)
	if err != nil {
		return err
	}

	value, err := DecodeDiscountValue(d.CustomerGets.Value)
	if err != nil {
		e.log.Warnf("[BulkEngine] 折扣 %d 的值无法解析: %v", id, err)
		value = UnsupportedValue{}
	}
	normalized, supported := Normalize(value)
	if !supported {
		e.log.Warnf("[BulkEngine] 折扣 %d 值类型不受支持 (%T)，按 0%% 记录", id, value)
	}

	scope, _, err := DecodeTargetScope(d.CustomerGets.Items)
	if err != nil {
		e.log.Warnf("[BulkEngine] 折扣 %d 的范围无法解析: %v", id, err)
	}
	if scope.Sitewide() {
		e.log.Debugf("[BulkEngine] 折扣 %d 为全店折扣", id)
	}

	rn.resolver.Register(DiscountRoot{
		DiscountID: id,
		ParentKeys: []string{string(rec.ID), string(d.ID)},
		Kind:       kind,
		Title:      d.Title,
		Status:     d.Status,
		StartsAt:   d.StartsAt,
		EndsAt:     d.EndsAt,
		Normalized: normalized,
	})
	rn.stats.DiscountRoots++
	return nil
}

// ==================== 阶段二：收尾 ====================

func (e *Engine) finalize(ctx context.Context, rn *run) {
	for _, agg := range rn.resolver.Aggregates() {
		if ctx.Err() != nil {
			return
		}
		discount := agg.ToModel(rn.req.Shop)
		if err := e.discounts.MergeUpsert(ctx, discount); err != nil {
			rn.stats.WriteErrors++
			e.log.Errorf("[BulkEngine] 折扣 %d 落库失败: %v", agg.DiscountID, err)
			continue
		}
		rn.stats.DiscountsSaved++
	}

	ok, failed := e.gateway.Fire(ctx, rn.req.Shop, rn.req.Settings, rn.touched)
	rn.stats.ProductsComputed = ok
	rn.stats.ComputeFailures = failed
}

// ==================== 运行记录 ====================

func (e *Engine) recordStart(ctx context.Context, rn *run) {
	err := e.runs.Create(context.WithoutCancel(ctx), &model.SyncRun{
		RunID:           rn.id,
		Shop:            rn.req.Shop,
		Source:          rn.req.Source,
		BulkOperationID: rn.req.BulkOperationID,
		State:           rn.state,
		StartedAt:       rn.startedAt,
	})
	if err != nil {
		e.log.Warnf("[BulkEngine] 创建运行记录 %s 失败: %v", rn.id, err)
	}
}

func (e *Engine) recordFinish(ctx context.Context, rn *run, cause error) {
	finished := time.Now().UTC()
	stats, _ := json.Marshal(rn.stats)
	fields := map[string]interface{}{
		"state":       rn.state,
		"stats":       datatypes.JSON(stats),
		"finished_at": finished,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}

	// 运行被取消时 ctx 已失效，记录仍需写入
	if err := e.runs.Update(context.WithoutCancel(ctx), rn.id, fields); err != nil {
		e.log.Warnf("[BulkEngine] 更新运行记录 %s 失败: %v", rn.id, err)
	}
	metrics.RecordRun(rn.req.Source, rn.state, finished.Sub(rn.startedAt).Seconds())
}
