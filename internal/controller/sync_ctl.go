package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/internal/service"
)

// BulkRunStarter 手动触发对账
type BulkRunStarter interface {
	StartRun(ctx context.Context, domain, url string) error
}

// CollectionSyncer 集合全量同步
type CollectionSyncer interface {
	SyncShop(ctx context.Context, domain string) (*service.CollectionSyncResult, error)
}

// RunLister 运行记录查询
type RunLister interface {
	ListByShop(ctx context.Context, shop string, limit int) ([]model.SyncRun, error)
}

// SyncController 同步控制器
type SyncController struct {
	bulk        BulkRunStarter
	collections CollectionSyncer
	runs        RunLister
}

// NewSyncController 创建同步控制器
func NewSyncController(bulk BulkRunStarter, collections CollectionSyncer, runs RunLister) *SyncController {
	return &SyncController{bulk: bulk, collections: collections, runs: runs}
}

// TriggerBulkRunRequest 手动对账请求
type TriggerBulkRunRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// ==================== Handler 实现 ====================

// TriggerBulkRun 从导出文件 URL 手动对账
// @Summary 手动触发批量对账
// @Tags Sync
// @Param shop path string true "店铺域名"
// @Param body body TriggerBulkRunRequest true "导出文件地址"
// @Success 200 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{} "限流中"
// @Router /api/v1/sync/bulk/{shop} [post]
func (c *SyncController) TriggerBulkRun(ctx *gin.Context) {
	shop := ctx.Param("shop")

	var req TriggerBulkRunRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "参数错误: " + err.Error()})
		return
	}

	if err := c.bulk.StartRun(ctx.Request.Context(), shop, req.URL); err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "对账已触发",
		"data":    gin.H{"shop": shop},
	})
}

// SyncCollections 集合全量同步（同步执行）
// @Summary 手动同步集合
// @Tags Sync
// @Param shop path string true "店铺域名"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync/collections/{shop} [post]
func (c *SyncController) SyncCollections(ctx *gin.Context) {
	shop := ctx.Param("shop")

	res, err := c.collections.SyncShop(ctx.Request.Context(), shop)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "集合同步完成",
		"data":    res,
	})
}

// ListRuns 最近的运行记录
// @Summary 查询运行记录
// @Tags Sync
// @Param shop path string true "店铺域名"
// @Param limit query int false "数量，默认 20，最大 100"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync/runs/{shop} [get]
func (c *SyncController) ListRuns(ctx *gin.Context) {
	shop := ctx.Param("shop")

	limit := 20
	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "无效的 limit"})
			return
		}
		limit = min(n, 100)
	}

	runs, err := c.runs.ListByShop(ctx.Request.Context(), shop, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "success",
		"data":    gin.H{"list": runs, "total": len(runs)},
	})
}

// ==================== 辅助函数 ====================

func writeServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrShopNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
	case errors.Is(err, service.ErrShopInactive):
		ctx.JSON(http.StatusConflict, gin.H{"code": 409, "message": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
	}
}
