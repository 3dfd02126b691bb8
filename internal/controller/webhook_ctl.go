package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/internal/middleware"
	"omnibus_dev_v1_202610/internal/service"
	"omnibus_dev_v1_202610/pkg/metrics"
)

// WebhookHandler 按主题处理 webhook
type WebhookHandler interface {
	Handle(ctx context.Context, topic, domain string, body []byte) error
}

// WebhookController Shopify webhook 入口
type WebhookController struct {
	svc WebhookHandler
	log *zap.SugaredLogger
}

// NewWebhookController 创建 webhook 控制器
func NewWebhookController(svc WebhookHandler, log *zap.SugaredLogger) *WebhookController {
	return &WebhookController{svc: svc, log: log}
}

// Receive 接收 webhook
// 需要挂在 middleware.WebhookContext 之后
// 店铺不存在、已卸载或批量操作未完成时返回 200，避免平台重试
// @Summary Shopify webhook
// @Tags Webhook
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "内容无效"
// @Router /api/webhooks [post]
func (c *WebhookController) Receive(ctx *gin.Context) {
	info := middleware.GetWebhookInfo(ctx.Request.Context())
	if info == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "缺少 webhook 信息"})
		return
	}
	body := middleware.GetWebhookBody(ctx)

	err := c.svc.Handle(ctx.Request.Context(), info.Topic, info.Shop, body)
	switch {
	case err == nil:
		metrics.RecordWebhook(info.Topic, "ok")
		ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})

	case errors.Is(err, service.ErrInvalidPayload):
		metrics.RecordWebhook(info.Topic, "invalid")
		c.log.Warnf("[Webhook] %s 内容无效 (%s): %v", info.Topic, info.Shop, err)
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})

	case errors.Is(err, service.ErrShopNotFound),
		errors.Is(err, service.ErrShopInactive),
		errors.Is(err, service.ErrBulkNotReady):
		metrics.RecordWebhook(info.Topic, "ignored")
		c.log.Infof("[Webhook] %s 已忽略 (%s): %v", info.Topic, info.Shop, err)
		ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "ignored"})

	default:
		metrics.RecordWebhook(info.Topic, "error")
		c.log.Errorf("[Webhook] %s 处理失败 (%s): %v", info.Topic, info.Shop, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "处理失败"})
	}
}
