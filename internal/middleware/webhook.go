package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"omnibus_dev_v1_202610/pkg/metrics"
)

// Shopify webhook 请求头
const (
	HeaderTopic      = "X-Shopify-Topic"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
)

const ctxWebhookBody = "webhook_body"

// ==================== Webhook 上下文 ====================

type webhookContextKey struct{}

// WebhookInfo 一次投递的元信息
type WebhookInfo struct {
	Topic      string
	Shop       string
	DeliveryID string
}

// WithWebhookInfo 注入到 request context
func WithWebhookInfo(ctx context.Context, info *WebhookInfo) context.Context {
	return context.WithValue(ctx, webhookContextKey{}, info)
}

// GetWebhookInfo 从 context 获取投递信息
func GetWebhookInfo(ctx context.Context) *WebhookInfo {
	if info, ok := ctx.Value(webhookContextKey{}).(*WebhookInfo); ok {
		return info
	}
	return nil
}

// GetWebhookBody 获取已读取的请求体
func GetWebhookBody(c *gin.Context) []byte {
	if v, ok := c.Get(ctxWebhookBody); ok {
		if body, ok := v.([]byte); ok {
			return body
		}
	}
	return nil
}

// ==================== 中间件 ====================

// WebhookContext 读取请求体与投递头，缺少必要信息时返回 400
func WebhookContext(maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := &WebhookInfo{
			Topic:      c.GetHeader(HeaderTopic),
			Shop:       c.GetHeader(HeaderShopDomain),
			DeliveryID: c.GetHeader(HeaderWebhookID),
		}
		if info.Topic == "" || info.Shop == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": 400, "message": "缺少 webhook 请求头"})
			return
		}

		reader := c.Request.Body
		if maxBodyBytes > 0 {
			reader = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"code": 413, "message": "请求体读取失败"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		c.Set(ctxWebhookBody, body)
		c.Request = c.Request.WithContext(WithWebhookInfo(c.Request.Context(), info))
		c.Next()
	}
}

// VerifyHMAC 校验 X-Shopify-Hmac-Sha256（base64(HMAC-SHA256(secret, body))）
// 必须挂在 WebhookContext 之后
func VerifyHMAC(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ValidHMAC(secret, GetWebhookBody(c), c.GetHeader(HeaderHmac)) {
			metrics.RecordWebhook(c.GetHeader(HeaderTopic), "unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "签名校验失败"})
			return
		}
		c.Next()
	}
}

// ValidHMAC 常量时间比较签名
func ValidHMAC(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// WebhookDedupe 投递去重，重复投递直接返回 200
// 没有投递 ID 的请求照常处理
func WebhookDedupe(gate DeliveryGate, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetWebhookInfo(c.Request.Context())
		if info == nil || info.DeliveryID == "" {
			c.Next()
			return
		}

		first, err := gate.MarkSeen(c.Request.Context(), info.DeliveryID)
		if err != nil {
			// 去重存储不可用时照常处理
			log.Warnf("[Webhook] 投递去重失败 %s: %v", info.DeliveryID, err)
			c.Next()
			return
		}
		if !first {
			metrics.RecordWebhook(info.Topic, "duplicate")
			log.Infof("[Webhook] 重复投递 %s (%s)，已忽略", info.DeliveryID, info.Topic)
			c.AbortWithStatusJSON(http.StatusOK, gin.H{"code": 200, "message": "duplicate"})
			return
		}
		c.Next()
	}
}
