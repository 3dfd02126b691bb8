package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ==================== 投递去重 ====================

func TestMemoryGate_MarkSeen(t *testing.T) {
	gate := NewMemoryGate(time.Hour)
	ctx := context.Background()

	first, err := gate.MarkSeen(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := gate.MarkSeen(ctx, "d-1")
	require.NoError(t, err)
	assert.False(t, again)

	other, _ := gate.MarkSeen(ctx, "d-2")
	assert.True(t, other)
	assert.Equal(t, 2, gate.Len())
}

func TestMemoryGate_ConcurrentSingleWinner(t *testing.T) {
	gate := NewMemoryGate(time.Hour)
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := gate.MarkSeen(context.Background(), "same"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, winners.Load())
}

func TestMemoryGate_Prune(t *testing.T) {
	gate := NewMemoryGate(time.Minute)
	_, _ = gate.MarkSeen(context.Background(), "old")

	assert.Zero(t, gate.Prune(time.Now()))
	assert.Equal(t, 1, gate.Prune(time.Now().Add(2*time.Minute)))
	assert.Zero(t, gate.Len())

	again, _ := gate.MarkSeen(context.Background(), "old")
	assert.True(t, again)
}

type fakeSetNX struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeSetNX) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestRedisGate_MarkSeen(t *testing.T) {
	client := &fakeSetNX{keys: map[string]time.Duration{}}
	gate := NewRedisGate(client, "test:", 72*time.Hour)

	first, err := gate.MarkSeen(context.Background(), "d-1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 72*time.Hour, client.keys["test:d-1"])

	again, err := gate.MarkSeen(context.Background(), "d-1")
	require.NoError(t, err)
	assert.False(t, again)
	assert.Zero(t, gate.Prune(time.Now()))

	client.err = errors.New("connection refused")
	_, err = gate.MarkSeen(context.Background(), "d-2")
	assert.Error(t, err)
}

// ==================== Webhook 中间件 ====================

func newWebhookRouter(t *testing.T, secret string, gate DeliveryGate, handled *int) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks",
		WebhookContext(1<<20),
		VerifyHMAC(secret),
		WebhookDedupe(gate, zaptest.NewLogger(t).Sugar()),
		func(c *gin.Context) {
			info := GetWebhookInfo(c.Request.Context())
			if info != nil && len(GetWebhookBody(c)) > 0 {
				*handled++
			}
			c.JSON(http.StatusOK, gin.H{"code": 200})
		})
	return r
}

func webhookRequest(body, signature, deliveryID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set(HeaderTopic, "products/update")
	req.Header.Set(HeaderShopDomain, "demo.myshopify.com")
	req.Header.Set(HeaderHmac, signature)
	if deliveryID != "" {
		req.Header.Set(HeaderWebhookID, deliveryID)
	}
	return req
}

func TestWebhookMiddleware_Flow(t *testing.T) {
	handled := 0
	r := newWebhookRouter(t, "secret", NewMemoryGate(time.Hour), &handled)
	body := `{"id":1}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, webhookRequest(body, sign("secret", body), "d-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, handled)

	// 重复投递不再进入处理器
	w = httptest.NewRecorder()
	r.ServeHTTP(w, webhookRequest(body, sign("secret", body), "d-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Equal(t, 1, handled)

	// 签名错误
	w = httptest.NewRecorder()
	r.ServeHTTP(w, webhookRequest(body, sign("other", body), "d-2"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, handled)
}

func TestWebhookMiddleware_MissingHeaders(t *testing.T) {
	handled := 0
	r := newWebhookRouter(t, "secret", NewMemoryGate(time.Hour), &handled)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, handled)
}

func TestValidHMAC(t *testing.T) {
	body := []byte(`{"id":1}`)
	assert.True(t, ValidHMAC("s", body, sign("s", string(body))))
	assert.False(t, ValidHMAC("s", body, "not-base64!"))
	assert.False(t, ValidHMAC("", body, sign("", string(body))))
	assert.False(t, ValidHMAC("s", body, ""))
}

// ==================== 同步限流 ====================

func TestSyncRateLimit(t *testing.T) {
	limiter := NewSyncRateLimiter()
	status := http.StatusAccepted

	r := gin.New()
	r.POST("/sync/:shop", SyncRateLimit(limiter, SyncTypeBulk, time.Hour), func(c *gin.Context) {
		c.JSON(status, gin.H{"code": status})
	})

	do := func(shop string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/"+shop, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, do("a.myshopify.com"))
	assert.Equal(t, http.StatusTooManyRequests, do("a.myshopify.com"))
	assert.Equal(t, http.StatusAccepted, do("b.myshopify.com"))

	// 被拒绝的请求不占用冷却
	status = http.StatusNotFound
	assert.Equal(t, http.StatusNotFound, do("c.myshopify.com"))
	status = http.StatusAccepted
	assert.Equal(t, http.StatusAccepted, do("c.myshopify.com"))
}

func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "同步冷却中，请 30 秒后重试", formatRetryMessage(30*time.Second))
	assert.Equal(t, "同步冷却中，请 2 分钟后重试", formatRetryMessage(2*time.Minute))
	assert.Equal(t, "同步冷却中，请 1 分 5 秒后重试", formatRetryMessage(65*time.Second))
}
