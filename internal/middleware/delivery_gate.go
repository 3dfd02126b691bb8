package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ==================== Webhook 投递去重 ====================

// DeliveryGate 按投递 ID 去重
// 处理开始前即标记为已见，重复投递直接丢弃
type DeliveryGate interface {
	// MarkSeen 首次出现返回 true
	MarkSeen(ctx context.Context, deliveryID string) (bool, error)
	// Prune 清理过期记录，返回清理数量
	Prune(now time.Time) int
}

// MemoryGate 进程内去重，重启后失效
type MemoryGate struct {
	ttl  time.Duration
	seen sync.Map // deliveryID -> time.Time
}

// NewMemoryGate 创建进程内去重
func NewMemoryGate(ttl time.Duration) *MemoryGate {
	return &MemoryGate{ttl: ttl}
}

func (g *MemoryGate) MarkSeen(_ context.Context, deliveryID string) (bool, error) {
	now := time.Now()
	actual, loaded := g.seen.LoadOrStore(deliveryID, now)
	if !loaded {
		return true, nil
	}
	// 过期的记录视为未见过，只有一个调用方能替换成功
	if g.ttl > 0 && now.Sub(actual.(time.Time)) >= g.ttl {
		return g.seen.CompareAndSwap(deliveryID, actual, now), nil
	}
	return false, nil
}

func (g *MemoryGate) Prune(now time.Time) int {
	if g.ttl <= 0 {
		return 0
	}
	removed := 0
	g.seen.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) >= g.ttl {
			if g.seen.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Len 当前记录数
func (g *MemoryGate) Len() int {
	n := 0
	g.seen.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// setNXClient redis 客户端中用到的部分
type setNXClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisGate 基于 SETNX 的去重，多副本共享且重启不丢失
type RedisGate struct {
	client setNXClient
	prefix string
	ttl    time.Duration
}

// NewRedisGate 创建 redis 去重
func NewRedisGate(client setNXClient, prefix string, ttl time.Duration) *RedisGate {
	if prefix == "" {
		prefix = "omnibus:webhook:"
	}
	return &RedisGate{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGate) MarkSeen(ctx context.Context, deliveryID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+deliveryID, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("写入投递记录失败: %w", err)
	}
	return ok, nil
}

// Prune 过期由 redis TTL 处理
func (g *RedisGate) Prune(time.Time) int {
	return 0
}
