// 包 middleware：HTTP 入口中间件
package middleware

import (
	"net/http"
	"sync"
	"time"

	"listing-map/internal/logger"
	"listing-map/internal/metrics"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：吸附索引刷新与悬停查询在拖动地图时会密集到达，流量峰值时对入口限速，避免外部轮廓数据源被打满。
// 约束：简化实现，不做排队，超出时直接返回 429；按秒整体补满令牌。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		qps = 200
	}
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimit 未启用时原样返回 next
func RateLimit(enabled bool, qps int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		tb := NewTokenBucket(qps)
		l := logger.Component("ratelimit")
		l.Info("rate_limit_enabled", "qps", tb.capacity)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.allow() {
				metrics.RateLimitedTotal.Inc()
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
