package outline

import (
	"context"
	"math"
	"strconv"
	"time"

	"listing-map/internal/logger"
	"listing-map/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"
)

// 量化网格（度）；约 500m，视口小幅平移时命中同一键
const gridDeg = 0.005

// 文档注释：带缓存的数据源装饰器
// 背景：先查进程内 LRU，再查 Redis（可选），均未命中时回源；回源时把包围盒外扩到网格边界，
// 使相邻视口共享同一缓存键，返回结果覆盖原始视口。
// 约束：Redis 读写失败静默降级为回源；空结果同样缓存，避免对无建筑区域反复请求。
type CachedSource struct {
	src Source
	lru *LRU
	rc  *redis.Client
	ttl time.Duration
}

// NewCachedSource rc 可为 nil
func NewCachedSource(src Source, lru *LRU, rc *redis.Client, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSource{src: src, lru: lru, rc: rc, ttl: ttl}
}

func (c *CachedSource) Name() string { return c.src.Name() }

func (c *CachedSource) Heartbeat(ctx context.Context) error { return c.src.Heartbeat(ctx) }

// Quantize 将包围盒外扩到网格边界
func Quantize(b orb.Bound) orb.Bound {
	down := func(v float64) float64 { return math.Floor(v/gridDeg) * gridDeg }
	up := func(v float64) float64 { return math.Ceil(v/gridDeg) * gridDeg }
	return orb.Bound{
		Min: orb.Point{down(b.Min.Lon()), down(b.Min.Lat())},
		Max: orb.Point{up(b.Max.Lon()), up(b.Max.Lat())},
	}
}

func (c *CachedSource) key(q orb.Bound) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	return "outline:" + c.src.Name() + ":" + f(q.Min.Lon()) + ":" + f(q.Min.Lat()) + ":" + f(q.Max.Lon()) + ":" + f(q.Max.Lat())
}

func (c *CachedSource) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	q := Quantize(b)
	key := c.key(q)
	l := logger.Component("outline")
	if c.lru != nil {
		if fc, ok := c.lru.Get(key); ok {
			metrics.OutlineCacheHitsTotal.WithLabelValues("lru").Inc()
			return fc, nil
		}
		metrics.OutlineCacheMissesTotal.WithLabelValues("lru").Inc()
	}
	if c.rc != nil {
		if s, err := c.rc.Get(ctx, key).Bytes(); err == nil && len(s) > 0 {
			if fc, err := geojson.UnmarshalFeatureCollection(s); err == nil {
				metrics.OutlineCacheHitsTotal.WithLabelValues("redis").Inc()
				if c.lru != nil {
					c.lru.Set(key, fc)
				}
				return fc, nil
			}
		} else if err != nil && err != redis.Nil {
			l.Debug("outline_redis_get_error", "key", key, "err", err)
		}
		metrics.OutlineCacheMissesTotal.WithLabelValues("redis").Inc()
	}
	fc, err := c.src.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if c.lru != nil {
		c.lru.Set(key, fc)
	}
	if c.rc != nil {
		if bs, err := fc.MarshalJSON(); err == nil {
			if err := c.rc.Set(ctx, key, bs, c.ttl).Err(); err != nil {
				l.Debug("outline_redis_set_error", "key", key, "err", err)
			}
		}
	}
	return fc, nil
}
