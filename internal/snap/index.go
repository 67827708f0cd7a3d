// 包 snap：建筑轮廓吸附索引
// 背景：按当前视口缓存参考多边形，在屏幕像素空间中为指针位置寻找最近的顶点或边；
// 数据通过防抖后的异步拉取刷新，请求按发起顺序“后发者胜”。
// 约束：拉取失败不报错，保留旧数据；不可用时查询原样返回指针位置。
package snap

import (
	"context"
	"sync"
	"time"

	"listing-map/internal/logger"
	"listing-map/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	DefaultMinZoom     = 16
	DefaultThresholdPx = 15
	DefaultDebounce    = 500 * time.Millisecond
	DefaultTimeout     = 4 * time.Second
)

// Fetcher 轮廓数据来源；outline.Manager 与各 outline.Source 均满足
type Fetcher interface {
	Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error)
}

// Effectiveness 用户可见的三种吸附状态
type Effectiveness string

const (
	Off     Effectiveness = "off"
	Pending Effectiveness = "pending"
	Active  Effectiveness = "active"
)

type Options struct {
	Enabled      bool
	MinZoom      float64
	ThresholdPx  float64
	Debounce     time.Duration
	FetchTimeout time.Duration
	After        AfterFunc
	// OnChange 在吸附状态变化时调用，不持锁
	OnChange func(Effectiveness)
}

type ring struct {
	pts orb.Ring
	b   orb.Bound
}

// 文档注释：吸附索引
// 背景：视口停止移动后刷新；资格 = 用户开启 且 缩放级别 >= MinZoom。
// 约束：防抖回调运行在定时器 goroutine 上，所有字段由 mu 保护；rings 只整体替换，不原地修改。
type Index struct {
	mu      sync.Mutex
	fetcher Fetcher
	opts    Options
	deb     *Debouncer

	enabled bool
	hasView bool
	bound   orb.Bound
	zoom    float64

	rings []ring
	seq   uint64
	last  Effectiveness
}

func NewIndex(f Fetcher, opts Options) *Index {
	if opts.MinZoom <= 0 {
		opts.MinZoom = DefaultMinZoom
	}
	if opts.ThresholdPx <= 0 {
		opts.ThresholdPx = DefaultThresholdPx
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultTimeout
	}
	idx := &Index{fetcher: f, opts: opts, enabled: opts.Enabled}
	idx.deb = NewDebouncer(opts.Debounce, opts.After)
	idx.last = idx.effectivenessLocked()
	return idx
}

func (idx *Index) MinZoom() float64     { return idx.opts.MinZoom }
func (idx *Index) ThresholdPx() float64 { return idx.opts.ThresholdPx }

func (idx *Index) eligibleLocked(zoom float64) bool {
	return idx.enabled && zoom >= idx.opts.MinZoom && idx.fetcher != nil
}

func (idx *Index) effectivenessLocked() Effectiveness {
	if !idx.enabled {
		return Off
	}
	if idx.hasView && idx.zoom >= idx.opts.MinZoom && len(idx.rings) > 0 {
		return Active
	}
	return Pending
}

// Effectiveness 当前吸附状态
func (idx *Index) Effectiveness() Effectiveness {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.effectivenessLocked()
}

func (idx *Index) Enabled() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.enabled
}

// Len 缓存的环数量
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.rings)
}

// notify 需在解锁后调用
func (idx *Index) notify() {
	idx.mu.Lock()
	cur := idx.effectivenessLocked()
	changed := cur != idx.last
	idx.last = cur
	cb := idx.opts.OnChange
	idx.mu.Unlock()
	if changed && cb != nil {
		cb(cur)
	}
}

// clearLocked 清空数据并使在途请求失效
func (idx *Index) clearLocked() {
	idx.deb.Cancel()
	idx.rings = nil
	idx.seq++
}

func (idx *Index) scheduleLocked() {
	b, z := idx.bound, idx.zoom
	idx.deb.Trigger(func() { idx.Refresh(context.Background(), b, z) })
}

// ViewportChanged 视口移动/缩放结束时调用
func (idx *Index) ViewportChanged(b orb.Bound, zoom float64) {
	idx.mu.Lock()
	idx.bound, idx.zoom, idx.hasView = b, zoom, true
	if idx.eligibleLocked(zoom) {
		idx.scheduleLocked()
	} else {
		idx.clearLocked()
	}
	idx.mu.Unlock()
	idx.notify()
}

// SetEnabled 用户开关；开启且视口已满足条件时安排一次刷新
func (idx *Index) SetEnabled(on bool) {
	idx.mu.Lock()
	idx.enabled = on
	if !on {
		idx.clearLocked()
	} else if idx.hasView && idx.eligibleLocked(idx.zoom) {
		idx.scheduleLocked()
	}
	idx.mu.Unlock()
	logger.Component("snap").Debug("snap_enabled", "enabled", on)
	idx.notify()
}

// Reset 清空视口与数据，开关状态保持不变
func (idx *Index) Reset() {
	idx.mu.Lock()
	idx.clearLocked()
	idx.hasView = false
	idx.bound, idx.zoom = orb.Bound{}, 0
	idx.mu.Unlock()
	idx.notify()
}

// Refresh 立即拉取；被更新请求取代或期间变为不可用时丢弃结果，失败时保留旧数据
func (idx *Index) Refresh(ctx context.Context, b orb.Bound, zoom float64) {
	idx.mu.Lock()
	if !idx.eligibleLocked(zoom) {
		idx.mu.Unlock()
		return
	}
	idx.seq++
	my := idx.seq
	f := idx.fetcher
	idx.mu.Unlock()

	l := logger.Component("snap")
	cctx, cancel := context.WithTimeout(ctx, idx.opts.FetchTimeout)
	defer cancel()
	fc, err := f.Fetch(cctx, b)

	idx.mu.Lock()
	if my != idx.seq {
		idx.mu.Unlock()
		metrics.SnapRefreshTotal.WithLabelValues("stale").Inc()
		l.Debug("snap_refresh_stale", "seq", my)
		return
	}
	if err != nil {
		idx.mu.Unlock()
		metrics.SnapRefreshTotal.WithLabelValues("failed").Inc()
		l.Debug("snap_refresh_failed", "err", err)
		return
	}
	idx.rings = extractRings(fc)
	n := len(idx.rings)
	idx.mu.Unlock()
	metrics.SnapRefreshTotal.WithLabelValues("applied").Inc()
	l.Debug("snap_refresh_applied", "seq", my, "rings", n, "zoom", zoom)
	idx.notify()
}

// extractRings 单面与多面统一展开为环
func extractRings(fc *geojson.FeatureCollection) []ring {
	if fc == nil {
		return nil
	}
	var out []ring
	add := func(p orb.Polygon) {
		for _, r := range p {
			if len(r) < 2 {
				continue
			}
			out = append(out, ring{pts: r, b: r.Bound()})
		}
	}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			add(g)
		case orb.MultiPolygon:
			for _, p := range g {
				add(p)
			}
		}
	}
	return out
}
