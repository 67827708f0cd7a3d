package snap

import (
	"encoding/json"
	"math"

	"listing-map/internal/mapview"
	"listing-map/internal/metrics"

	"github.com/paulmach/orb"
)

type Kind int

const (
	None Kind = iota
	Vertex
	Edge
)

func (k Kind) String() string {
	switch k {
	case Vertex:
		return "vertex"
	case Edge:
		return "edge"
	default:
		return "none"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

// Result 一次吸附查询的结果；Anchor 为空表示未吸附
type Result struct {
	ResolvedPoint orb.Point  `json:"resolved"`
	Anchor        *orb.Point `json:"anchor,omitempty"`
	Kind          Kind       `json:"kind"`
	DistancePx    float64    `json:"distance_px,omitempty"`
}

func miss(p orb.Point) Result { return Result{ResolvedPoint: p, Kind: None} }

// closestOnSegment 返回 p 在线段 ab 上的最近点（夹在端点之间）
func closestOnSegment(p, a, b mapview.Pixel) mapview.Pixel {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return mapview.Pixel{X: a.X + t*dx, Y: a.Y + t*dy}
}

// 文档注释：吸附查询
// 背景：对所有缓存环计算指针到每个顶点的距离与到每条边（含闭合边）的垂足距离，全部在屏幕像素空间比较；
// 分别记录全局最近顶点与最近边投影。
// 约束：阈值内的顶点无条件优先于更近的边；二者都不满足时返回原始位置。
// 索引未生效（关闭、投影缩放低于 MinZoom、无数据）时直接返回原始位置。
func (idx *Index) Query(pointer mapview.Pixel, proj mapview.Projector) Result {
	orig := proj.ToGeo(pointer)
	idx.mu.Lock()
	rings := idx.rings
	enabled := idx.enabled
	idx.mu.Unlock()

	if !enabled || proj.Zoom() < idx.opts.MinZoom || len(rings) == 0 {
		metrics.SnapQueriesTotal.WithLabelValues(None.String()).Inc()
		return miss(orig)
	}

	thr := idx.opts.ThresholdPx
	// 阈值框换算到经纬度，用于粗筛
	reach := orb.Bound{Min: orig, Max: orig}.
		Extend(proj.ToGeo(mapview.Pixel{X: pointer.X - thr, Y: pointer.Y - thr})).
		Extend(proj.ToGeo(mapview.Pixel{X: pointer.X + thr, Y: pointer.Y + thr}))

	bestV, bestE := math.Inf(1), math.Inf(1)
	var vAnchor orb.Point
	var ePx mapview.Pixel
	for _, r := range rings {
		if !r.b.Intersects(reach) {
			continue
		}
		n := len(r.pts)
		px := make([]mapview.Pixel, n)
		for i, p := range r.pts {
			px[i] = proj.ToScreen(p)
			if d := px[i].Dist(pointer); d < bestV {
				bestV, vAnchor = d, p
			}
		}
		for i := 0; i < n; i++ {
			a, b := px[i], px[(i+1)%n]
			cp := closestOnSegment(pointer, a, b)
			if d := cp.Dist(pointer); d < bestE {
				bestE, ePx = d, cp
			}
		}
	}

	switch {
	case bestV <= thr:
		a := vAnchor
		metrics.SnapQueriesTotal.WithLabelValues(Vertex.String()).Inc()
		return Result{ResolvedPoint: a, Anchor: &a, Kind: Vertex, DistancePx: bestV}
	case bestE <= thr:
		a := proj.ToGeo(ePx)
		metrics.SnapQueriesTotal.WithLabelValues(Edge.String()).Inc()
		return Result{ResolvedPoint: a, Anchor: &a, Kind: Edge, DistancePx: bestE}
	}
	metrics.SnapQueriesTotal.WithLabelValues(None.String()).Inc()
	return miss(orig)
}
