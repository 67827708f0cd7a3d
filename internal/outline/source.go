// 包 outline：建筑轮廓数据源
// 背景：吸附索引需要按视口拉取建筑轮廓（Polygon/MultiPolygon）；数据可来自远端 HTTP 服务、本地 GeoJSON 目录，
// 并可叠加进程内 LRU 与 Redis 缓存。
// 约束：拉取失败只返回 error，由调用方降级为“无吸附候选”，不得中断绘制流程。
package outline

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoSource  = errors.New("no healthy outline source")
	ErrBadStatus = errors.New("outline source bad status")
)

// Source 统一数据源契约
type Source interface {
	Name() string
	Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error)
	Heartbeat(ctx context.Context) error
}

// Polygonal 只保留面要素；其他几何类型对吸附无意义
func Polygonal(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			out.Append(f)
		}
	}
	return out
}
