// 包 layer：构造图层模型与外部图层存储契约
// 背景：向导结束时把绘制或上传得到的几何交给图层存储；存储拥有图层，向导只持有其 ID 引用。
// 约束：编辑期间（StartEditing 之后）的修改可通过 StopEditing(commit=false) 回滚到编辑前快照。
package layer

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

var (
	ErrNotFound    = errors.New("layer not found")
	ErrNotEditing  = errors.New("layer not in editing mode")
	ErrNoGeometry  = errors.New("layer has no geometry")
	ErrBadGeometry = errors.New("unsupported layer geometry")
)

type Source string

const (
	FromDrawing Source = "drawing"
	FromUpload  Source = "upload"
)

// Layer 持久化的几何与元数据
type Layer struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Geometry  orb.Geometry `json:"-"`
	Radius    float64      `json:"radius,omitempty"`
	Bound     orb.Bound    `json:"bbox"`
	Visible   bool         `json:"visible"`
	Opacity   float64      `json:"opacity"`
	Source    Source       `json:"source"`
	Editing   bool         `json:"editing"`
	CreatedAt time.Time    `json:"created_at"`
}

// Patch 部分更新；nil 字段保持不变
type Patch struct {
	Name     *string
	Geometry orb.Geometry
	Radius   *float64
	Visible  *bool
	Opacity  *float64
}

// Store 外部图层存储
type Store interface {
	AddLayer(ctx context.Context, l *Layer) (string, error)
	AddConstructedLayer(ctx context.Context, l *Layer) (string, error)
	UpdateLayer(ctx context.Context, id string, p Patch) error
	RemoveLayer(ctx context.Context, id string) error
	StartEditing(ctx context.Context, id string) error
	StopEditing(ctx context.Context, id string, commit bool) error
	Get(ctx context.Context, id string) (*Layer, error)
}

// BoundOf 圆形标记按半径外扩，其余取几何外包框
func BoundOf(g orb.Geometry, radius float64) orb.Bound {
	if g == nil {
		return orb.Bound{}
	}
	if p, ok := g.(orb.Point); ok && radius > 0 {
		return geo.NewBoundAroundPoint(p, radius)
	}
	return g.Bound()
}

// Translate 返回平移后的几何副本，原几何不变
func Translate(g orb.Geometry, dLon, dLat float64) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		return orb.Point{p[0] + dLon, p[1] + dLat}
	})
}

// prepare 填充新图层的默认字段
func prepare(l *Layer, src Source, id string, now time.Time) error {
	if l.Geometry == nil {
		return ErrNoGeometry
	}
	l.ID = id
	l.Source = src
	l.Bound = BoundOf(l.Geometry, l.Radius)
	if l.Opacity <= 0 || l.Opacity > 1 {
		l.Opacity = 1
	}
	l.Visible = true
	l.Editing = false
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	return nil
}

func apply(l *Layer, p Patch) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Geometry != nil {
		l.Geometry = p.Geometry
	}
	if p.Radius != nil {
		l.Radius = *p.Radius
	}
	if p.Visible != nil {
		l.Visible = *p.Visible
	}
	if p.Opacity != nil {
		l.Opacity = *p.Opacity
	}
	l.Bound = BoundOf(l.Geometry, l.Radius)
}

// Feature 导出为 GeoJSON Feature，属性带上元数据
func (l *Layer) Feature() *geojson.Feature {
	f := geojson.NewFeature(l.Geometry)
	f.ID = l.ID
	f.Properties["name"] = l.Name
	f.Properties["source"] = string(l.Source)
	f.Properties["visible"] = l.Visible
	f.Properties["opacity"] = l.Opacity
	f.Properties["created_at"] = l.CreatedAt.UTC().Format(time.RFC3339)
	if l.Radius > 0 {
		f.Properties["radius"] = l.Radius
	}
	f.BBox = geojson.NewBBox(l.Bound)
	return f
}
