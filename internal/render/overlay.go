// 包 render：把绘制会话与悬停吸附结果翻译为地图叠加图元与实时距离/面积标签
// 约束：只做翻译；真正的像素绘制交给外部 mapview.Renderer。
package render

import (
	"listing-map/internal/drawing"
	"listing-map/internal/geometry"
	"listing-map/internal/mapview"
	"listing-map/internal/snap"

	"github.com/paulmach/orb"
)

type Point struct {
	At    orb.Point     `json:"at"`
	Style mapview.Style `json:"style"`
}

type Line struct {
	Points []orb.Point   `json:"points"`
	Style  mapview.Style `json:"style"`
}

type Polygon struct {
	Ring  orb.Ring      `json:"ring"`
	Style mapview.Style `json:"style"`
}

type Circle struct {
	Center orb.Point     `json:"center"`
	Radius float64       `json:"radius"`
	Style  mapview.Style `json:"style"`
}

type Label struct {
	At    orb.Point     `json:"at"`
	Text  string        `json:"text"`
	Style mapview.Style `json:"style"`
}

// Overlay 一帧叠加图元
type Overlay struct {
	Points   []Point   `json:"points"`
	Lines    []Line    `json:"lines"`
	Polygons []Polygon `json:"polygons"`
	Circles  []Circle  `json:"circles"`
	Labels   []Label   `json:"labels"`
}

func (o Overlay) Empty() bool {
	return len(o.Points)+len(o.Lines)+len(o.Polygons)+len(o.Circles)+len(o.Labels) == 0
}

var (
	vertexStyle      = mapview.Style{Stroke: "#1d4ed8", Fill: "#ffffff", Width: 2, Radius: 5, ClassName: "draw-vertex"}
	closeVertexStyle = mapview.Style{Stroke: "#1d4ed8", Fill: "#1d4ed8", Width: 2, Radius: 7, ClassName: "draw-vertex-close", Interactive: true}
	edgeStyle        = mapview.Style{Stroke: "#1d4ed8", Width: 3, Opacity: 0.9, ClassName: "draw-edge"}
	previewStyle     = mapview.Style{Stroke: "#1d4ed8", Width: 2, Opacity: 0.7, Dashed: true, ClassName: "draw-preview"}
	polygonStyle     = mapview.Style{Stroke: "#1d4ed8", Fill: "#3b82f6", Width: 3, Opacity: 0.25, ClassName: "draw-polygon"}
	markerStyle      = mapview.Style{Stroke: "#b91c1c", Fill: "#ef4444", Width: 2, Radius: 7, ClassName: "draw-marker"}
	circleStyle      = mapview.Style{Stroke: "#b91c1c", Fill: "#ef4444", Width: 2, Opacity: 0.15, ClassName: "draw-radius"}
	previewCircle    = mapview.Style{Stroke: "#b91c1c", Width: 1, Opacity: 0.5, Dashed: true, ClassName: "draw-radius-preview"}
	labelStyle       = mapview.Style{ClassName: "draw-label"}
	areaLabelStyle   = mapview.Style{ClassName: "draw-label-area"}
	snapVertexStyle  = mapview.Style{Stroke: "#16a34a", Fill: "#16a34a", Width: 2, Radius: 6, ClassName: "snap-vertex"}
	snapEdgeStyle    = mapview.Style{Stroke: "#16a34a", Fill: "#ffffff", Width: 2, Radius: 5, ClassName: "snap-edge"}
)

// edge 标签精度（千米时的小数位）
const precision = 1

// Build 由会话快照与可选的悬停结果生成叠加图元
func Build(s drawing.Snapshot, hover *snap.Result) Overlay {
	var o Overlay
	switch s.Shape {
	case drawing.Polygon:
		buildPolygon(&o, s, hover)
	case drawing.Marker:
		buildMarker(&o, s, hover)
	}
	if hover != nil && hover.Anchor != nil && hover.Kind != snap.None {
		st := snapEdgeStyle
		if hover.Kind == snap.Vertex {
			st = snapVertexStyle
		}
		o.Points = append(o.Points, Point{At: *hover.Anchor, Style: st})
	}
	return o
}

func edgeLabel(o *Overlay, a, b orb.Point, st mapview.Style) {
	o.Labels = append(o.Labels, Label{
		At:    geometry.Midpoint(a, b),
		Text:  geometry.FormatDistance(geometry.Distance(a, b), precision),
		Style: st,
	})
}

func buildPolygon(o *Overlay, s drawing.Snapshot, hover *snap.Result) {
	pts := s.Points
	if len(pts) == 0 {
		return
	}
	if s.Finished {
		ring := append(orb.Ring(nil), pts...)
		ring = append(ring, pts[0])
		o.Polygons = append(o.Polygons, Polygon{Ring: ring, Style: polygonStyle})
		for i := range pts {
			edgeLabel(o, pts[i], pts[(i+1)%len(pts)], labelStyle)
		}
		// 闭合后面积标签附带周长
		o.Labels = append(o.Labels, Label{
			At:    geometry.Centroid(pts),
			Text:  geometry.FormatArea(geometry.ProjectedPolygonArea(pts)) + " · " + geometry.FormatDistance(geometry.PathLength(pts, true), precision),
			Style: areaLabelStyle,
		})
		return
	}

	if len(pts) >= 2 {
		o.Lines = append(o.Lines, Line{Points: append([]orb.Point(nil), pts...), Style: edgeStyle})
		for i := 0; i+1 < len(pts); i++ {
			edgeLabel(o, pts[i], pts[i+1], labelStyle)
		}
	}
	for i, p := range pts {
		st := vertexStyle
		if i == 0 && len(pts) >= 3 {
			st = closeVertexStyle
		}
		o.Points = append(o.Points, Point{At: p, Style: st})
	}
	if hover == nil {
		return
	}
	last := pts[len(pts)-1]
	cur := hover.ResolvedPoint
	o.Lines = append(o.Lines, Line{Points: []orb.Point{last, cur}, Style: previewStyle})
	edgeLabel(o, last, cur, labelStyle)
	if len(pts) >= 2 {
		trial := append(append([]orb.Point(nil), pts...), cur)
		o.Labels = append(o.Labels, Label{
			At:    geometry.Centroid(trial),
			Text:  geometry.FormatArea(geometry.ProjectedPolygonArea(trial)),
			Style: areaLabelStyle,
		})
	}
}

func buildMarker(o *Overlay, s drawing.Snapshot, hover *snap.Result) {
	if !s.Finished {
		if hover != nil && s.Radius > 0 {
			o.Circles = append(o.Circles, Circle{Center: hover.ResolvedPoint, Radius: s.Radius, Style: previewCircle})
		}
		return
	}
	c := s.Points[0]
	o.Circles = append(o.Circles, Circle{Center: c, Radius: s.Radius, Style: circleStyle})
	o.Points = append(o.Points, Point{At: c, Style: markerStyle})
	o.Labels = append(o.Labels,
		Label{At: c, Text: geometry.FormatDistance(s.Radius, precision), Style: labelStyle},
		Label{At: c, Text: geometry.FormatArea(geometry.CircleArea(s.Radius)), Style: areaLabelStyle},
	)
}

// Apply 清空后按 面 -> 圆 -> 线 -> 点 -> 标签 的层序重放到外部渲染器
func Apply(r mapview.Renderer, o Overlay) {
	r.Clear()
	for _, p := range o.Polygons {
		r.DrawPolygon(p.Ring, p.Style)
	}
	for _, c := range o.Circles {
		r.DrawCircle(c.Center, c.Radius, c.Style)
	}
	for _, l := range o.Lines {
		r.DrawLine(l.Points, l.Style)
	}
	for _, p := range o.Points {
		r.DrawPoint(p.At, p.Style)
	}
	for _, l := range o.Labels {
		r.DrawLabel(l.At, l.Text, l.Style)
	}
}
