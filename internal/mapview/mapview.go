// 包 mapview：地图引擎适配契约
// 背景：瓦片与像素绘制由外部地图引擎负责，核心只依赖坐标换算、视口与绘制原语三类能力。
// 约束：地理坐标统一为 orb.Point{经度, 纬度}（WGS84）；屏幕坐标以视口左上角为原点，单位像素。
package mapview

import (
	"math"

	"github.com/paulmach/orb"
)

// Pixel 屏幕像素坐标
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist 像素距离
func (p Pixel) Dist(o Pixel) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Projector 坐标换算与视口信息
type Projector interface {
	ToScreen(p orb.Point) Pixel
	ToGeo(px Pixel) orb.Point
	Zoom() float64
	Bounds() orb.Bound
}

// Style 绘制样式
type Style struct {
	Stroke      string  `json:"stroke,omitempty"`
	Fill        string  `json:"fill,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Dashed      bool    `json:"dashed,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
	ClassName   string  `json:"class,omitempty"`
	Interactive bool    `json:"interactive,omitempty"`
}

// Renderer 外部地图引擎的绘制能力；标签为常驻文本，锚定在地理坐标上
type Renderer interface {
	Clear()
	DrawPoint(p orb.Point, s Style)
	DrawLine(points []orb.Point, s Style)
	DrawPolygon(ring orb.Ring, s Style)
	DrawCircle(center orb.Point, radiusMeters float64, s Style)
	DrawLabel(at orb.Point, text string, s Style)
}
