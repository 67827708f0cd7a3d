package mapview

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	tileSize    = 256.0
	maxLat      = 85.05112878
	originShift = math.Pi * orb.EarthRadius
	maxZoom     = 24
)

var ErrBadViewport = errors.New("bad viewport")

// Viewport Web Mercator 视口：中心点、缩放级别与像素尺寸，等价于浏览器地图当前状态
type Viewport struct {
	Center orb.Point `json:"center"`
	Level  float64   `json:"zoom"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// Validate 校验尺寸、缩放与中心点范围
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return ErrBadViewport
	}
	if v.Level < 0 || v.Level > maxZoom || math.IsNaN(v.Level) {
		return ErrBadViewport
	}
	lon, lat := v.Center.Lon(), v.Center.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return ErrBadViewport
	}
	return nil
}

func (v Viewport) Zoom() float64 { return v.Level }

func (v Viewport) worldSize() float64 {
	return tileSize * math.Exp2(v.Level)
}

// world 经纬度 -> 世界像素坐标（整幅地图左上角为原点）
func (v Viewport) world(p orb.Point) Pixel {
	lat := math.Max(-maxLat, math.Min(maxLat, p.Lat()))
	m := project.WGS84.ToMercator(orb.Point{p.Lon(), lat})
	size := v.worldSize()
	return Pixel{
		X: (m[0] + originShift) / (2 * originShift) * size,
		Y: (originShift - m[1]) / (2 * originShift) * size,
	}
}

// ToScreen 经纬度 -> 视口像素
func (v Viewport) ToScreen(p orb.Point) Pixel {
	w := v.world(p)
	c := v.world(v.Center)
	return Pixel{
		X: w.X - c.X + float64(v.Width)/2,
		Y: w.Y - c.Y + float64(v.Height)/2,
	}
}

// ToGeo 视口像素 -> 经纬度
func (v Viewport) ToGeo(px Pixel) orb.Point {
	c := v.world(v.Center)
	size := v.worldSize()
	wx := px.X - float64(v.Width)/2 + c.X
	wy := px.Y - float64(v.Height)/2 + c.Y
	m := orb.Point{
		wx/size*2*originShift - originShift,
		originShift - wy/size*2*originShift,
	}
	return project.Mercator.ToWGS84(m)
}

// Bounds 视口覆盖的经纬度范围
func (v Viewport) Bounds() orb.Bound {
	nw := v.ToGeo(Pixel{X: 0, Y: 0})
	se := v.ToGeo(Pixel{X: float64(v.Width), Y: float64(v.Height)})
	return orb.Bound{
		Min: orb.Point{nw.Lon(), se.Lat()},
		Max: orb.Point{se.Lon(), nw.Lat()},
	}
}
