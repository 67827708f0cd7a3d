// 包 drawing：绘制会话状态机
// 背景：累积当前正在绘制的多边形顶点或圆形标记的中心与半径；Idle -> Active(未完成) -> Active(已完成) -> Idle。
// 约束：会话对吸附无感知，只保存调用方给出的坐标（调用方负责先经过 snap.Index.Query）；
// 非法调用返回哨兵错误且不改变状态；会话不加锁，由持有者串行访问。
package drawing

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"listing-map/internal/mapview"

	"github.com/paulmach/orb"
)

var (
	ErrNotActive     = errors.New("drawing session not active")
	ErrFinished      = errors.New("drawing session already finished")
	ErrNotFinished   = errors.New("drawing session not finished")
	ErrTooFewPoints  = errors.New("polygon needs at least 3 points")
	ErrNotPolygon    = errors.New("drawing session is not a polygon")
	ErrNotMarker     = errors.New("drawing session is not a marker")
	ErrUnknownShape  = errors.New("unknown shape")
	ErrInvalidRadius = errors.New("invalid radius")
)

type Shape int

const (
	None Shape = iota
	Polygon
	Marker
)

func (s Shape) String() string {
	switch s {
	case Polygon:
		return "polygon"
	case Marker:
		return "marker"
	default:
		return "none"
	}
}

func (s Shape) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "polygon":
		return Polygon, nil
	case "marker", "marker_with_radius", "circle":
		return Marker, nil
	}
	return None, ErrUnknownShape
}

// Intent 决定圆形标记的默认半径
type Intent string

const (
	Offer  Intent = "offer"
	Search Intent = "search"
)

// RadiusRange 半径范围与默认值（米）
type RadiusRange struct {
	Min           float64
	Max           float64
	DefaultOffer  float64
	DefaultSearch float64
}

var DefaultRadius = RadiusRange{Min: 50, Max: 500, DefaultOffer: 100, DefaultSearch: 300}

func (r RadiusRange) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

func (r RadiusRange) For(i Intent) float64 {
	if i == Search {
		return r.Clamp(r.DefaultSearch)
	}
	return r.Clamp(r.DefaultOffer)
}

// Snapshot 会话只读副本，供渲染与序列化
type Snapshot struct {
	Shape    Shape       `json:"shape"`
	Points   []orb.Point `json:"points"`
	Radius   float64     `json:"radius,omitempty"`
	Active   bool        `json:"active"`
	Finished bool        `json:"finished"`
}

type Session struct {
	rr       RadiusRange
	shape    Shape
	points   []orb.Point
	radius   float64
	active   bool
	finished bool
}

func New(rr RadiusRange) *Session {
	if rr.Max <= 0 || rr.Max < rr.Min {
		rr = DefaultRadius
	}
	return &Session{rr: rr}
}

func (s *Session) Shape() Shape       { return s.shape }
func (s *Session) Radius() float64    { return s.radius }
func (s *Session) IsActive() bool     { return s.active }
func (s *Session) IsFinished() bool   { return s.finished }
func (s *Session) Len() int           { return len(s.points) }
func (s *Session) Range() RadiusRange { return s.rr }

func (s *Session) Points() []orb.Point {
	return append([]orb.Point(nil), s.points...)
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Shape:    s.shape,
		Points:   s.Points(),
		Radius:   s.radius,
		Active:   s.active,
		Finished: s.finished,
	}
}

// StartDrawing 替换任何已有会话；圆形标记按意图预置默认半径
func (s *Session) StartDrawing(shape Shape, intent Intent) error {
	if shape != Polygon && shape != Marker {
		return ErrUnknownShape
	}
	s.Cancel()
	s.shape = shape
	s.active = true
	if shape == Marker {
		s.radius = s.rr.For(intent)
	}
	return nil
}

// AddPoint 仅在未完成状态合法；标记的第一个点即完成
func (s *Session) AddPoint(p orb.Point) error {
	if !s.active {
		return ErrNotActive
	}
	if s.finished {
		return ErrFinished
	}
	s.points = append(s.points, p)
	if s.shape == Marker {
		s.finished = true
	}
	return nil
}

// Finish 显式闭合多边形，至少 3 个点
func (s *Session) Finish() error {
	if !s.active {
		return ErrNotActive
	}
	if s.shape != Polygon {
		return ErrNotPolygon
	}
	if s.finished {
		return ErrFinished
	}
	if len(s.points) < 3 {
		return ErrTooFewPoints
	}
	s.finished = true
	return nil
}

// SetRadius 任何标记会话中均可调整，不改变完成状态；返回钳制后的值
func (s *Session) SetRadius(v float64) (float64, error) {
	if !s.active || s.shape != Marker {
		return s.radius, ErrNotMarker
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s.radius, ErrInvalidRadius
	}
	s.radius = s.rr.Clamp(v)
	return s.radius, nil
}

// Cancel 任何状态下回到 Idle
func (s *Session) Cancel() {
	s.shape = None
	s.points = nil
	s.radius = 0
	s.active = false
	s.finished = false
}

// ClosesLoop 指针是否落在首个顶点上（像素容差内）；为真时调用方应 Finish 而非 AddPoint
func (s *Session) ClosesLoop(pointer mapview.Pixel, proj mapview.Projector, tolPx float64) bool {
	if !s.active || s.finished || s.shape != Polygon || len(s.points) < 3 {
		return false
	}
	return proj.ToScreen(s.points[0]).Dist(pointer) <= tolPx
}

// Geometry 已完成会话的几何：标记为 orb.Point，多边形为闭合的 orb.Polygon
func (s *Session) Geometry() (orb.Geometry, error) {
	if !s.finished {
		return nil, ErrNotFinished
	}
	if s.shape == Marker {
		return s.points[0], nil
	}
	ring := make(orb.Ring, 0, len(s.points)+1)
	ring = append(ring, s.points...)
	if !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}
