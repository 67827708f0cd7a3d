// 包 geometry：距离/面积计算与格式化，供绘制会话与渲染适配层共用
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const degToRad = math.Pi / 180

// ProjectedPolygonArea 计算多边形面积（平方米）
// 背景：原始经纬度直接做鞋带公式会受纬度畸变影响；先投影到以平均纬度为基准的局部切平面
// （x 方向按 cos(平均纬度) 缩放），再在平面上求面积。
// 约束：少于 3 个点返回 0；与环绕方向无关；末尾与首点重复的闭合点会被忽略。
func ProjectedPolygonArea(points []orb.Point) float64 {
	pts := openRing(points)
	if len(pts) < 3 {
		return 0
	}
	meanLat := 0.0
	for _, p := range pts {
		meanLat += p.Lat()
	}
	meanLat /= float64(len(pts))
	k := math.Cos(meanLat * degToRad)

	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{
			p.Lon() * degToRad * orb.EarthRadius * k,
			p.Lat() * degToRad * orb.EarthRadius,
		})
	}
	ring = append(ring, ring[0])
	return math.Abs(planar.Area(ring))
}

// Distance 两点间大圆距离（米）
func Distance(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

// PathLength 折线总长度（米）；closed 为 true 时计入尾点回到首点的一段
func PathLength(points []orb.Point, closed bool) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += geo.Distance(points[i-1], points[i])
	}
	if closed && len(points) > 2 {
		total += geo.Distance(points[len(points)-1], points[0])
	}
	return total
}

// Midpoint 两点经纬度中点，仅用于标注锚点
func Midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a.Lon() + b.Lon()) / 2, (a.Lat() + b.Lat()) / 2}
}

// Centroid 顶点平均值；空输入返回零点
func Centroid(points []orb.Point) orb.Point {
	pts := openRing(points)
	if len(pts) == 0 {
		return orb.Point{}
	}
	var c orb.Point
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
	}
	n := float64(len(pts))
	return orb.Point{c[0] / n, c[1] / n}
}

// CircleArea 圆形标记覆盖面积（平方米）
func CircleArea(radius float64) float64 {
	if radius <= 0 {
		return 0
	}
	return math.Pi * radius * radius
}

func openRing(points []orb.Point) []orb.Point {
	if len(points) > 1 && points[0].Equal(points[len(points)-1]) {
		return points[:len(points)-1]
	}
	return points
}
