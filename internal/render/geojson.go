package render

import (
	"listing-map/internal/mapview"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func styleProps(f *geojson.Feature, kind string, s mapview.Style) *geojson.Feature {
	f.Properties["kind"] = kind
	if s.ClassName != "" {
		f.Properties["class"] = s.ClassName
	}
	if s.Stroke != "" {
		f.Properties["stroke"] = s.Stroke
	}
	if s.Fill != "" {
		f.Properties["fill"] = s.Fill
	}
	if s.Opacity > 0 {
		f.Properties["opacity"] = s.Opacity
	}
	if s.Width > 0 {
		f.Properties["stroke-width"] = s.Width
	}
	if s.Dashed {
		f.Properties["dashed"] = true
	}
	return f
}

// FeatureCollection 导出为 GeoJSON；圆以 Point 加 radius 属性表示，标签以 Point 加 text 属性表示
func (o Overlay) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range o.Polygons {
		fc.Append(styleProps(geojson.NewFeature(orb.Polygon{p.Ring}), "polygon", p.Style))
	}
	for _, c := range o.Circles {
		f := styleProps(geojson.NewFeature(c.Center), "circle", c.Style)
		f.Properties["radius"] = c.Radius
		fc.Append(f)
	}
	for _, l := range o.Lines {
		fc.Append(styleProps(geojson.NewFeature(orb.LineString(l.Points)), "line", l.Style))
	}
	for _, p := range o.Points {
		f := styleProps(geojson.NewFeature(p.At), "point", p.Style)
		if p.Style.Radius > 0 {
			f.Properties["marker-radius"] = p.Style.Radius
		}
		fc.Append(f)
	}
	for _, l := range o.Labels {
		f := styleProps(geojson.NewFeature(l.At), "label", l.Style)
		f.Properties["text"] = l.Text
		fc.Append(f)
	}
	return fc
}
