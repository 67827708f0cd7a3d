package render

import (
	"strings"
	"testing"

	"listing-map/internal/drawing"
	"listing-map/internal/mapview"
	"listing-map/internal/snap"

	"github.com/paulmach/orb"
)

var tri = []orb.Point{{23.0, 37.0}, {23.001, 37.0}, {23.001, 37.001}}

func TestBuild_Idle(t *testing.T) {
	o := Build(drawing.Snapshot{}, nil)
	if !o.Empty() {
		t.Errorf("idle overlay should be empty: %+v", o)
	}
}

func TestBuild_PolygonInProgressWithHover(t *testing.T) {
	s := drawing.Snapshot{Shape: drawing.Polygon, Points: tri, Active: true}
	anchor := orb.Point{23.0, 37.001}
	hover := &snap.Result{ResolvedPoint: anchor, Anchor: &anchor, Kind: snap.Vertex}
	o := Build(s, hover)

	if len(o.Lines) != 2 || !o.Lines[1].Style.Dashed {
		t.Fatalf("want polyline plus dashed preview, got %+v", o.Lines)
	}
	// 3 个顶点 + 吸附高亮
	if len(o.Points) != 4 {
		t.Fatalf("points = %d, want 4", len(o.Points))
	}
	if o.Points[0].Style.ClassName != "draw-vertex-close" {
		t.Errorf("first vertex should be closable, class %q", o.Points[0].Style.ClassName)
	}
	if o.Points[3].Style.ClassName != "snap-vertex" {
		t.Errorf("snap highlight class %q", o.Points[3].Style.ClassName)
	}
	// 2 条边 + 预览边 + 预览面积
	if len(o.Labels) != 4 {
		t.Fatalf("labels = %d, want 4", len(o.Labels))
	}
	if !strings.HasSuffix(o.Labels[3].Text, "m²") {
		t.Errorf("area label %q", o.Labels[3].Text)
	}
	if len(o.Polygons) != 0 {
		t.Error("unfinished polygon must not be filled")
	}
}

func TestBuild_FinishedPolygon(t *testing.T) {
	s := drawing.Snapshot{Shape: drawing.Polygon, Points: tri, Active: true, Finished: true}
	o := Build(s, nil)
	if len(o.Polygons) != 1 {
		t.Fatalf("polygons = %d", len(o.Polygons))
	}
	ring := o.Polygons[0].Ring
	if len(ring) != 4 || !ring[0].Equal(ring[3]) {
		t.Errorf("ring not closed: %v", ring)
	}
	// 3 条边（含闭合边）+ 面积与周长
	if len(o.Labels) != 4 {
		t.Fatalf("labels = %d, want 4", len(o.Labels))
	}
	area := o.Labels[3].Text
	if !strings.Contains(area, "m²") || !strings.HasSuffix(area, " m") {
		t.Errorf("area label %q should carry area and perimeter", area)
	}
}

func TestBuild_Marker(t *testing.T) {
	hover := &snap.Result{ResolvedPoint: orb.Point{1, 1}}
	pending := Build(drawing.Snapshot{Shape: drawing.Marker, Radius: 100, Active: true}, hover)
	if len(pending.Circles) != 1 || !pending.Circles[0].Style.Dashed {
		t.Errorf("want dashed preview circle, got %+v", pending.Circles)
	}
	done := Build(drawing.Snapshot{Shape: drawing.Marker, Points: []orb.Point{{1, 1}}, Radius: 250, Active: true, Finished: true}, nil)
	if len(done.Circles) != 1 || done.Circles[0].Radius != 250 {
		t.Fatalf("circles = %+v", done.Circles)
	}
	if len(done.Labels) != 2 || done.Labels[0].Text != "250 m" {
		t.Fatalf("radius label = %+v", done.Labels)
	}
	// π·250² ≈ 19635 m²
	if got := done.Labels[1].Text; got != "1,96 ha" {
		t.Errorf("coverage label = %q, want 1,96 ha", got)
	}
}

type recorder struct{ calls []string }

func (r *recorder) add(c string) { r.calls = append(r.calls, c) }

func (r *recorder) Clear() { r.add("clear") }

func (r *recorder) DrawPoint(orb.Point, mapview.Style) { r.add("point") }

func (r *recorder) DrawLine([]orb.Point, mapview.Style) { r.add("line") }

func (r *recorder) DrawPolygon(orb.Ring, mapview.Style) { r.add("polygon") }

func (r *recorder) DrawCircle(orb.Point, float64, mapview.Style) { r.add("circle") }

func (r *recorder) DrawLabel(orb.Point, string, mapview.Style) { r.add("label") }

func TestApply_Order(t *testing.T) {
	o := Build(drawing.Snapshot{Shape: drawing.Marker, Points: []orb.Point{{1, 1}}, Radius: 100, Active: true, Finished: true}, nil)
	r := &recorder{}
	Apply(r, o)
	want := []string{"clear", "circle", "point", "label", "label"}
	if strings.Join(r.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestFeatureCollection(t *testing.T) {
	s := drawing.Snapshot{Shape: drawing.Polygon, Points: tri, Active: true, Finished: true}
	fc := Build(s, nil).FeatureCollection()
	if len(fc.Features) != 5 {
		t.Fatalf("features = %d, want 5", len(fc.Features))
	}
	if fc.Features[0].Properties["kind"] != "polygon" {
		t.Errorf("first kind = %v", fc.Features[0].Properties["kind"])
	}
	last := fc.Features[4]
	if last.Properties["kind"] != "label" || last.Properties["text"] == "" {
		t.Errorf("label feature = %v", last.Properties)
	}
}
