package snap

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"listing-map/internal/mapview"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type fakeTimer struct {
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) after(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll 依次执行所有未停止的定时器
func (c *fakeClock) fireAll() int {
	c.mu.Lock()
	ts := append([]*fakeTimer(nil), c.timers...)
	c.timers = nil
	c.mu.Unlock()
	n := 0
	for _, t := range ts {
		if !t.stopped {
			t.stopped = true
			t.f()
			n++
		}
	}
	return n
}

type staticFetcher struct {
	mu    sync.Mutex
	fc    *geojson.FeatureCollection
	err   error
	calls int
}

func (s *staticFetcher) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.fc, s.err
}

func (s *staticFetcher) set(fc *geojson.FeatureCollection, err error) {
	s.mu.Lock()
	s.fc, s.err = fc, err
	s.mu.Unlock()
}

func square(lon, lat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon, lat}, {lon + size, lat}, {lon + size, lat + size}, {lon, lat + size}, {lon, lat},
	}}
}

func collection(gs ...orb.Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range gs {
		fc.Append(geojson.NewFeature(g))
	}
	return fc
}

var building = square(23.0, 37.0, 0.001)

func view(zoom float64) mapview.Viewport {
	return mapview.Viewport{Center: orb.Point{23.0005, 37.0005}, Level: zoom, Width: 1000, Height: 1000}
}

// loaded 返回已加载单个建筑的索引
func loaded(t *testing.T) *Index {
	t.Helper()
	f := &staticFetcher{fc: collection(building)}
	idx := NewIndex(f, Options{Enabled: true})
	v := view(18)
	idx.Refresh(context.Background(), v.Bounds(), v.Zoom())
	if idx.Len() != 1 {
		t.Fatalf("rings = %d, want 1", idx.Len())
	}
	return idx
}

func TestDebouncer_Coalesces(t *testing.T) {
	clk := &fakeClock{}
	d := NewDebouncer(time.Second, clk.after)
	calls := 0
	for i := 0; i < 3; i++ {
		d.Trigger(func() { calls++ })
	}
	if !d.Pending() {
		t.Error("should be pending")
	}
	if n := clk.fireAll(); n != 1 {
		t.Errorf("fired %d live timers, want 1", n)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if d.Pending() {
		t.Error("should not be pending after firing")
	}
}

func TestDebouncer_SupersededCallbackIgnored(t *testing.T) {
	clk := &fakeClock{}
	d := NewDebouncer(time.Second, clk.after)
	calls := 0
	d.Trigger(func() { calls++ })
	first := clk.timers[0]
	d.Cancel()
	// 模拟定时器已触发但 Stop 来不及生效
	first.f()
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestIndex_ViewportChangedDebouncesRefresh(t *testing.T) {
	clk := &fakeClock{}
	f := &staticFetcher{fc: collection(building)}
	idx := NewIndex(f, Options{Enabled: true, After: clk.after})
	v := view(17)
	for i := 0; i < 5; i++ {
		idx.ViewportChanged(v.Bounds(), v.Zoom())
	}
	if f.calls != 0 {
		t.Fatalf("fetch before quiet period: %d", f.calls)
	}
	clk.fireAll()
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls)
	}
	if got := idx.Effectiveness(); got != Active {
		t.Errorf("effectiveness = %s, want active", got)
	}
}

func TestIndex_LowZoomClears(t *testing.T) {
	clk := &fakeClock{}
	f := &staticFetcher{fc: collection(building)}
	var states []Effectiveness
	idx := NewIndex(f, Options{Enabled: true, After: clk.after, OnChange: func(e Effectiveness) { states = append(states, e) }})
	v := view(17)
	idx.ViewportChanged(v.Bounds(), v.Zoom())
	clk.fireAll()
	if idx.Len() == 0 {
		t.Fatal("expected data at zoom 17")
	}
	low := view(15)
	idx.ViewportChanged(low.Bounds(), low.Zoom())
	if idx.Len() != 0 {
		t.Error("data should be cleared below min zoom")
	}
	if got := idx.Effectiveness(); got != Pending {
		t.Errorf("effectiveness = %s, want pending", got)
	}
	if n := clk.fireAll(); n != 0 {
		t.Errorf("no refresh should be scheduled, fired %d", n)
	}
	idx.SetEnabled(false)
	if got := idx.Effectiveness(); got != Off {
		t.Errorf("effectiveness = %s, want off", got)
	}
	want := []Effectiveness{Active, Pending, Off}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestIndex_FailedFetchKeepsStaleData(t *testing.T) {
	f := &staticFetcher{fc: collection(building, square(23.002, 37.0, 0.001))}
	idx := NewIndex(f, Options{Enabled: true})
	v := view(18)
	idx.Refresh(context.Background(), v.Bounds(), v.Zoom())
	if idx.Len() != 2 {
		t.Fatalf("rings = %d, want 2", idx.Len())
	}
	f.set(nil, errors.New("timeout"))
	idx.Refresh(context.Background(), v.Bounds(), v.Zoom())
	if idx.Len() != 2 {
		t.Errorf("rings after failure = %d, want 2", idx.Len())
	}
}

type gateFetcher struct {
	mu      sync.Mutex
	gates   []chan *geojson.FeatureCollection
	started chan struct{}
}

func (g *gateFetcher) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	ch := make(chan *geojson.FeatureCollection)
	g.mu.Lock()
	g.gates = append(g.gates, ch)
	g.mu.Unlock()
	g.started <- struct{}{}
	return <-ch, nil
}

func (g *gateFetcher) gate(i int) chan *geojson.FeatureCollection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gates[i]
}

func TestIndex_LastWriteWins(t *testing.T) {
	g := &gateFetcher{started: make(chan struct{}, 2)}
	idx := NewIndex(g, Options{Enabled: true})
	v := view(18)

	done1, done2 := make(chan struct{}), make(chan struct{})
	go func() { idx.Refresh(context.Background(), v.Bounds(), v.Zoom()); close(done1) }()
	<-g.started
	go func() { idx.Refresh(context.Background(), v.Bounds(), v.Zoom()); close(done2) }()
	<-g.started

	// 新请求先返回，旧请求后返回
	g.gate(1) <- collection(building)
	<-done2
	g.gate(0) <- collection(building, square(23.002, 37.0, 0.001), square(23.004, 37.0, 0.001))
	<-done1

	if idx.Len() != 1 {
		t.Errorf("rings = %d, want 1 from the newer request", idx.Len())
	}
}

func TestIndex_DisableDiscardsInFlight(t *testing.T) {
	g := &gateFetcher{started: make(chan struct{}, 1)}
	idx := NewIndex(g, Options{Enabled: true})
	v := view(18)
	done := make(chan struct{})
	go func() { idx.Refresh(context.Background(), v.Bounds(), v.Zoom()); close(done) }()
	<-g.started
	idx.SetEnabled(false)
	g.gate(0) <- collection(building)
	<-done
	if idx.Len() != 0 {
		t.Errorf("rings = %d, want 0 after disable", idx.Len())
	}
}

func TestQuery_VertexBeatsCloserEdge(t *testing.T) {
	idx := loaded(t)
	v := view(18)
	corner := v.ToScreen(orb.Point{23.0, 37.0})
	// 位于建筑内侧：到两条边各 7px，到角点约 9.9px
	pointer := mapview.Pixel{X: corner.X + 7, Y: corner.Y - 7}
	r := idx.Query(pointer, v)
	if r.Kind != Vertex {
		t.Fatalf("kind = %s, want vertex", r.Kind)
	}
	if r.Anchor == nil || !r.Anchor.Equal(orb.Point{23.0, 37.0}) {
		t.Errorf("anchor = %v, want corner", r.Anchor)
	}
	if !r.ResolvedPoint.Equal(orb.Point{23.0, 37.0}) {
		t.Errorf("resolved = %v", r.ResolvedPoint)
	}
}

func TestQuery_EdgeWhenNoVertexInRange(t *testing.T) {
	idx := loaded(t)
	v := view(18)
	mid := v.ToScreen(orb.Point{23.0005, 37.0})
	pointer := mapview.Pixel{X: mid.X, Y: mid.Y + 5}
	r := idx.Query(pointer, v)
	if r.Kind != Edge {
		t.Fatalf("kind = %s, want edge", r.Kind)
	}
	if math.Abs(r.ResolvedPoint.Lat()-37.0) > 1e-7 {
		t.Errorf("edge anchor lat = %v, want 37.0", r.ResolvedPoint.Lat())
	}
	if math.Abs(r.DistancePx-5) > 1e-6 {
		t.Errorf("distance = %v, want 5", r.DistancePx)
	}
}

func TestQuery_NoneBeyondThreshold(t *testing.T) {
	idx := loaded(t)
	v := view(18)
	pointer := v.ToScreen(orb.Point{23.0005, 37.0005})
	r := idx.Query(pointer, v)
	if r.Kind != None || r.Anchor != nil {
		t.Fatalf("got %+v, want none", r)
	}
	want := v.ToGeo(pointer)
	if math.Abs(r.ResolvedPoint.Lon()-want.Lon()) > 1e-12 || math.Abs(r.ResolvedPoint.Lat()-want.Lat()) > 1e-12 {
		t.Errorf("resolved = %v, want pointer position %v", r.ResolvedPoint, want)
	}
}

func TestQuery_BelowMinZoomIsNone(t *testing.T) {
	idx := loaded(t)
	v := view(15)
	corner := v.ToScreen(orb.Point{23.0, 37.0})
	r := idx.Query(corner, v)
	if r.Kind != None {
		t.Errorf("kind = %s at zoom 15, want none", r.Kind)
	}
}

func TestQuery_MultiPolygonRings(t *testing.T) {
	mp := orb.MultiPolygon{square(23.0, 37.0, 0.001), square(23.002, 37.0, 0.001)}
	f := &staticFetcher{fc: collection(mp)}
	idx := NewIndex(f, Options{Enabled: true})
	v := view(18)
	idx.Refresh(context.Background(), v.Bounds(), v.Zoom())
	if idx.Len() != 2 {
		t.Fatalf("rings = %d, want 2", idx.Len())
	}
	px := v.ToScreen(orb.Point{23.003, 37.001})
	r := idx.Query(mapview.Pixel{X: px.X + 3, Y: px.Y}, v)
	if r.Kind != Vertex || !r.ResolvedPoint.Equal(orb.Point{23.003, 37.001}) {
		t.Errorf("got %+v, want vertex of second part", r)
	}
}

func TestQuery_DisabledIsNone(t *testing.T) {
	idx := loaded(t)
	idx.SetEnabled(false)
	v := view(18)
	r := idx.Query(v.ToScreen(orb.Point{23.0, 37.0}), v)
	if r.Kind != None {
		t.Errorf("kind = %s, want none", r.Kind)
	}
}
