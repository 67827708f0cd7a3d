package outline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const sampleFC = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"id":"a"},"geometry":{"type":"Polygon","coordinates":[[[23.0,37.0],[23.001,37.0],[23.001,37.001],[23.0,37.001],[23.0,37.0]]]}},
{"type":"Feature","properties":{"id":"b"},"geometry":{"type":"Point","coordinates":[23.0,37.0]}},
{"type":"Feature","properties":{"id":"c"},"geometry":{"type":"MultiPolygon","coordinates":[[[[24.0,38.0],[24.001,38.0],[24.001,38.001],[24.0,38.0]]]]}}
]}`

func TestPolygonal_DropsNonAreal(t *testing.T) {
	fc, err := geojson.UnmarshalFeatureCollection([]byte(sampleFC))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out := Polygonal(fc)
	if len(out.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(out.Features))
	}
	if len(Polygonal(nil).Features) != 0 {
		t.Error("nil collection should yield empty")
	}
}

func TestHTTPSource_Fetch(t *testing.T) {
	var gotBBox string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBBox = r.URL.Query().Get("bbox")
		w.Header().Set("content-type", "application/geo+json")
		_, _ = w.Write([]byte(sampleFC))
	}))
	defer srv.Close()

	s := NewHTTPSource("remote", srv.URL+"/buildings", "", nil)
	fc, err := s.Fetch(context.Background(), orb.Bound{Min: orb.Point{23, 37}, Max: orb.Point{23.01, 37.01}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("got %d features, want 2", len(fc.Features))
	}
	if gotBBox != "23.000000,37.000000,23.010000,37.010000" {
		t.Errorf("bbox param %q", gotBBox)
	}
}

func TestHTTPSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSource("remote", srv.URL, srv.URL+"/health", nil)
	if _, err := s.Fetch(context.Background(), orb.Bound{}); !errors.Is(err, ErrBadStatus) {
		t.Errorf("Fetch err = %v, want ErrBadStatus", err)
	}
	if err := s.Heartbeat(context.Background()); !errors.Is(err, ErrBadStatus) {
		t.Errorf("Heartbeat err = %v, want ErrBadStatus", err)
	}
}

func TestFileSource_LoadDirAndFetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "athens.geojson"), []byte(sampleFC), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if fs.Len() != 2 {
		t.Fatalf("loaded %d features, want 2", fs.Len())
	}
	fc, err := fs.Fetch(context.Background(), orb.Bound{Min: orb.Point{22.9, 36.9}, Max: orb.Point{23.1, 37.1}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Errorf("got %d features in bbox, want 1", len(fc.Features))
	}
}

func TestLRU_ExpiryAndEviction(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU(2, time.Minute)
	c.now = func() time.Time { return now }
	a, b, d := geojson.NewFeatureCollection(), geojson.NewFeatureCollection(), geojson.NewFeatureCollection()
	c.Set("a", a)
	c.Set("b", b)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("d", d)
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
}

type countingSource struct {
	name  string
	calls int
	err   error
	hbErr error
	last  orb.Bound
}

func (c *countingSource) Name() string { return c.name }
func (c *countingSource) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	c.calls++
	c.last = b
	if c.err != nil {
		return nil, c.err
	}
	return geojson.NewFeatureCollection(), nil
}
func (c *countingSource) Heartbeat(ctx context.Context) error { return c.hbErr }

func TestCachedSource_SharesQuantizedKey(t *testing.T) {
	src := &countingSource{name: "x"}
	cs := NewCachedSource(src, NewLRU(16, time.Minute), nil, 0)
	b1 := orb.Bound{Min: orb.Point{23.0011, 37.0011}, Max: orb.Point{23.0021, 37.0021}}
	b2 := orb.Bound{Min: orb.Point{23.0012, 37.0012}, Max: orb.Point{23.0022, 37.0022}}
	if _, err := cs.Fetch(context.Background(), b1); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Fetch(context.Background(), b2); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
	if !src.last.Contains(b1.Min) || !src.last.Contains(b1.Max) {
		t.Errorf("quantized bound %v does not cover request %v", src.last, b1)
	}
}

func TestCachedSource_ErrorNotCached(t *testing.T) {
	src := &countingSource{name: "x", err: errors.New("down")}
	cs := NewCachedSource(src, NewLRU(16, time.Minute), nil, 0)
	b := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1.001, 1.001}}
	for i := 0; i < 2; i++ {
		if _, err := cs.Fetch(context.Background(), b); err == nil {
			t.Fatal("expected error")
		}
	}
	if src.calls != 2 {
		t.Errorf("source called %d times, want 2", src.calls)
	}
}

func TestManager_FallbackAndHealth(t *testing.T) {
	primary := &countingSource{name: "primary", err: errors.New("timeout")}
	backup := &countingSource{name: "backup"}
	m := NewManager()
	m.Register(primary)
	m.Register(backup)

	if _, err := m.Fetch(context.Background(), orb.Bound{}); err != nil {
		t.Fatalf("Fetch should fall back: %v", err)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls primary=%d backup=%d", primary.calls, backup.calls)
	}

	primary.hbErr = errors.New("unhealthy")
	m.Heartbeat(context.Background())
	hs := m.Healthy()
	if len(hs) != 1 || hs[0].Name() != "backup" {
		t.Fatalf("healthy = %v", hs)
	}
	if _, err := m.Fetch(context.Background(), orb.Bound{}); err != nil {
		t.Fatal(err)
	}
	if primary.calls != 1 {
		t.Error("unhealthy source should be skipped")
	}

	backup.hbErr = errors.New("down")
	m.Heartbeat(context.Background())
	if _, err := m.Fetch(context.Background(), orb.Bound{}); !errors.Is(err, ErrNoSource) {
		t.Errorf("err = %v, want ErrNoSource", err)
	}
}

func TestManager_AllFailReturnsLastError(t *testing.T) {
	m := NewManager()
	m.Register(&countingSource{name: "a", err: errors.New("first")})
	m.Register(&countingSource{name: "b", err: errors.New("second")})
	_, err := m.Fetch(context.Background(), orb.Bound{})
	if err == nil || !strings.Contains(err.Error(), "second") {
		t.Errorf("err = %v, want last error", err)
	}
}
