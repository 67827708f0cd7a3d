package outline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"listing-map/internal/logger"
	"listing-map/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type boundedFeature struct {
	f *geojson.Feature
	b orb.Bound
}

// 文档注释：本地 GeoJSON 目录数据源
// 背景：离线或内网环境下从数据目录读取建筑轮廓快照（*.geojson / *.json，FeatureCollection 或单个 Feature）。
// 约束：启动时一次性加载到内存；解析失败的文件跳过并记录日志；仅保留面要素。
type FileSource struct {
	name     string
	features []boundedFeature
}

// LoadDir 加载目录；目录不存在时返回错误，由调用方决定是否跳过该数据源
func LoadDir(dir string) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fs := &FileSource{name: "file"}
	l := logger.Component("outline")
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := strings.ToLower(ent.Name())
		if !strings.HasSuffix(name, ".geojson") && !strings.HasSuffix(name, ".json") {
			continue
		}
		fp := filepath.Join(dir, ent.Name())
		bs, err := os.ReadFile(fp)
		if err != nil {
			l.Warn("outline_file_read_error", "file", fp, "err", err)
			continue
		}
		fc, err := decodeFile(bs)
		if err != nil {
			l.Warn("outline_file_decode_error", "file", fp, "err", err)
			continue
		}
		fs.Add(fc)
		l.Debug("outline_file_loaded", "file", fp, "features", len(fc.Features))
	}
	l.Info("outline_dir_loaded", "dir", dir, "features", len(fs.features))
	return fs, nil
}

// NewFileSource 直接由内存要素构建，便于测试与手工注入
func NewFileSource(fc *geojson.FeatureCollection) *FileSource {
	fs := &FileSource{name: "file"}
	fs.Add(fc)
	return fs
}

func decodeFile(bs []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(bs)
	if err == nil {
		return fc, nil
	}
	f, ferr := geojson.UnmarshalFeature(bs)
	if ferr != nil {
		return nil, err
	}
	out := geojson.NewFeatureCollection()
	out.Append(f)
	return out, nil
}

func (s *FileSource) Add(fc *geojson.FeatureCollection) {
	for _, f := range Polygonal(fc).Features {
		s.features = append(s.features, boundedFeature{f: f, b: f.Geometry.Bound()})
	}
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) Len() int { return len(s.features) }

// Fetch 返回与包围盒相交的要素
func (s *FileSource) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := geojson.NewFeatureCollection()
	for _, bf := range s.features {
		if bf.b.Intersects(b) {
			out.Append(bf.f)
		}
	}
	metrics.OutlineFetchTotal.WithLabelValues(s.name, "ok").Inc()
	return out, nil
}

func (s *FileSource) Heartbeat(ctx context.Context) error { return nil }
