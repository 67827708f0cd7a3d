package outline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"listing-map/internal/logger"
	"listing-map/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 单次响应体上限，防止异常数据源撑爆内存
const maxBodyBytes = 32 << 20

// 文档注释：远端 HTTP 轮廓数据源
// 背景：约定 GET {endpoint}?bbox=minLon,minLat,maxLon,maxLat 返回 GeoJSON FeatureCollection；
// 若配置 healthURL 则心跳访问该地址，非 200 视为不可用。
// 约束：超时由 client 控制；client 为空时使用 4s 超时的默认客户端。
type HTTPSource struct {
	name      string
	endpoint  string
	healthURL string
	client    *http.Client
}

func NewHTTPSource(name, endpoint, healthURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 4 * time.Second}
	}
	if name == "" {
		name = "http"
	}
	return &HTTPSource{name: name, endpoint: endpoint, healthURL: healthURL, client: client}
}

func (h *HTTPSource) Name() string { return h.name }

func bboxParam(b orb.Bound) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return f(b.Min.Lon()) + "," + f(b.Min.Lat()) + "," + f(b.Max.Lon()) + "," + f(b.Max.Lat())
}

// Fetch 拉取包围盒内的建筑轮廓，仅保留面要素
func (h *HTTPSource) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("bbox", bboxParam(b))
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/geo+json, application/json")

	t0 := time.Now()
	l := logger.Component("outline")
	resp, err := h.client.Do(req)
	if err != nil {
		l.Debug("outline_http_error", "source", h.name, "err", err)
		metrics.OutlineFetchTotal.WithLabelValues(h.name, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.OutlineFetchTotal.WithLabelValues(h.name, "error").Inc()
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.OutlineFetchTotal.WithLabelValues(h.name, "error").Inc()
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		l.Debug("outline_decode_error", "source", h.name, "err", err)
		metrics.OutlineFetchTotal.WithLabelValues(h.name, "error").Inc()
		return nil, err
	}
	out := Polygonal(fc)
	dur := time.Since(t0).Milliseconds()
	metrics.OutlineFetchDurationMs.WithLabelValues(h.name).Observe(float64(dur))
	metrics.OutlineFetchTotal.WithLabelValues(h.name, "ok").Inc()
	l.Debug("outline_http_resp", "source", h.name, "features", len(out.Features), "duration_ms", dur)
	return out, nil
}

// Heartbeat 未配置健康地址时视为健康
func (h *HTTPSource) Heartbeat(ctx context.Context) error {
	if h.healthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return nil
}
