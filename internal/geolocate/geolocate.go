// 包 geolocate：单次“当前位置”能力，用于为绘制提供默认起点
// 背景：浏览器定位不可用时，按客户端 IP 查询 MaxMind GeoLite2 City 库得到近似坐标。
// 约束：任何失败都归一为 ErrUnavailable（可 errors.Is 判断），由调用方转为一次性提示，不影响其他状态。
package geolocate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"listing-map/internal/logger"

	"github.com/oschwald/geoip2-golang"
	"github.com/paulmach/orb"
)

var ErrUnavailable = errors.New("geolocation unavailable")

type Locator interface {
	Locate(ctx context.Context, ip string) (orb.Point, error)
}

// GeoIP 基于 GeoLite2 City 库
type GeoIP struct {
	db *geoip2.Reader
}

func Open(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{db: db}, nil
}

func (g *GeoIP) Close() error { return g.db.Close() }

func (g *GeoIP) Locate(ctx context.Context, ip string) (orb.Point, error) {
	if err := ctx.Err(); err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return orb.Point{}, fmt.Errorf("%w: bad ip %q", ErrUnavailable, ip)
	}
	rec, err := g.db.City(addr)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	lat, lon := rec.Location.Latitude, rec.Location.Longitude
	if lat == 0 && lon == 0 {
		return orb.Point{}, fmt.Errorf("%w: no location for %s", ErrUnavailable, ip)
	}
	logger.Component("geolocate").Debug("geoip_hit", "ip", ip, "city", rec.City.Names["en"], "lat", lat, "lon", lon)
	return orb.Point{lon, lat}, nil
}

// Disabled 未配置数据库时使用，始终不可用
type Disabled struct{}

func (Disabled) Locate(ctx context.Context, ip string) (orb.Point, error) {
	return orb.Point{}, ErrUnavailable
}

// Fixed 固定坐标，便于测试与演示
type Fixed orb.Point

func (f Fixed) Locate(ctx context.Context, ip string) (orb.Point, error) {
	return orb.Point(f), nil
}

// OpenOrDisabled 打开失败时记录告警并退化为 Disabled
func OpenOrDisabled(path string) Locator {
	if path == "" {
		return Disabled{}
	}
	g, err := Open(path)
	if err != nil {
		logger.Component("geolocate").Warn("geoip_open_failed", "path", path, "err", err)
		return Disabled{}
	}
	return g
}

// 文档注释：获取访问者 IP
// 背景：多层代理环境下，依次读取常见反向代理头，最后回退远端地址。
// 约束：头部存在伪造风险；仅用于近似定位，不做鉴权依据。
func ClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("cf-connecting-ip"); x != "" {
		return x
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := strings.Trim(x[i+4:], "\" ")
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\" ")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
