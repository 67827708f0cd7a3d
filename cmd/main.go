// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"listing-map/internal/api"
	"listing-map/internal/config"
	"listing-map/internal/drawing"
	"listing-map/internal/geolocate"
	"listing-map/internal/layer"
	"listing-map/internal/logger"
	"listing-map/internal/middleware"
	"listing-map/internal/outline"
	"listing-map/internal/snap"
	"listing-map/internal/utils"
	"listing-map/internal/wizard"
)

func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.Load()
	l.Debug("config_api_base", "base", cfg.APIBase)
	ctx := context.Background()

	store := openLayerStore(cfg, l)

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
		_ = rc.Close()
		rc = nil
	} else {
		l.Info("redis_ping_ok")
	}

	// 文档注释：建筑轮廓数据源
	// 背景：HTTP 数据源优先，本地 GeoJSON 目录兜底；两者都包一层进程内 LRU 与可选 Redis 缓存，由管理器按健康状态选择。
	pm := outline.NewManager()
	lru := outline.NewLRU(cfg.OutlineLRUSize, cfg.OutlineCacheTTL)
	if cfg.OutlineEndpoint != "" {
		client := &http.Client{Timeout: cfg.OutlineTimeout}
		src := outline.NewHTTPSource("http", cfg.OutlineEndpoint, cfg.OutlineHealthURL, client)
		pm.Register(outline.NewCachedSource(src, lru, rc, cfg.OutlineCacheTTL))
		l.Info("outline_source_register", "name", "http", "endpoint", cfg.OutlineEndpoint)
	}
	if fs, err := outline.LoadDir(cfg.OutlineDir); err == nil && fs.Len() > 0 {
		pm.Register(outline.NewCachedSource(fs, lru, nil, cfg.OutlineCacheTTL))
		l.Info("outline_source_register", "name", "file", "dir", cfg.OutlineDir, "features", fs.Len())
	} else if err != nil {
		l.Debug("outline_dir_skip", "dir", cfg.OutlineDir, "err", err)
	}
	pm.Start(ctx)

	locator := geolocate.OpenOrDisabled(cfg.GeoIPPath)

	radius := drawing.RadiusRange{
		Min:           cfg.Radius.Min,
		Max:           cfg.Radius.Max,
		DefaultOffer:  cfg.Radius.DefaultOffer,
		DefaultSearch: cfg.Radius.DefaultSearch,
	}
	var fetcher snap.Fetcher
	if pm.Len() > 0 {
		fetcher = pm
	} else {
		l.Info("snap_no_outline_source")
	}
	reg := api.NewRegistry(cfg.SessionTTL, func() *wizard.Controller {
		idx := snap.NewIndex(fetcher, snap.Options{
			Enabled:      cfg.Snap.Enabled,
			MinZoom:      cfg.Snap.MinZoom,
			ThresholdPx:  cfg.Snap.ThresholdPx,
			Debounce:     cfg.Snap.Debounce,
			FetchTimeout: cfg.OutlineTimeout,
		})
		return wizard.NewController(wizard.Deps{Store: store, Snap: idx, Locator: locator, Radius: radius})
	})
	reg.Start(ctx)

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(reg, store)
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle("/", http.FileServer(http.Dir(cfg.UIDir)))
	// NOTE: 向前端暴露 API 基础路径与吸附参数，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + cfg.APIBase + "'\n"))
		_, _ = w.Write([]byte("window.__SNAP_MIN_ZOOM__=" + strconv.FormatFloat(cfg.Snap.MinZoom, 'f', -1, 64) + "\n"))
		_, _ = w.Write([]byte("window.__SNAP_THRESHOLD_PX__=" + strconv.FormatFloat(cfg.Snap.ThresholdPx, 'f', -1, 64) + "\n"))
	})

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.RateLimit(cfg.RateLimitEnabled, cfg.RateLimitQPS)(handler)
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.TLSEnabled {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "listing-map.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		if err := s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath); err != nil {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", cfg.Addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("server_error", "err", err)
	}
}

// openLayerStore LAYER_STORE=postgres 时连接数据库并确保表结构，失败则退回内存存储
func openLayerStore(cfg config.Config, l *slog.Logger) layer.Store {
	if cfg.LayerStore != "postgres" {
		l.Info("layer_store", "kind", "memory")
		return layer.NewMemoryStore()
	}
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		return layer.NewMemoryStore()
	}
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
		_ = db.Close()
		return layer.NewMemoryStore()
	}
	l.Info("db_ping_ok")
	if err := layer.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	l.Info("layer_store", "kind", "postgres")
	return layer.AttachDB(db)
}
