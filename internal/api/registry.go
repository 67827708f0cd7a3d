package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"listing-map/internal/logger"
	"listing-map/internal/mapview"
	"listing-map/internal/metrics"
	"listing-map/internal/snap"
	"listing-map/internal/wizard"

	"github.com/google/uuid"
)

var errSessionNotFound = errors.New("session not found")

// session 一个向导会话及其最近的视口与悬停结果
type session struct {
	id      string
	c       *wizard.Controller
	mu      sync.Mutex
	view    *mapview.Viewport
	hover   *snap.Result
	touched time.Time
}

func (s *session) viewport() (mapview.Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return mapview.Viewport{}, false
	}
	return *s.view, true
}

func (s *session) setViewport(v mapview.Viewport) {
	s.mu.Lock()
	s.view = &v
	s.mu.Unlock()
}

func (s *session) setHover(r *snap.Result) {
	s.mu.Lock()
	s.hover = r
	s.mu.Unlock()
}

func (s *session) lastHover() *snap.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hover
}

// 文档注释：进程内会话注册表
// 背景：每个浏览器标签页对应一个向导控制器；HTTP 请求按会话 ID 找到控制器，空闲超过 TTL 的会话由后台清理。
// 约束：清理与显式删除都会先发送 CLOSE，让控制器丢弃未完成的图层；活跃会话数同步到指标。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	factory  func() *wizard.Controller
	now      func() time.Time
}

func NewRegistry(ttl time.Duration, factory func() *wizard.Controller) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if factory == nil {
		factory = func() *wizard.Controller { return wizard.NewController(wizard.Deps{}) }
	}
	return &Registry{sessions: make(map[string]*session), ttl: ttl, factory: factory, now: time.Now}
}

func (r *Registry) create() *session {
	s := &session{id: uuid.NewString(), c: r.factory()}
	r.mu.Lock()
	s.touched = r.now()
	r.sessions[s.id] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	logger.Component("api").Debug("session_created", "id", s.id)
	return s
}

// get 命中时刷新最近访问时间
func (r *Registry) get(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	s.touched = r.now()
	return s, nil
}

func (r *Registry) drop(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return errSessionNotFound
	}
	metrics.ActiveSessions.Set(float64(n))
	s.c.Close(ctx)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep 关闭并移除空闲超时的会话，返回移除数量
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.touched.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	for _, s := range expired {
		s.c.Close(ctx)
	}
	if len(expired) > 0 {
		logger.Component("api").Info("session_sweep", "expired", len(expired), "active", n)
	}
	return len(expired)
}

// Start 后台定期清理，随 ctx 结束
func (r *Registry) Start(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Sweep(ctx)
			}
		}
	}()
}
