package outline

import (
	"context"
	"sync"
	"time"

	"listing-map/internal/logger"
	"listing-map/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：数据源健康状态缓存
type status struct {
	healthy bool
	last    time.Time
}

// 文档注释：数据源管理器
// 背景：负责数据源注册、心跳与健康筛选；Fetch 按注册顺序（即优先级）依次尝试健康数据源，首个成功者返回。
// 约束：心跳周期默认 10s；心跳异常视为不健康，自动跳过；心跳调用期间不持锁。
type Manager struct {
	mu         sync.RWMutex
	order      []string
	ps         map[string]Source
	st         map[string]status
	hbInterval time.Duration
}

func NewManager() *Manager {
	return &Manager{ps: make(map[string]Source), st: make(map[string]status), hbInterval: 10 * time.Second}
}

// Register 同名数据源覆盖旧值但保留原优先级；默认健康以便立即参与查询
func (m *Manager) Register(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ps[s.Name()]; !ok {
		m.order = append(m.order, s.Name())
	}
	m.ps[s.Name()] = s
	m.st[s.Name()] = status{healthy: true, last: time.Now()}
	logger.Component("outline").Info("outline_source_registered", "name", s.Name(), "priority", len(m.order))
}

// Healthy 按优先级返回当前健康的数据源
func (m *Manager) Healthy() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Source
	for _, k := range m.order {
		if m.st[k].healthy {
			out = append(out, m.ps[k])
		}
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Start 周期性心跳，ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Heartbeat(ctx)
			}
		}
	}()
}

// Heartbeat 对所有数据源执行一次心跳并更新健康状态
func (m *Manager) Heartbeat(ctx context.Context) {
	m.mu.RLock()
	srcs := make([]Source, 0, len(m.order))
	for _, k := range m.order {
		srcs = append(srcs, m.ps[k])
	}
	m.mu.RUnlock()

	l := logger.Component("outline")
	for _, s := range srcs {
		err := s.Heartbeat(ctx)
		m.mu.Lock()
		m.st[s.Name()] = status{healthy: err == nil, last: time.Now()}
		m.mu.Unlock()
		if err != nil {
			l.Debug("outline_heartbeat_fail", "name", s.Name(), "err", err)
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "fail").Inc()
		} else {
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "ok").Inc()
		}
	}
}

// Fetch 依优先级回退；全部失败时返回最后一个错误，无健康数据源时返回 ErrNoSource
func (m *Manager) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	hs := m.Healthy()
	if len(hs) == 0 {
		return nil, ErrNoSource
	}
	l := logger.Component("outline")
	var lastErr error
	for _, s := range hs {
		fc, err := s.Fetch(ctx, b)
		if err == nil {
			return fc, nil
		}
		lastErr = err
		l.Debug("outline_source_fallback", "name", s.Name(), "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
