package layer

import (
	"context"
	"sync"
	"time"

	"listing-map/internal/logger"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// MemoryStore 进程内图层存储；LAYER_STORE=memory 时使用，也用于测试
type MemoryStore struct {
	mu     sync.RWMutex
	layers map[string]*Layer
	backup map[string]*Layer
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{layers: make(map[string]*Layer), backup: make(map[string]*Layer), now: time.Now}
}

func clone(l *Layer) *Layer {
	c := *l
	if l.Geometry != nil {
		c.Geometry = orb.Clone(l.Geometry)
	}
	return &c
}

func (m *MemoryStore) add(l *Layer, src Source) (string, error) {
	c := clone(l)
	if err := prepare(c, src, uuid.NewString(), m.now()); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.layers[c.ID] = c
	m.mu.Unlock()
	logger.Component("layer").Debug("layer_added", "id", c.ID, "source", src, "store", "memory")
	return c.ID, nil
}

func (m *MemoryStore) AddLayer(ctx context.Context, l *Layer) (string, error) {
	return m.add(l, FromUpload)
}

func (m *MemoryStore) AddConstructedLayer(ctx context.Context, l *Layer) (string, error) {
	return m.add(l, FromDrawing)
}

func (m *MemoryStore) UpdateLayer(ctx context.Context, id string, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return ErrNotFound
	}
	apply(l, p)
	return nil
}

func (m *MemoryStore) RemoveLayer(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[id]; !ok {
		return ErrNotFound
	}
	delete(m.layers, id)
	delete(m.backup, id)
	return nil
}

// StartEditing 保存快照；重复调用保留最早快照
func (m *MemoryStore) StartEditing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return ErrNotFound
	}
	if l.Editing {
		return nil
	}
	m.backup[id] = clone(l)
	l.Editing = true
	return nil
}

func (m *MemoryStore) StopEditing(ctx context.Context, id string, commit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return ErrNotFound
	}
	if !l.Editing {
		return ErrNotEditing
	}
	if !commit {
		if b, ok := m.backup[id]; ok {
			l = b
			m.layers[id] = l
		}
	}
	l.Editing = false
	delete(m.backup, id)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Layer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(l), nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.layers)
}
