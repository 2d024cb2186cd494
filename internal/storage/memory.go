package storage

import (
	"time"

	"docchat-web/internal/service"
	"docchat-web/pkg/logger"

	"github.com/patrickmn/go-cache"
)

// MemoryStorage 基于 go-cache 的工作区存储，访问时续期，过期后关闭工作区的订阅
type MemoryStorage struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewMemoryStorage(ttl, cleanupInterval time.Duration) *MemoryStorage {
	c := cache.New(ttl, cleanupInterval)
	c.OnEvicted(func(id string, v interface{}) {
		if ws, ok := v.(*service.Workspace); ok {
			ws.Close()
		}
		logger.Debugf("工作区 %s 已过期", id)
	})
	return &MemoryStorage{
		cache: c,
		ttl:   ttl,
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

// Close 关闭全部工作区
func (m *MemoryStorage) Close() error {
	for id := range m.cache.Items() {
		m.cache.Delete(id)
	}
	return nil
}

func (m *MemoryStorage) GetWorkspace(id string) (*service.Workspace, error) {
	v, found := m.cache.Get(id)
	if !found {
		return nil, ErrWorkspaceNotFound
	}
	ws, ok := v.(*service.Workspace)
	if !ok {
		return nil, ErrInvalidData
	}

	// 滑动过期
	m.cache.Set(id, ws, cache.DefaultExpiration)
	return ws, nil
}

func (m *MemoryStorage) SaveWorkspace(ws *service.Workspace) error {
	if ws == nil || ws.ID() == "" {
		return ErrInvalidData
	}
	m.cache.Set(ws.ID(), ws, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStorage) DeleteWorkspace(id string) error {
	if _, found := m.cache.Get(id); !found {
		return ErrWorkspaceNotFound
	}
	// OnEvicted 会负责关闭工作区
	m.cache.Delete(id)
	return nil
}

func (m *MemoryStorage) Count() int {
	return m.cache.ItemCount()
}
