package memory

import (
	"context"
	"fmt"
	"sync"

	"hedra-avatar-agent/internal/domain/config/types"
	log "hedra-avatar-agent/logger"
)

// MemorySessionConfigProvider 把房间覆盖配置存在内存里，重启即丢失
// 适用于测试和单机部署
type MemorySessionConfigProvider struct {
	mu         sync.RWMutex
	overrides  map[string]map[string]map[string]interface{} // room -> kind -> override
	maxEntries int
}

// NewMemorySessionConfigProvider config 支持 max_entries
func NewMemorySessionConfigProvider(config map[string]interface{}) (*MemorySessionConfigProvider, error) {
	maxEntries := 1000
	if v, ok := config["max_entries"].(int); ok && v > 0 {
		maxEntries = v
	} else if v, ok := config["max_entries"].(float64); ok && v > 0 {
		maxEntries = int(v)
	}

	log.Log().Infof("内存会话配置提供者初始化成功，最大条目数: %d", maxEntries)
	return &MemorySessionConfigProvider{
		overrides:  make(map[string]map[string]map[string]interface{}),
		maxEntries: maxEntries,
	}, nil
}

func (m *MemorySessionConfigProvider) GetSessionConfig(ctx context.Context, room string) (types.SessionConfig, error) {
	ret := types.DefaultSessionConfig()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for kind, override := range m.overrides[room] {
		if pc := ret.Get(kind); pc != nil {
			*pc = types.Merge(kind, *pc, override)
		}
	}
	return ret, nil
}

func (m *MemorySessionConfigProvider) SetOverride(ctx context.Context, room string, kind string, override map[string]interface{}) error {
	if (&types.SessionConfig{}).Get(kind) == nil {
		return fmt.Errorf("未知的配置项: %s", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	roomOverrides, exists := m.overrides[room]
	if !exists {
		if len(m.overrides) >= m.maxEntries {
			return fmt.Errorf("已达到最大存储条目数 %d，无法添加新配置", m.maxEntries)
		}
		roomOverrides = make(map[string]map[string]interface{})
		m.overrides[room] = roomOverrides
	}
	roomOverrides[kind] = override
	log.Log().Infof("房间 %s 的 %s 配置设置成功 (内存存储)", room, kind)
	return nil
}

func (m *MemorySessionConfigProvider) DeleteSessionConfig(ctx context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.overrides, room)
	return nil
}

func (m *MemorySessionConfigProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.overrides = make(map[string]map[string]map[string]interface{})
	return nil
}
