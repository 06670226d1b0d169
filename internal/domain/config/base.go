package session_config

import (
	"fmt"

	"hedra-avatar-agent/internal/domain/config/memory"
	sessionconfig_redis "hedra-avatar-agent/internal/domain/config/redis"
)

// GetSessionConfigProvider 根据存储类型创建会话配置提供者
// providerType: "redis" 或 "memory"
func GetSessionConfigProvider(providerType string, config map[string]interface{}) (SessionConfigProvider, error) {
	if config == nil {
		config = make(map[string]interface{})
	}

	switch providerType {
	case "redis":
		provider, err := sessionconfig_redis.NewRedisSessionConfigProvider(config)
		if err != nil {
			return nil, fmt.Errorf("创建Redis会话配置提供者失败: %w", err)
		}
		return provider, nil
	case "memory", "":
		return memory.NewMemorySessionConfigProvider(config)
	default:
		return nil, fmt.Errorf("不支持的会话配置提供者: %s", providerType)
	}
}
