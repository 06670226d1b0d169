package redis_config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	i_redis "hedra-avatar-agent/internal/db/redis"
	"hedra-avatar-agent/internal/domain/config/types"
	log "hedra-avatar-agent/logger"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// RedisSessionConfigProvider 房间覆盖配置存放在 hash <prefix>:sessionconfig:<room>
// 每个 field 是一个组件(llm/tts/...)，value 为 json
type RedisSessionConfigProvider struct {
	redisInstance *redis.Client
	prefix        string
}

// NewRedisSessionConfigProvider config 支持 prefix，缺省取 redis.key_prefix
func NewRedisSessionConfigProvider(config map[string]interface{}) (*RedisSessionConfigProvider, error) {
	client := i_redis.GetClient()
	if client == nil {
		return nil, errors.New("redis 未初始化")
	}
	return newWithClient(client, config), nil
}

func newWithClient(client *redis.Client, config map[string]interface{}) *RedisSessionConfigProvider {
	prefix, _ := config["prefix"].(string)
	if prefix == "" {
		prefix = viper.GetString("redis.key_prefix")
	}
	log.Log().Info("Redis会话配置提供者初始化成功")
	return &RedisSessionConfigProvider{
		redisInstance: client,
		prefix:        prefix,
	}
}

func (u *RedisSessionConfigProvider) GetSessionConfig(ctx context.Context, room string) (types.SessionConfig, error) {
	ret := types.DefaultSessionConfig()

	redisConfig, err := u.redisInstance.HGetAll(ctx, u.key(room)).Result()
	if err != nil {
		return types.SessionConfig{}, fmt.Errorf("读取房间 %s 配置失败: %w", room, err)
	}

	for _, kind := range types.Kinds {
		rv, ok := redisConfig[kind]
		if !ok || rv == "" {
			continue
		}
		var override map[string]interface{}
		if err := json.Unmarshal([]byte(rv), &override); err != nil {
			// 单项损坏不影响其它配置
			log.Log("room", room, "kind", kind).Errorf("redis config unmarshal error: %+v", err)
			continue
		}
		pc := ret.Get(kind)
		*pc = types.Merge(kind, *pc, override)
	}
	if prompt, ok := redisConfig["system_prompt"]; ok && prompt != "" {
		ret.SystemPrompt = prompt
	}

	log.Debugf("room %s sessionconfig: %+v", room, ret)
	return ret, nil
}

func (u *RedisSessionConfigProvider) SetOverride(ctx context.Context, room string, kind string, override map[string]interface{}) error {
	if (&types.SessionConfig{}).Get(kind) == nil {
		return fmt.Errorf("未知的配置项: %s", kind)
	}
	data, err := json.Marshal(override)
	if err != nil {
		return err
	}
	return u.redisInstance.HSet(ctx, u.key(room), kind, string(data)).Err()
}

func (u *RedisSessionConfigProvider) DeleteSessionConfig(ctx context.Context, room string) error {
	return u.redisInstance.Del(ctx, u.key(room)).Err()
}

// Close 共享的全局客户端由 db/redis 负责关闭
func (u *RedisSessionConfigProvider) Close() error {
	return nil
}

func (u *RedisSessionConfigProvider) key(room string) string {
	return i_redis.GetKeyWithPrefix(u.prefix, "sessionconfig:"+room)
}
