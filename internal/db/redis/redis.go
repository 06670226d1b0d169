package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	log "hedra-avatar-agent/logger"
)

var (
	// 全局Redis客户端实例
	globalClient *redis.Client
	once         sync.Once
	mu           sync.RWMutex
)

// Config Redis配置结构体
type Config struct {
	Host         string        `mapstructure:"host" json:"host"`
	Port         int           `mapstructure:"port" json:"port"`
	Password     string        `mapstructure:"password" json:"password"`
	DB           int           `mapstructure:"db" json:"db"`
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
	}
}

// Init 初始化Redis客户端，只执行一次
func Init(config *Config) error {
	var initErr error

	once.Do(func() {
		if config == nil {
			config = DefaultConfig()
		}

		client := redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			PoolSize:     config.PoolSize,
			MinIdleConns: config.MinIdleConns,
			MaxRetries:   config.MaxRetries,
			DialTimeout:  config.DialTimeout,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			initErr = fmt.Errorf("failed to connect to redis: %w", err)
			return
		}

		SetClient(client)
		log.Log().Info("Redis客户端初始化成功")
	})

	return initErr
}

// SetClient 替换全局客户端，测试中也用它注入
func SetClient(client *redis.Client) {
	mu.Lock()
	defer mu.Unlock()
	globalClient = client
}

// GetClient 获取Redis客户端实例，未初始化时返回 nil
func GetClient() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	return globalClient
}

// IsHealthy 检查Redis连接健康状态
func IsHealthy(ctx context.Context) bool {
	client := GetClient()
	if client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return client.Ping(ctx).Err() == nil
}

// Close 关闭Redis客户端连接
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if globalClient == nil {
		return nil
	}
	err := globalClient.Close()
	globalClient = nil
	if err != nil {
		log.Log().Errorf("关闭Redis连接失败: %v", err)
		return err
	}
	log.Log().Info("Redis连接已关闭")
	return nil
}

// GetKeyWithPrefix 获取带前缀的键名
func GetKeyWithPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", prefix, key)
}

var ErrLockLost = errors.New("room lock lost")

// RoomLock 基于 SETNX 的房间锁，保证多个 agent 实例不会同时接管同一个房间
type RoomLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRoomLock(client *redis.Client, prefix string, ttl time.Duration) *RoomLock {
	return &RoomLock{client: client, prefix: prefix, ttl: ttl}
}

// Acquire 成功返回 true；owner 用于释放时校验
func (l *RoomLock) Acquire(ctx context.Context, room string, owner string) (bool, error) {
	return l.client.SetNX(ctx, l.key(room), owner, l.ttl).Result()
}

// Release 只有持有者才能释放
func (l *RoomLock) Release(ctx context.Context, room string, owner string) error {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	return l.client.Eval(ctx, script, []string{l.key(room)}, owner).Err()
}

// Refresh 会话存活期间续期，锁已易主时返回 ErrLockLost
func (l *RoomLock) Refresh(ctx context.Context, room string, owner string) error {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
	n, err := l.client.Eval(ctx, script, []string{l.key(room)}, owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *RoomLock) TTL() time.Duration {
	return l.ttl
}

func (l *RoomLock) key(room string) string {
	return GetKeyWithPrefix(l.prefix, "roomlock:"+room)
}
