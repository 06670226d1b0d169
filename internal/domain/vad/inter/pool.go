package inter

import (
	"context"
	"fmt"
	"time"

	log "hedra-avatar-agent/logger"

	pool "github.com/jolestar/go-commons-pool/v2"
)

// PoolConfig VAD 实例池配置
type PoolConfig struct {
	MaxSize        int
	MinIdle        int
	MaxIdle        int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:        10,
		MinIdle:        1,
		MaxIdle:        5,
		AcquireTimeout: 3 * time.Second,
		IdleTimeout:    2 * time.Minute,
	}
}

// PoolConfigFromMap 读取 pool_max_size / pool_min_idle / pool_max_idle / acquire_timeout_ms
func PoolConfigFromMap(config map[string]interface{}) PoolConfig {
	c := DefaultPoolConfig()
	if v, ok := toInt(config["pool_max_size"]); ok && v > 0 {
		c.MaxSize = v
	}
	if v, ok := toInt(config["pool_min_idle"]); ok && v >= 0 {
		c.MinIdle = v
	}
	if v, ok := toInt(config["pool_max_idle"]); ok && v > 0 {
		c.MaxIdle = v
	}
	if v, ok := toInt(config["acquire_timeout_ms"]); ok && v > 0 {
		c.AcquireTimeout = time.Duration(v) * time.Millisecond
	}
	if c.MaxIdle > c.MaxSize {
		c.MaxIdle = c.MaxSize
	}
	return c
}

// Pool 基于 go-commons-pool 的 VAD 实例池，归还时重置检测器状态
type Pool struct {
	name   string
	config PoolConfig
	pool   *pool.ObjectPool
}

func NewPool(name string, config PoolConfig, create func() (VAD, error)) *Pool {
	factory := pool.NewPooledObjectFactory(
		func(context.Context) (interface{}, error) {
			return create()
		},
		func(_ context.Context, object *pool.PooledObject) error {
			return object.Object.(VAD).Close()
		},
		nil,
		nil,
		func(_ context.Context, object *pool.PooledObject) error {
			return object.Object.(VAD).Reset()
		},
	)

	poolConfig := pool.NewDefaultPoolConfig()
	poolConfig.MaxTotal = config.MaxSize
	poolConfig.MaxIdle = config.MaxIdle
	poolConfig.MinIdle = config.MinIdle
	poolConfig.BlockWhenExhausted = true
	if config.IdleTimeout > 0 {
		poolConfig.MinEvictableIdleTime = config.IdleTimeout
		poolConfig.TimeBetweenEvictionRuns = config.IdleTimeout / 2
	}

	return &Pool{
		name:   name,
		config: config,
		pool:   pool.NewObjectPool(context.Background(), factory, poolConfig),
	}
}

// Acquire 池满时阻塞等待，最长 AcquireTimeout
func (p *Pool) Acquire(ctx context.Context) (VAD, error) {
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}
	obj, err := p.pool.BorrowObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取%s实例失败(%d/%d): %w", p.name, p.pool.GetNumActive(), p.config.MaxSize, err)
	}
	log.Debugf("获取%s实例, 活跃: %d, 空闲: %d", p.name, p.pool.GetNumActive(), p.pool.GetNumIdle())
	return obj.(VAD), nil
}

func (p *Pool) Release(vad VAD) error {
	if vad == nil {
		return nil
	}
	if err := p.pool.ReturnObject(context.Background(), vad); err != nil {
		return fmt.Errorf("归还%s实例失败: %w", p.name, err)
	}
	return nil
}

func (p *Pool) Close() {
	p.pool.Close(context.Background())
	log.Infof("%s资源池已关闭", p.name)
}

func (p *Pool) Stats() map[string]int {
	return map[string]int{
		"active":   p.pool.GetNumActive(),
		"idle":     p.pool.GetNumIdle(),
		"max_size": p.config.MaxSize,
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
