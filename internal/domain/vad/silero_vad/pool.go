package silero_vad

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hedra-avatar-agent/internal/domain/vad/inter"
	log "hedra-avatar-agent/logger"
)

var (
	globalVADResourcePool *inter.Pool
	initMutex             sync.Mutex
)

// InitVadPool 进程启动时调用，需要 model_path；重复调用时关闭旧池
func InitVadPool(config map[string]interface{}) error {
	vadConfig, err := vadConfigFromMap(config)
	if err != nil {
		return err
	}
	poolConfig := inter.PoolConfigFromMap(config)

	// 预先创建一个实例验证模型可用
	probe, err := NewSileroVAD(vadConfig)
	if err != nil {
		return fmt.Errorf("初始化VAD资源池失败: %w", err)
	}
	_ = probe.Close()

	initMutex.Lock()
	defer initMutex.Unlock()
	if globalVADResourcePool != nil {
		globalVADResourcePool.Close()
	}
	globalVADResourcePool = inter.NewPool("Silero VAD", poolConfig, func() (inter.VAD, error) {
		return NewSileroVAD(vadConfig)
	})
	log.Infof("VAD资源池初始化完成，模型路径: %s，池大小: %d", vadConfig.ModelPath, poolConfig.MaxSize)
	return nil
}

// AcquireVAD 获取一个VAD实例
func AcquireVAD(ctx context.Context) (inter.VAD, error) {
	initMutex.Lock()
	p := globalVADResourcePool
	initMutex.Unlock()
	if p == nil {
		return nil, errors.New("VAD资源池尚未初始化")
	}
	return p.Acquire(ctx)
}

// ReleaseVAD 释放一个VAD实例
func ReleaseVAD(vad inter.VAD) error {
	initMutex.Lock()
	p := globalVADResourcePool
	initMutex.Unlock()
	if p == nil {
		return vad.Close()
	}
	return p.Release(vad)
}

// ClosePool 进程退出时释放全部实例
func ClosePool() {
	initMutex.Lock()
	defer initMutex.Unlock()
	if globalVADResourcePool != nil {
		globalVADResourcePool.Close()
		globalVADResourcePool = nil
	}
}
