package webrtc_vad

import (
	"context"
	"fmt"
	"sync"

	"hedra-avatar-agent/internal/domain/vad/inter"
)

var (
	vadPool *inter.Pool
	once    sync.Once
)

// NewWebRTCVADPool 创建WebRTC VAD资源池
func NewWebRTCVADPool(config WebRTCVADConfig, poolConfig inter.PoolConfig) *inter.Pool {
	return inter.NewPool("WebRTC VAD", poolConfig, newFactory(config))
}

// AcquireVAD 首次调用时按 config 创建全局池
func AcquireVAD(ctx context.Context, config map[string]interface{}) (inter.VAD, error) {
	once.Do(func() {
		vadPool = NewWebRTCVADPool(getVadConfigFromMap(config), inter.PoolConfigFromMap(config))
	})
	if vadPool == nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD pool")
	}
	return vadPool.Acquire(ctx)
}

func ReleaseVAD(vad inter.VAD) error {
	if vadPool != nil {
		return vadPool.Release(vad)
	}
	return vad.Close()
}
