package vad

import (
	"context"
	"fmt"

	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/domain/vad/inter"
	"hedra-avatar-agent/internal/domain/vad/silero_vad"
	"hedra-avatar-agent/internal/domain/vad/webrtc_vad"
)

// AcquireVAD silero 需要进程启动时 InitVadPool，webrtc 首次获取时建池
func AcquireVAD(ctx context.Context, provider string, config map[string]interface{}) (inter.VAD, error) {
	switch provider {
	case constants.VadTypeSileroVad:
		return silero_vad.AcquireVAD(ctx)
	case constants.VadTypeWebRTCVad:
		return webrtc_vad.AcquireVAD(ctx, config)
	default:
		return nil, fmt.Errorf("invalid vad provider: %s", provider)
	}
}

func ReleaseVAD(vad inter.VAD) error {
	//根据vad的类型，调用对应的ReleaseVAD方法
	switch vad.(type) {
	case *webrtc_vad.WebRTCVAD:
		return webrtc_vad.ReleaseVAD(vad)
	case *silero_vad.SileroVAD:
		return silero_vad.ReleaseVAD(vad)
	default:
		return vad.Close()
	}
}
