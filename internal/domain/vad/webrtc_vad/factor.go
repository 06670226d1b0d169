package webrtc_vad

import (
	"hedra-avatar-agent/internal/domain/vad/inter"
)

// WebRTCVADConfig WebRTC VAD 配置
type WebRTCVADConfig struct {
	SampleRate int
	Mode       int
}

func getVadConfigFromMap(config map[string]interface{}) WebRTCVADConfig {
	c := WebRTCVADConfig{SampleRate: DefaultSampleRate, Mode: DefaultMode}
	if v, ok := config["vad_sample_rate"].(int); ok && isValidSampleRate(v) {
		c.SampleRate = v
	}
	if v, ok := config["vad_mode"].(int); ok && v >= 0 && v <= 3 {
		c.Mode = v
	}
	return c
}

// newFactory 池中实例的创建函数
func newFactory(config WebRTCVADConfig) func() (inter.VAD, error) {
	if config.SampleRate == 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.Mode < 0 || config.Mode > 3 {
		config.Mode = DefaultMode
	}
	return func() (inter.VAD, error) {
		return NewWebRTCVADWithConfig(config.SampleRate, config.Mode)
	}
}
