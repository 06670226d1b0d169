package tts

import (
	"context"
	"fmt"

	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/domain/tts/elevenlabs"
)

// TTSProvider 流式合成，输出 opus 帧
type TTSProvider interface {
	TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (outputChan chan []byte, err error)
}

// GetTTSProvider config 中的 voice_id 由会话启动时按房间参与者覆盖
func GetTTSProvider(providerName string, config map[string]interface{}) (TTSProvider, error) {
	switch providerName {
	case constants.TtsTypeElevenLabs:
		return elevenlabs.NewElevenLabsProvider(config)
	default:
		return nil, fmt.Errorf("不支持的TTS提供者: %s", providerName)
	}
}
