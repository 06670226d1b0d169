package asr

import (
	"context"
	"fmt"

	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/domain/asr/whisper"
)

// AsrProvider 语音识别接口
type AsrProvider interface {
	// Process 一次性处理整段音频（单声道 float32 pcm），返回完整识别结果
	Process(ctx context.Context, pcmData []float32, sampleRate int) (string, error)
}

// NewAsrProvider asrType 目前支持 "whisper"
func NewAsrProvider(asrType string, config map[string]interface{}) (AsrProvider, error) {
	switch asrType {
	case constants.AsrTypeWhisper:
		return whisper.NewWhisperProvider(config)
	default:
		return nil, fmt.Errorf("不支持的ASR引擎类型: %s，目前仅支持 'whisper'", asrType)
	}
}
