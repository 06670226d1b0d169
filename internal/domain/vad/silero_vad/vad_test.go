package silero_vad

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVadConfigFromMap(t *testing.T) {
	_, err := vadConfigFromMap(map[string]interface{}{})
	assert.Error(t, err)

	c, err := vadConfigFromMap(map[string]interface{}{
		"model_path":              "models/silero_vad.onnx",
		"threshold":               0.6,
		"min_silence_duration_ms": int64(300),
		"speech_pad_ms":           float64(30),
	})
	assert.NoError(t, err)
	assert.Equal(t, Config{
		ModelPath:            "models/silero_vad.onnx",
		Threshold:            0.6,
		MinSilenceDurationMs: 300,
		SampleRate:           16000,
		SpeechPadMs:          30,
	}, c)
}

func TestAcquireWithoutPool(t *testing.T) {
	ClosePool()
	_, err := AcquireVAD(context.Background())
	assert.Error(t, err)
}
