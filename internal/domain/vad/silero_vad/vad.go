package silero_vad

import (
	"errors"
	"sync"

	log "hedra-avatar-agent/logger"

	"github.com/streamer45/silero-vad-go/speech"
)

// Config Silero 检测器参数
type Config struct {
	ModelPath            string
	Threshold            float64
	MinSilenceDurationMs int
	SampleRate           int
	SpeechPadMs          int
}

func defaultConfig() Config {
	return Config{
		Threshold:            0.5,
		MinSilenceDurationMs: 100,
		SampleRate:           16000,
		SpeechPadMs:          60,
	}
}

func vadConfigFromMap(config map[string]interface{}) (Config, error) {
	c := defaultConfig()
	if v, ok := config["model_path"].(string); ok {
		c.ModelPath = v
	}
	if v, ok := config["threshold"].(float64); ok && v > 0 {
		c.Threshold = v
	}
	if v, ok := toInt(config["min_silence_duration_ms"]); ok && v > 0 {
		c.MinSilenceDurationMs = v
	}
	if v, ok := toInt(config["sample_rate"]); ok && v > 0 {
		c.SampleRate = v
	}
	if v, ok := toInt(config["speech_pad_ms"]); ok && v >= 0 {
		c.SpeechPadMs = v
	}
	if c.ModelPath == "" {
		return c, errors.New("模型路径不能为空")
	}
	return c, nil
}

// SileroVAD Silero VAD模型实现
type SileroVAD struct {
	detector *speech.Detector
	config   Config
	mu       sync.Mutex
}

// NewSileroVAD 创建SileroVAD实例
func NewSileroVAD(config Config) (*SileroVAD, error) {
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            config.ModelPath,
		SampleRate:           config.SampleRate,
		Threshold:            float32(config.Threshold),
		MinSilenceDurationMs: config.MinSilenceDurationMs,
		SpeechPadMs:          config.SpeechPadMs,
		LogLevel:             speech.LogLevelWarn,
	})
	if err != nil {
		return nil, err
	}

	return &SileroVAD{
		detector: detector,
		config:   config,
	}, nil
}

// IsVAD 实现VAD接口的IsVAD方法
func (s *SileroVAD) IsVAD(pcmData []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments, err := s.detector.Detect(pcmData)
	if err != nil {
		log.Errorf("检测失败: %s", err)
		return false, err
	}

	for _, seg := range segments {
		log.Debugf("speech starts at %0.2fs", seg.SpeechStartAt)
		if seg.SpeechEndAt > 0 {
			log.Debugf("speech ends at %0.2fs", seg.SpeechEndAt)
		}
	}

	return len(segments) > 0, nil
}

// Reset 重置VAD检测器状态
func (s *SileroVAD) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.detector.Reset()
}

// Close 关闭并释放资源
func (s *SileroVAD) Close() error {
	if s.detector != nil {
		return s.detector.Destroy()
	}
	return nil
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
