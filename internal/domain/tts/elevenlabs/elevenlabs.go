package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"hedra-avatar-agent/internal/domain/tts/common"
	log "hedra-avatar-agent/logger"

	"github.com/gopxl/beep"
)

const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultModelID      = "eleven_flash_v2_5"
	DefaultOutputFormat = "mp3_44100_128"
	apiKeyEnv           = "ELEVEN_API_KEY"
)

var ErrMissingVoice = errors.New("elevenlabs: voice_id 为空")

// 连接复用
var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type ElevenLabsProvider struct {
	BaseURL       string
	APIKey        string
	VoiceID       string
	ModelID       string
	OutputFormat  string
	VoiceSettings *VoiceSettings
	client        *http.Client
}

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

func NewElevenLabsProvider(config map[string]interface{}) (*ElevenLabsProvider, error) {
	p := &ElevenLabsProvider{
		BaseURL:      DefaultBaseURL,
		ModelID:      DefaultModelID,
		OutputFormat: DefaultOutputFormat,
		client:       httpClient,
	}
	if v, ok := config["base_url"].(string); ok && v != "" {
		p.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := config["api_key"].(string); ok && v != "" {
		p.APIKey = v
	} else {
		p.APIKey = os.Getenv(apiKeyEnv)
	}
	if v, ok := config["voice_id"].(string); ok {
		p.VoiceID = v
	}
	if v, ok := config["model_id"].(string); ok && v != "" {
		p.ModelID = v
	}
	if v, ok := config["output_format"].(string); ok && v != "" {
		p.OutputFormat = v
	}
	if settings, ok := config["voice_settings"].(map[string]interface{}); ok {
		vs := &VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
		if v, ok := toFloat(settings["stability"]); ok {
			vs.Stability = v
		}
		if v, ok := toFloat(settings["similarity_boost"]); ok {
			vs.SimilarityBoost = v
		}
		if v, ok := toFloat(settings["speed"]); ok {
			vs.Speed = v
		}
		p.VoiceSettings = vs
	}

	if p.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: 缺少 api_key")
	}
	if p.VoiceID == "" {
		return nil, ErrMissingVoice
	}
	if _, _, err := parseOutputFormat(p.OutputFormat); err != nil {
		return nil, err
	}
	return p, nil
}

// TextToSpeechStream 请求 /v1/text-to-speech/{voice_id}/stream，边下载边解码
func (p *ElevenLabsProvider) TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (chan []byte, error) {
	if channels != 1 {
		return nil, fmt.Errorf("elevenlabs: 仅支持单声道输出, channels=%d", channels)
	}
	startTs := time.Now()

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       p.ModelID,
		VoiceSettings: p.VoiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s",
		p.BaseURL, url.PathEscape(p.VoiceID), url.QueryEscape(p.OutputFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("xi-api-key", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs 返回状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	log.Debugf("elevenlabs 首字节耗时: %d ms, text: %s", time.Since(startTs).Milliseconds(), text)

	codec, srcRate, _ := parseOutputFormat(p.OutputFormat)
	outputChan := make(chan []byte, 100)
	decoder := common.CreateAudioDecoder(ctx, resp.Body, outputChan, sampleRate, frameDuration, codec)
	if codec == "pcm" {
		decoder.WithFormat(beep.Format{SampleRate: beep.SampleRate(srcRate), NumChannels: 1, Precision: 2})
	}

	go func() {
		defer resp.Body.Close()
		if err := decoder.Run(startTs); err != nil {
			log.Errorf("elevenlabs 音频解码失败: %v", err)
		}
	}()
	return outputChan, nil
}

// parseOutputFormat 形如 mp3_44100_128 或 pcm_24000
func parseOutputFormat(format string) (codec string, sampleRate int, err error) {
	parts := strings.Split(format, "_")
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("elevenlabs: 无效的 output_format %q", format)
	}
	switch parts[0] {
	case "mp3", "pcm":
	default:
		return "", 0, fmt.Errorf("elevenlabs: 不支持的 output_format %q", format)
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("elevenlabs: 无效的 output_format %q", format)
	}
	return parts[0], rate, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
