package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	log "hedra-avatar-agent/logger"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "whisper-1"
	apiKeyEnv      = "OPENAI_API_KEY"
)

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

type WhisperProvider struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Prompt   string
	client   *http.Client
}

type transcription struct {
	Text string `json:"text"`
}

func NewWhisperProvider(config map[string]interface{}) (*WhisperProvider, error) {
	p := &WhisperProvider{
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
		client:  httpClient,
	}
	if v, ok := config["base_url"].(string); ok && v != "" {
		p.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := config["api_key"].(string); ok && v != "" {
		p.APIKey = v
	} else {
		p.APIKey = os.Getenv(apiKeyEnv)
	}
	if v, ok := config["model"].(string); ok && v != "" {
		p.Model = v
	}
	if v, ok := config["language"].(string); ok {
		p.Language = v
	}
	if v, ok := config["prompt"].(string); ok {
		p.Prompt = v
	}
	if p.APIKey == "" {
		return nil, errors.New("whisper: 缺少 api_key")
	}
	return p, nil
}

// Process 将整段 pcm 封装成 wav 后上传 /audio/transcriptions
func (p *WhisperProvider) Process(ctx context.Context, pcmData []float32, sampleRate int) (string, error) {
	if len(pcmData) == 0 {
		return "", nil
	}
	startTs := time.Now()

	wavData, err := EncodeWav(pcmData, sampleRate)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "speech.wav")
	if err != nil {
		return "", fmt.Errorf("创建表单失败: %w", err)
	}
	if _, err = fw.Write(wavData); err != nil {
		return "", fmt.Errorf("写入音频失败: %w", err)
	}
	fields := map[string]string{
		"model":           p.Model,
		"response_format": "json",
		"language":        p.Language,
		"prompt":          p.Prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err = mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("写入表单字段 %s 失败: %w", k, err)
		}
	}
	if err = mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper 返回状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var result transcription
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("解析识别结果失败: %w", err)
	}
	log.Debugf("whisper 识别耗时: %d ms, 音频 %d ms, 结果: %s",
		time.Since(startTs).Milliseconds(), len(pcmData)*1000/sampleRate, result.Text)
	return strings.TrimSpace(result.Text), nil
}

// EncodeWav float32 pcm 转 16bit 单声道 wav
func EncodeWav(pcmData []float32, sampleRate int) ([]byte, error) {
	ints := make([]int, len(pcmData))
	for i, v := range pcmData {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		ints[i] = int(v * 32767)
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("写入wav失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("关闭wav编码器失败: %w", err)
	}
	return ws.buf, nil
}

// writeSeeker wav 编码器结束时需要回写头部长度
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		w.buf = append(w.buf, make([]byte, need-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("whisper: 无效的 whence")
	}
	if abs < 0 {
		return 0, errors.New("whisper: 负的偏移")
	}
	w.pos = int(abs)
	return abs, nil
}
