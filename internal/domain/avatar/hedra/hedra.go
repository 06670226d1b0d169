package hedra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	log "hedra-avatar-agent/logger"
)

const (
	DefaultBaseURL = "https://api.hedra.com"
	sessionPath    = "/public/livekit/v1/session"
	apiKeyEnv      = "HEDRA_API_KEY"
)

var ErrMissingCredential = errors.New("hedra: 缺少 api key")

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type SessionRequest struct {
	LiveKitURL   string
	LiveKitToken string
	// APIKey 非空时覆盖配置和环境变量
	APIKey         string
	AvatarId       string
	AvatarImage    []byte
	AvatarFileName string
	AvatarMimeType string
}

type sessionResponse struct {
	SessionId string `json:"session_id"`
	Id        string `json:"id"`
}

func NewClient(config map[string]interface{}) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	if v, ok := config["base_url"].(string); ok && v != "" {
		c.baseURL = strings.TrimRight(v, "/")
	}
	if v, ok := config["api_key"].(string); ok {
		c.apiKey = v
	}
	return c
}

// resolveKey 参会者凭证 > 配置 > 环境变量
func (c *Client) resolveKey(override string) (string, error) {
	for _, k := range []string{override, c.apiKey, os.Getenv(apiKeyEnv)} {
		if k != "" {
			return k, nil
		}
	}
	return "", ErrMissingCredential
}

// StartSession 通知 hedra 以给定形象加入房间，返回会话 ID（可能为空）
func (c *Client) StartSession(ctx context.Context, req SessionRequest) (string, error) {
	apiKey, err := c.resolveKey(req.APIKey)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err = mw.WriteField("livekit_url", req.LiveKitURL); err != nil {
		return "", err
	}
	if err = mw.WriteField("livekit_token", req.LiveKitToken); err != nil {
		return "", err
	}
	if req.AvatarId != "" {
		err = mw.WriteField("avatar_id", req.AvatarId)
	} else {
		err = writeImage(mw, req)
	}
	if err != nil {
		return "", fmt.Errorf("构造请求体失败: %w", err)
	}
	if err = mw.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionPath, &body)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	startTs := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("hedra 请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(raw)
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		return "", fmt.Errorf("hedra 返回状态码 %d: %s", resp.StatusCode, strings.TrimSpace(excerpt))
	}

	var sr sessionResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sr); err != nil {
			log.Warnf("hedra 响应不是 json: %v", err)
		}
	}
	sessionId := sr.SessionId
	if sessionId == "" {
		sessionId = sr.Id
	}
	log.Log("session_id", sessionId, "cost_ms", time.Since(startTs).Milliseconds()).Info("hedra avatar session started")
	return sessionId, nil
}

func writeImage(mw *multipart.Writer, req SessionRequest) error {
	if len(req.AvatarImage) == 0 {
		return errors.New("hedra: avatar_id 与 avatar_image 均为空")
	}
	name := req.AvatarFileName
	if name == "" {
		name = "avatar.png"
	}
	contentType := req.AvatarMimeType
	if contentType == "" {
		contentType = "image/png"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar_image"; filename="%s"`, name))
	h.Set("Content-Type", contentType)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = w.Write(req.AvatarImage)
	return err
}
