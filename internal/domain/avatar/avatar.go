package avatar

import (
	"context"
	"errors"
	"fmt"

	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/domain/avatar/hedra"
	"hedra-avatar-agent/internal/domain/preset"
)

var ErrMissingCredential = hedra.ErrMissingCredential

// StartRequest AssetId 与 Image 二选一，AssetId 优先
type StartRequest struct {
	Room         string
	LiveKitURL   string
	LiveKitToken string
	// Credential 参会者自带的 api key，优先于配置
	Credential *string
	AssetId    *string
	Image      *preset.AvatarImage
}

// Session 已在外部服务启动的形象会话
type Session struct {
	Provider  string
	SessionId string
	Room      string
}

type AvatarProvider interface {
	Start(ctx context.Context, req StartRequest) (*Session, error)
}

func GetAvatarProvider(providerName string, config map[string]interface{}) (AvatarProvider, error) {
	switch providerName {
	case constants.AvatarTypeHedra:
		return &hedraAdapter{client: hedra.NewClient(config)}, nil
	default:
		return nil, fmt.Errorf("不支持的形象服务: %s", providerName)
	}
}

type hedraAdapter struct {
	client *hedra.Client
}

func (a *hedraAdapter) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.AssetId == nil && req.Image == nil {
		return nil, errors.New("avatar: 需要 asset id 或形象图片")
	}
	hreq := hedra.SessionRequest{
		LiveKitURL:   req.LiveKitURL,
		LiveKitToken: req.LiveKitToken,
	}
	if req.Credential != nil {
		hreq.APIKey = *req.Credential
	}
	if req.AssetId != nil {
		hreq.AvatarId = *req.AssetId
	} else {
		hreq.AvatarImage = req.Image.Data
		hreq.AvatarFileName = req.Image.FileName()
		hreq.AvatarMimeType = req.Image.MimeType
	}

	sessionId, err := a.client.StartSession(ctx, hreq)
	if err != nil {
		return nil, err
	}
	return &Session{Provider: constants.AvatarTypeHedra, SessionId: sessionId, Room: req.Room}, nil
}
