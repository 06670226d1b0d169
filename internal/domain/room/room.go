package room

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"hedra-avatar-agent/internal/domain/resolver"
	log "hedra-avatar-agent/logger"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// AttributePublishOnBehalf 形象参会者代替 agent 发布音视频
const AttributePublishOnBehalf = "lk.publish_on_behalf"

type Config struct {
	URL       string `mapstructure:"url" validate:"required"`
	APIKey    string `mapstructure:"api_key" validate:"required"`
	APISecret string `mapstructure:"api_secret" validate:"required"`
	// Identity 本服务在房间中的身份，同时作为过滤前缀
	Identity string        `mapstructure:"identity"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// ParticipantLister lksdk.RoomServiceClient 的子集
type ParticipantLister interface {
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
}

type RoomClient struct {
	lister         ParticipantLister
	identityPrefix string
}

func NewRoomClient(config Config) *RoomClient {
	return NewRoomClientWithLister(
		lksdk.NewRoomServiceClient(HttpURL(config.URL), config.APIKey, config.APISecret),
		config.Identity,
	)
}

func NewRoomClientWithLister(lister ParticipantLister, identityPrefix string) *RoomClient {
	return &RoomClient{lister: lister, identityPrefix: identityPrefix}
}

// RemoteParticipants 房间中的真人参会者，按入会时间排序，同一时刻按 identity 排序
func (c *RoomClient) RemoteParticipants(ctx context.Context, room string) ([]resolver.Participant, error) {
	resp, err := c.lister.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		return nil, fmt.Errorf("list participants of room %s: %w", room, err)
	}

	infos := make([]*livekit.ParticipantInfo, 0, len(resp.GetParticipants()))
	for _, p := range resp.GetParticipants() {
		if p.GetKind() == livekit.ParticipantInfo_AGENT {
			continue
		}
		if c.identityPrefix != "" && strings.HasPrefix(p.GetIdentity(), c.identityPrefix) {
			continue
		}
		infos = append(infos, p)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		ti, tj := joinedAtMs(infos[i]), joinedAtMs(infos[j])
		if ti != tj {
			return ti < tj
		}
		return infos[i].GetIdentity() < infos[j].GetIdentity()
	})

	participants := make([]resolver.Participant, 0, len(infos))
	for _, p := range infos {
		participants = append(participants, resolver.Participant{
			Identity: p.GetIdentity(),
			Metadata: p.GetMetadata(),
		})
	}
	log.Debugf("room %s: %d remote participants", room, len(participants))
	return participants, nil
}

func joinedAtMs(p *livekit.ParticipantInfo) int64 {
	if ms := p.GetJoinedAtMs(); ms > 0 {
		return ms
	}
	return p.GetJoinedAt() * 1000
}

// TokenMinter 为外部形象服务签发入会 token
type TokenMinter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func NewTokenMinter(config Config) *TokenMinter {
	ttl := config.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenMinter{apiKey: config.APIKey, apiSecret: config.APISecret, ttl: ttl}
}

// AvatarToken onBehalfOf 为空时不设置代发属性
func (m *TokenMinter) AvatarToken(room, identity, name, onBehalfOf string) (string, error) {
	at := auth.NewAccessToken(m.apiKey, m.apiSecret).
		SetVideoGrant(&auth.VideoGrant{RoomJoin: true, Room: room}).
		SetIdentity(identity).
		SetName(name).
		SetKind(livekit.ParticipantInfo_AGENT).
		SetValidFor(m.ttl)
	if onBehalfOf != "" {
		at.SetAttributes(map[string]string{AttributePublishOnBehalf: onBehalfOf})
	}
	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("mint avatar token: %w", err)
	}
	return token, nil
}

// HttpURL RoomService 走 http(s)，配置里通常是 ws(s)
func HttpURL(u string) string {
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	default:
		return u
	}
}
