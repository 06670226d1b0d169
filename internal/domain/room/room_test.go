package room

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"hedra-avatar-agent/internal/domain/resolver"

	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	room         string
	participants []*livekit.ParticipantInfo
	err          error
}

func (f *fakeLister) ListParticipants(_ context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	f.room = req.GetRoom()
	if f.err != nil {
		return nil, f.err
	}
	return &livekit.ListParticipantsResponse{Participants: f.participants}, nil
}

func TestRemoteParticipants(t *testing.T) {
	lister := &fakeLister{participants: []*livekit.ParticipantInfo{
		{Identity: "bob", JoinedAtMs: 2000, Metadata: `{"hedra_avatar":"home"}`},
		{Identity: "agent-1", JoinedAtMs: 500},
		{Identity: "dispatch", JoinedAtMs: 100, Kind: livekit.ParticipantInfo_AGENT},
		{Identity: "carol", JoinedAt: 1},
		{Identity: "alice", JoinedAtMs: 1000},
	}}
	client := NewRoomClientWithLister(lister, "agent-")

	ps, err := client.RemoteParticipants(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", lister.room)
	assert.Equal(t, []resolver.Participant{
		{Identity: "alice"},
		{Identity: "carol"},
		{Identity: "bob", Metadata: `{"hedra_avatar":"home"}`},
	}, ps)
}

func TestRemoteParticipantsError(t *testing.T) {
	client := NewRoomClientWithLister(&fakeLister{err: errors.New("twirp error")}, "")
	_, err := client.RemoteParticipants(context.Background(), "demo")
	assert.ErrorContains(t, err, "twirp error")
}

func TestAvatarToken(t *testing.T) {
	minter := NewTokenMinter(Config{APIKey: "devkey", APISecret: "secret-secret-secret-secret-secret"})

	token, err := minter.AvatarToken("demo", "hedra-avatar-agent", "Hedra Avatar", "agent-demo")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var claims struct {
		Sub        string            `json:"sub"`
		Iss        string            `json:"iss"`
		Name       string            `json:"name"`
		Attributes map[string]string `json:"attributes"`
		Video      struct {
			Room     string `json:"room"`
			RoomJoin bool   `json:"roomJoin"`
		} `json:"video"`
	}
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "hedra-avatar-agent", claims.Sub)
	assert.Equal(t, "devkey", claims.Iss)
	assert.Equal(t, "Hedra Avatar", claims.Name)
	assert.Equal(t, "demo", claims.Video.Room)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "agent-demo", claims.Attributes[AttributePublishOnBehalf])
}

func TestHttpURL(t *testing.T) {
	assert.Equal(t, "https://x.livekit.cloud", HttpURL("wss://x.livekit.cloud"))
	assert.Equal(t, "http://localhost:7880", HttpURL("ws://localhost:7880"))
	assert.Equal(t, "http://localhost:7880", HttpURL("http://localhost:7880"))
}
