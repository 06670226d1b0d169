package resolver

import (
	"testing"

	"hedra-avatar-agent/internal/domain/preset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forestVoice = "XB0fDUnXU5powFXDhCwa"

func newTestResolver() *Resolver {
	return NewResolver(preset.DefaultVoicePresetTable())
}

func one(metadata string) []Participant {
	return []Participant{{Identity: "user-1", Metadata: metadata}}
}

func TestResolvePresetAvatar(t *testing.T) {
	r := newTestResolver()

	cfg := r.Resolve(one(`{"hedra_avatar": "restaurant"}`))
	assert.Equal(t, "z9fAnlkpzviPz146aGWa", cfg.VoiceId)
	assert.Equal(t, "restaurant", cfg.AvatarRef)
	assert.Equal(t, "restaurant", cfg.AvatarImage())
	assert.False(t, cfg.CustomAvatar())
	assert.Nil(t, cfg.Credential)
	assert.Nil(t, cfg.AvatarAssetId)
}

func TestResolvePresetIgnoresVoiceOverride(t *testing.T) {
	r := newTestResolver()
	table := preset.DefaultVoicePresetTable()

	for _, name := range table.Names() {
		cfg := r.Resolve(one(`{"hedra_avatar": "` + name + `", "eleven_voice": "XYZ"}`))
		want, _ := table.Lookup(name)
		assert.Equal(t, want, cfg.VoiceId, name)
		assert.Equal(t, name, cfg.AvatarImage())
	}
}

func TestResolveCustomAvatar(t *testing.T) {
	r := newTestResolver()

	cfg := r.Resolve(one(`{"hedra_avatar": "custom", "eleven_voice": "XYZ"}`))
	assert.Equal(t, "XYZ", cfg.VoiceId)
	assert.True(t, cfg.CustomAvatar())
	assert.Equal(t, "forest", cfg.AvatarImage())

	cfg = r.Resolve(one(`{"hedra_avatar": "custom"}`))
	assert.Equal(t, forestVoice, cfg.VoiceId)
	assert.Equal(t, "forest", cfg.AvatarImage())
}

func TestResolveNoAvatarUsesVoiceOverride(t *testing.T) {
	cfg := newTestResolver().Resolve(one(`{"eleven_voice": "XYZ"}`))
	assert.Equal(t, "XYZ", cfg.VoiceId)
	assert.Equal(t, "forest", cfg.AvatarRef)
}

func TestResolveDefaults(t *testing.T) {
	r := newTestResolver()
	inputs := map[string][]Participant{
		"no participants": nil,
		"no metadata":     one(""),
		"malformed":       one(`{not json`),
		"not an object":   one(`[1,2,3]`),
		"empty object":    one(`{}`),
	}
	for name, participants := range inputs {
		t.Run(name, func(t *testing.T) {
			cfg := r.Resolve(participants)
			assert.Equal(t, "forest", cfg.AvatarRef)
			assert.Equal(t, "forest", cfg.AvatarImage())
			assert.Equal(t, forestVoice, cfg.VoiceId)
			assert.Nil(t, cfg.Credential)
			assert.Nil(t, cfg.AvatarAssetId)
		})
	}
}

func TestResolveCredentialAndAsset(t *testing.T) {
	cfg := newTestResolver().Resolve(one(`{"hedra_api_key":"hk-1","hedra_avatar":"custom","hedra_avatar_asset_id":"asset-7"}`))
	require.NotNil(t, cfg.Credential)
	require.NotNil(t, cfg.AvatarAssetId)
	assert.Equal(t, "hk-1", *cfg.Credential)
	assert.Equal(t, "asset-7", *cfg.AvatarAssetId)
}

func TestResolveOnlyFirstParticipant(t *testing.T) {
	r := newTestResolver()
	first := Participant{Identity: "a", Metadata: `{"hedra_avatar": "home"}`}
	second := Participant{Identity: "b", Metadata: `{"hedra_avatar": "business", "hedra_api_key": "other"}`}

	alone := r.Resolve([]Participant{first})
	both := r.Resolve([]Participant{first, second})
	assert.Equal(t, alone, both)
	assert.Equal(t, "P7x743VjyZEOihNNygQ9", both.VoiceId)

	// 第一个没有 metadata 时也不会去看第二个
	cfg := r.Resolve([]Participant{{Identity: "a"}, second})
	assert.Equal(t, forestVoice, cfg.VoiceId)
	assert.Nil(t, cfg.Credential)
}

func TestResolveUnknownPresetKeepsVoicePopulated(t *testing.T) {
	cfg := newTestResolver().Resolve(one(`{"hedra_avatar": "moon"}`))
	assert.Equal(t, forestVoice, cfg.VoiceId)
	assert.Equal(t, "moon", cfg.AvatarImage())
}

func TestFirstParticipant(t *testing.T) {
	_, ok := FirstParticipant(nil)
	assert.False(t, ok)

	p, ok := FirstParticipant([]Participant{{Identity: "a"}, {Identity: "b"}})
	assert.True(t, ok)
	assert.Equal(t, "a", p.Identity)
}
