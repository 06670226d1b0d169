package resolver

import (
	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/domain/metadata"
	"hedra-avatar-agent/internal/domain/preset"
	log "hedra-avatar-agent/logger"

	"github.com/samber/lo"
)

// Participant 房间中的远端参会者
type Participant struct {
	Identity string
	Metadata string
}

// ResolvedConfig 启动形象/语音会话需要的配置，用完即弃
type ResolvedConfig struct {
	// Credential 参会者自带的 hedra api key
	Credential *string
	// AvatarRef 预设名，或 "custom" 表示使用用户上传的形象
	AvatarRef string
	// AvatarAssetId 已上传形象的 ID，存在时直接引用，不再上传图片
	AvatarAssetId *string
	VoiceId       string
}

// CustomAvatar 用户是否选择了自定义形象
func (c ResolvedConfig) CustomAvatar() bool {
	return c.AvatarRef == constants.AvatarCustom
}

// AvatarImage 需要加载的预设图片名，自定义形象时使用默认预设
func (c ResolvedConfig) AvatarImage() string {
	if c.AvatarRef == "" || c.CustomAvatar() {
		return constants.PresetDefault
	}
	return c.AvatarRef
}

type Resolver struct {
	voices preset.VoicePresetTable
}

func NewResolver(voices preset.VoicePresetTable) *Resolver {
	return &Resolver{voices: voices}
}

// FirstParticipant 只取第一个参会者，后面的一律不看
func FirstParticipant(participants []Participant) (Participant, bool) {
	return lo.First(participants)
}

// Resolve 由第一个参会者的 metadata 推导形象与音色
// metadata 缺失或解析失败时全部走默认值，不返回错误
func (r *Resolver) Resolve(participants []Participant) ResolvedConfig {
	var md metadata.ParticipantMetadata
	if p, ok := FirstParticipant(participants); ok {
		md, _ = metadata.Parse(p.Identity, p.Metadata)
	}

	ret := ResolvedConfig{}
	if md.HedraApiKey != "" {
		ret.Credential = lo.ToPtr(md.HedraApiKey)
	}
	if md.HedraAvatarAssetId != "" {
		ret.AvatarAssetId = lo.ToPtr(md.HedraAvatarAssetId)
	}

	if md.HedraAvatar != "" && md.HedraAvatar != constants.AvatarCustom {
		ret.AvatarRef = md.HedraAvatar
		voiceID, ok := r.voices.Lookup(md.HedraAvatar)
		if !ok {
			log.Warnf("未知的预设形象 %s，使用默认音色", md.HedraAvatar)
			voiceID = r.voices.DefaultVoice()
		}
		ret.VoiceId = voiceID
		return ret
	}

	if md.HedraAvatar == constants.AvatarCustom {
		ret.AvatarRef = constants.AvatarCustom
	} else {
		ret.AvatarRef = constants.PresetDefault
	}
	if md.ElevenVoice != "" {
		ret.VoiceId = md.ElevenVoice
	} else {
		ret.VoiceId = r.voices.DefaultVoice()
	}
	return ret
}
