package constants

const (
	VadTypeSileroVad = "silero_vad"
	VadTypeWebRTCVad = "webrtc_vad"
)

const (
	AsrTypeWhisper = "whisper"
)

const (
	LlmTypeOpenai = "openai"
	LlmTypeOllama = "ollama"
)

const (
	TtsTypeElevenLabs = "elevenlabs"
)

const (
	AvatarTypeHedra = "hedra"
)

// 参会者 metadata 中的键
const (
	MetadataKeyHedraApiKey        = "hedra_api_key"
	MetadataKeyHedraAvatar        = "hedra_avatar"
	MetadataKeyHedraAvatarAssetId = "hedra_avatar_asset_id"
	MetadataKeyElevenVoice        = "eleven_voice"
)

const (
	// PresetDefault 默认形象，同时也是默认音色
	PresetDefault = "forest"
	// AvatarCustom 用户上传的自定义形象
	AvatarCustom = "custom"
)

// GreetingInstructions 会话启动后的首次回复指令
const GreetingInstructions = "say hello to the user"
