package msg

import (
	types_audio "hedra-avatar-agent/internal/data/audio"
)

// 客户端消息类型常量
const (
	MessageTypeAbort   = "abort"   // 打断当前回复
	MessageTypeGoodBye = "goodbye" // 结束会话
	MessageTypeText    = "text"    // 直接输入文本，跳过 asr
)

// 服务器消息类型常量
const (
	ServerMessageTypeSession = "session" // 会话状态
	ServerMessageTypeStt     = "stt"     // 语音转文本
	ServerMessageTypeTts     = "tts"     // 文本转语音
	ServerMessageTypeError   = "error"
)

// 消息状态常量
const (
	MessageStateReady         = "ready"
	MessageStateStart         = "start"
	MessageStateSentenceStart = "sentence_start"
	MessageStateSentenceEnd   = "sentence_end"
	MessageStateStop          = "stop"
	MessageStateAbort         = "abort"
)

// ClientMessage 客户端文本帧
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerMessage 服务端文本帧
type ServerMessage struct {
	Type            string                   `json:"type"`
	State           string                   `json:"state,omitempty"`
	Text            string                   `json:"text,omitempty"`
	SessionID       string                   `json:"session_id,omitempty"`
	Room            string                   `json:"room,omitempty"`
	VoiceID         string                   `json:"voice_id,omitempty"`
	Avatar          string                   `json:"avatar,omitempty"`
	AvatarSessionID string                   `json:"avatar_session_id,omitempty"`
	AudioFormat     *types_audio.AudioFormat `json:"audio_params,omitempty"`
}
