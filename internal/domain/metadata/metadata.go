package metadata

import (
	"encoding/json"
	"fmt"

	"hedra-avatar-agent/constants"
	log "hedra-avatar-agent/logger"
)

// ParticipantMetadata 参会者在 LiveKit 上携带的配置
// 所有字段可选，空字符串视为未设置
type ParticipantMetadata struct {
	HedraApiKey        string
	HedraAvatar        string
	HedraAvatarAssetId string
	ElevenVoice        string
}

// IsEmpty 是否没有任何字段被设置
func (m ParticipantMetadata) IsEmpty() bool {
	return m == ParticipantMetadata{}
}

// Parse 解析 metadata 字符串，永远不会失败：
// 空串或解析失败都返回空记录，ok=false；解析失败额外记录一条诊断事件
func Parse(identity string, raw string) (ParticipantMetadata, bool) {
	if raw == "" {
		return ParticipantMetadata{}, false
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		reportParseFailure(identity, err)
		return ParticipantMetadata{}, false
	}
	if fields == nil {
		// "null" 也能被 Unmarshal 成功解析
		reportParseFailure(identity, fmt.Errorf("metadata is not an object"))
		return ParticipantMetadata{}, false
	}

	return ParticipantMetadata{
		HedraApiKey:        stringField(fields, constants.MetadataKeyHedraApiKey),
		HedraAvatar:        stringField(fields, constants.MetadataKeyHedraAvatar),
		HedraAvatarAssetId: stringField(fields, constants.MetadataKeyHedraAvatarAssetId),
		ElevenVoice:        stringField(fields, constants.MetadataKeyElevenVoice),
	}, true
}

func stringField(fields map[string]interface{}, key string) string {
	v, _ := fields[key].(string)
	return v
}

func reportParseFailure(identity string, err error) {
	log.Event("metadata_parse_failed", map[string]interface{}{
		"identity": identity,
		"error":    err.Error(),
	}).Errorf("解析参会者 %s 的 metadata 失败: %v", identity, err)
}
