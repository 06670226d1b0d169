package preset

import (
	"fmt"
	"sort"

	"hedra-avatar-agent/constants"

	"github.com/samber/lo"
)

// 参考部署的四个预设，音色来自 ElevenLabs voice library
var defaultVoices = map[string]string{
	"forest":     "XB0fDUnXU5powFXDhCwa",
	"restaurant": "z9fAnlkpzviPz146aGWa",
	"home":       "P7x743VjyZEOihNNygQ9",
	"business":   "bIHbv24MWmeRgasZH58o",
}

// VoicePresetTable 预设名 -> 音色 ID，创建后只读
type VoicePresetTable struct {
	voices map[string]string
}

// DefaultVoicePresetTable 返回内置的四个预设
func DefaultVoicePresetTable() VoicePresetTable {
	table, _ := NewVoicePresetTable(nil)
	return table
}

// NewVoicePresetTable 在内置预设基础上合并 extra，extra 同名时覆盖
// 合并后必须包含默认预设且音色不为空
func NewVoicePresetTable(extra map[string]string) (VoicePresetTable, error) {
	voices := lo.Assign(defaultVoices, extra)
	for name, voiceID := range voices {
		if voiceID == "" {
			return VoicePresetTable{}, fmt.Errorf("preset %s 的音色为空", name)
		}
	}
	if _, ok := voices[constants.PresetDefault]; !ok {
		return VoicePresetTable{}, fmt.Errorf("缺少默认预设 %s", constants.PresetDefault)
	}
	return VoicePresetTable{voices: voices}, nil
}

// Lookup 精确匹配预设名
func (t VoicePresetTable) Lookup(name string) (string, bool) {
	voiceID, ok := t.voices[name]
	return voiceID, ok
}

// DefaultVoice 默认预设的音色
func (t VoicePresetTable) DefaultVoice() string {
	return t.voices[constants.PresetDefault]
}

// Names 所有预设名，按字典序
func (t VoicePresetTable) Names() []string {
	names := lo.Keys(t.voices)
	sort.Strings(names)
	return names
}
