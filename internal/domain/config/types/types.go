package types

import (
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// 会话配置中的各个组件
const (
	KindLlm    = "llm"
	KindTts    = "tts"
	KindAsr    = "asr"
	KindVad    = "vad"
	KindAvatar = "avatar"
)

var Kinds = []string{KindLlm, KindTts, KindAsr, KindVad, KindAvatar}

type ProviderConfig struct {
	Provider string                 `json:"provider"`
	Config   map[string]interface{} `json:"config"`
}

// SessionConfig 一个房间的会话管线配置
type SessionConfig struct {
	SystemPrompt string         `json:"system_prompt"`
	Llm          ProviderConfig `json:"llm"`
	Tts          ProviderConfig `json:"tts"`
	Asr          ProviderConfig `json:"asr"`
	Vad          ProviderConfig `json:"vad"`
	Avatar       ProviderConfig `json:"avatar"`
}

// Get 按组件名取配置
func (c *SessionConfig) Get(kind string) *ProviderConfig {
	switch kind {
	case KindLlm:
		return &c.Llm
	case KindTts:
		return &c.Tts
	case KindAsr:
		return &c.Asr
	case KindVad:
		return &c.Vad
	case KindAvatar:
		return &c.Avatar
	}
	return nil
}

// DefaultProviderConfig 读取 <kind>.provider 以及 <kind>.<provider> 下的参数
func DefaultProviderConfig(kind string) ProviderConfig {
	provider := viper.GetString(kind + ".provider")
	return ProviderConfig{
		Provider: provider,
		// viper 返回的是内部 map，拷贝一份再交给调用方
		Config: lo.Assign(map[string]interface{}{}, viper.GetStringMap(kind+"."+provider)),
	}
}

// DefaultSessionConfig 全局配置文件中的默认会话配置
func DefaultSessionConfig() SessionConfig {
	ret := SessionConfig{SystemPrompt: viper.GetString("system_prompt")}
	for _, kind := range Kinds {
		*ret.Get(kind) = DefaultProviderConfig(kind)
	}
	return ret
}

// Merge 用 override 覆盖默认配置；override 中的 provider 字段会切换提供者，
// 此时以新提供者的全局参数为基础
func Merge(kind string, base ProviderConfig, override map[string]interface{}) ProviderConfig {
	if len(override) == 0 {
		return base
	}
	ret := base
	if provider, ok := override["provider"].(string); ok && provider != "" && provider != base.Provider {
		ret = ProviderConfig{
			Provider: provider,
			Config:   lo.Assign(map[string]interface{}{}, viper.GetStringMap(kind+"."+provider)),
		}
	}
	ret.Config = lo.Assign(map[string]interface{}{}, ret.Config, lo.OmitByKeys(override, []string{"provider"}))
	return ret
}
