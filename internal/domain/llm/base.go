package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/domain/llm/eino_llm"
)

// LLMProvider 大语言模型提供者接口，使用Eino原生消息类型
type LLMProvider interface {
	// ResponseWithContext 流式返回模型输出，ctx 取消后通道关闭
	ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) chan *schema.Message

	GetModelInfo() map[string]interface{}
}

// GetLLMProvider 创建LLM提供者，openai 与 ollama 统一走 eino
func GetLLMProvider(providerName string, config map[string]interface{}) (LLMProvider, error) {
	llmType, _ := config["type"].(string)
	if llmType == "" {
		llmType = providerName
	}
	switch llmType {
	case constants.LlmTypeOpenai, constants.LlmTypeOllama:
		cfg := make(map[string]interface{}, len(config)+1)
		for k, v := range config {
			cfg[k] = v
		}
		cfg["type"] = llmType
		provider, err := eino_llm.NewEinoLLMProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("创建Eino LLM提供者失败: %w", err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("不支持的LLM提供者: %s", llmType)
}
