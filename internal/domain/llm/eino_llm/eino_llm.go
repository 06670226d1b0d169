package eino_llm

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	log "hedra-avatar-agent/logger"
)

const defaultOpenAIModel = "gpt-4o-mini"

// EinoLLMProvider 基于Eino框架的LLM提供者，支持openai和ollama
type EinoLLMProvider struct {
	chatModel    model.BaseChatModel
	modelName    string
	maxTokens    int
	streamable   bool
	baseURL      string
	providerType string // "openai" 或 "ollama"
}

// 连接池配置
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	requestTimeout      = 60 * time.Second
)

var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// getHTTPClient 所有 openai 请求共用一个带连接池的客户端
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: requestTimeout,
		}
	})
	return httpClient
}

// NewEinoLLMProvider 根据 type 创建 openai 或 ollama 的 ChatModel
func NewEinoLLMProvider(config map[string]interface{}) (*EinoLLMProvider, error) {
	providerType, _ := config["type"].(string)
	if providerType == "" {
		return nil, fmt.Errorf("type不能为空，必须是 'openai' 或 'ollama'")
	}

	modelName, _ := config["model_name"].(string)
	if modelName == "" && providerType == "openai" {
		modelName = defaultOpenAIModel
	}
	if modelName == "" {
		return nil, fmt.Errorf("model_name不能为空")
	}

	maxTokens := 500
	if mt, ok := config["max_tokens"].(int); ok && mt > 0 {
		maxTokens = mt
	} else if mt, ok := config["max_tokens"].(float64); ok && mt > 0 {
		maxTokens = int(mt)
	}

	streamable := true
	if s, ok := config["streamable"].(bool); ok {
		streamable = s
	}

	baseURL, _ := config["base_url"].(string)

	var chatModel model.BaseChatModel
	var err error
	switch providerType {
	case "openai":
		chatModel, err = createOpenAIChatModel(modelName, baseURL, config)
	case "ollama":
		chatModel, err = createOllamaChatModel(modelName, baseURL)
	default:
		return nil, fmt.Errorf("不支持的模型类型: %s", providerType)
	}
	if err != nil {
		return nil, err
	}

	return &EinoLLMProvider{
		chatModel:    chatModel,
		modelName:    modelName,
		maxTokens:    maxTokens,
		streamable:   streamable,
		baseURL:      baseURL,
		providerType: providerType,
	}, nil
}

func createOpenAIChatModel(modelName string, baseURL string, config map[string]interface{}) (model.BaseChatModel, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	openaiConfig := &openai.ChatModelConfig{
		Model:      modelName,
		APIKey:     apiKey,
		HTTPClient: getHTTPClient(),
	}
	if baseURL != "" {
		openaiConfig.BaseURL = baseURL
	}

	chatModel, err := openai.NewChatModel(context.Background(), openaiConfig)
	if err != nil {
		return nil, fmt.Errorf("创建OpenAI ChatModel失败: %w", err)
	}

	log.Infof("成功创建OpenAI ChatModel，模型: %s", modelName)
	return chatModel, nil
}

func createOllamaChatModel(modelName string, baseURL string) (model.BaseChatModel, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama 的 base_url 不能为空")
	}

	chatModel, err := ollama.NewChatModel(context.Background(), &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Ollama ChatModel失败: %w", err)
	}

	log.Infof("成功创建Ollama ChatModel，模型: %s", modelName)
	return chatModel, nil
}

// GetModelInfo 获取模型信息
func (p *EinoLLMProvider) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model_name":    p.modelName,
		"max_tokens":    p.maxTokens,
		"streamable":    p.streamable,
		"provider_type": p.providerType,
		"framework":     "eino",
		"base_url":      p.baseURL,
	}
}

// ResponseWithContext 流式调用失败时回退到 Generate
func (p *EinoLLMProvider) ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) chan *schema.Message {
	responseChan := make(chan *schema.Message, 200)

	go func() {
		defer close(responseChan)

		log.Debugf("[Eino-LLM] 开始处理请求 - SessionID: %s, Type: %s", sessionID, p.providerType)

		if p.streamable {
			err := p.stream(ctx, dialogue, responseChan)
			if err == nil {
				return
			}
			log.Errorf("[Eino-LLM] 流式调用失败，回退到Generate: %v", err)
		}

		message, err := p.chatModel.Generate(ctx, dialogue, model.WithMaxTokens(p.maxTokens))
		if err != nil {
			log.Errorf("[Eino-LLM] 生成响应失败: %v", err)
			return
		}
		if message != nil {
			responseChan <- message
		}
	}()

	return responseChan
}

func (p *EinoLLMProvider) stream(ctx context.Context, dialogue []*schema.Message, out chan<- *schema.Message) error {
	streamReader, err := p.chatModel.Stream(ctx, dialogue, model.WithMaxTokens(p.maxTokens))
	if err != nil {
		return err
	}
	defer streamReader.Close()

	for {
		message, err := streamReader.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// 已经输出过的内容不能回退，这里只记录
			log.Errorf("[Eino-LLM] 接收流式响应失败: %v", err)
			return nil
		}
		if message == nil || message.Content == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case out <- message:
		}
	}
}

// GetProviderType 获取提供者类型
func (p *EinoLLMProvider) GetProviderType() string {
	return p.providerType
}
