package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	log "hedra-avatar-agent/logger"
)

// 句子结束的标点符号
var sentenceEndPunctuation = map[rune]bool{'.': true, '。': true, '!': true, '！': true, '?': true, '？': true, '\n': true}

// 长句可以断开的位置
var sentencePausePunctuation = map[rune]bool{',': true, '，': true, ';': true, '；': true, ':': true, '：': true}

// LLMResponseStruct 按句切分后的输出
type LLMResponseStruct struct {
	Text    string
	IsStart bool
	IsEnd   bool
}

// HandleLLMWithContext 把流式输出切成句子，方便逐句送 TTS
// 通道最后一条 IsEnd=true，Text 可能为空
func HandleLLMWithContext(ctx context.Context, llmProvider LLMProvider, dialogue []*schema.Message, sessionID string) chan LLMResponseStruct {
	msgChan := llmProvider.ResponseWithContext(ctx, sessionID, dialogue)
	sentenceChannel := make(chan LLMResponseStruct, 8)

	go func() {
		defer close(sentenceChannel)

		startTs := time.Now()
		var buffer strings.Builder
		isFirst := true
		emit := func(text string, isEnd bool) bool {
			select {
			case <-ctx.Done():
				return false
			case sentenceChannel <- LLMResponseStruct{Text: text, IsStart: isFirst, IsEnd: isEnd}:
			}
			if isFirst && text != "" {
				log.Infof("耗时统计: llm首句: %d ms", time.Since(startTs).Milliseconds())
			}
			isFirst = false
			return true
		}

		for {
			select {
			case <-ctx.Done():
				log.Infof("上下文已取消，停止LLM响应处理: %v", ctx.Err())
				return
			case message, ok := <-msgChan:
				if !ok {
					emit(strings.TrimSpace(buffer.String()), true)
					return
				}
				if message == nil || message.Content == "" {
					continue
				}
				buffer.WriteString(message.Content)
				sentences, remaining := ExtractSentences(buffer.String(), 100)
				for _, sentence := range sentences {
					if !emit(sentence, false) {
						return
					}
				}
				buffer.Reset()
				buffer.WriteString(remaining)
			}
		}
	}()
	return sentenceChannel
}

// ExtractSentences 取出完整句子，剩余部分原样返回
// 超过 maxLen 个字符还没有句号时，在最后一个停顿标点处断开
func ExtractSentences(text string, maxLen int) ([]string, string) {
	var sentences []string
	runes := []rune(text)
	start := 0
	lastPause := -1

	for i, r := range runes {
		switch {
		case sentenceEndPunctuation[r]:
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
			lastPause = -1
		case sentencePausePunctuation[r]:
			lastPause = i
		}
		if maxLen > 0 && i-start+1 >= maxLen && lastPause >= start {
			if s := strings.TrimSpace(string(runes[start : lastPause+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = lastPause + 1
			lastPause = -1
		}
	}
	return sentences, string(runes[start:])
}
