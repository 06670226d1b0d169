package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"

	"hedra-avatar-agent/internal/app/server/types"
	types_audio "hedra-avatar-agent/internal/data/audio"
	. "hedra-avatar-agent/internal/data/msg"
	"hedra-avatar-agent/internal/domain/asr"
	"hedra-avatar-agent/internal/domain/audio"
	"hedra-avatar-agent/internal/domain/avatar"
	"hedra-avatar-agent/internal/domain/llm"
	"hedra-avatar-agent/internal/domain/resolver"
	"hedra-avatar-agent/internal/domain/tts"
	"hedra-avatar-agent/internal/domain/vad/inter"
	"hedra-avatar-agent/internal/util"
	log "hedra-avatar-agent/logger"
)

const (
	defaultSilenceTimeout = 600 * time.Millisecond
	defaultMaxHistory     = 20
	// 单次发言最长 30s，超过直接送识别
	maxUtteranceSeconds = 30
)

type ttsItem struct {
	ctx     context.Context
	text    string
	isStart bool
	isEnd   bool
}

// Session 一个房间内运行中的 agent：上行语音 -> VAD -> ASR -> LLM -> TTS -> 下行语音
type Session struct {
	id   string
	room string
	conn types.IConn

	resolved      resolver.ResolvedConfig
	avatarSession *avatar.Session
	systemPrompt  string

	llmProvider llm.LLMProvider
	ttsProvider tts.TTSProvider
	asrProvider asr.AsrProvider
	vad         inter.VAD
	releaseVAD  func(inter.VAD) error

	inputFormat  types_audio.AudioFormat
	outputFormat types_audio.AudioFormat

	silenceTimeout time.Duration
	maxHistory     int
	now            func() time.Time

	// 仅在 audioLoop 中访问
	speech    []float32
	inSpeech  bool
	lastVoice time.Time

	dialogueMu sync.Mutex
	dialogue   []*schema.Message

	turnMu     sync.Mutex
	turnCancel context.CancelFunc

	ttsQueue   *util.Queue[ttsItem]
	utterances chan []float32
	userTexts  chan string

	ctx    context.Context
	cancel context.CancelFunc

	closed    atomic.Bool
	onCloseMu sync.Mutex
	onClose   []func(*Session)
}

type sessionComponents struct {
	llm        llm.LLMProvider
	tts        tts.TTSProvider
	asr        asr.AsrProvider
	vad        inter.VAD
	releaseVAD func(inter.VAD) error
}

func newSession(id string, conn types.IConn, resolved resolver.ResolvedConfig, systemPrompt string, c sessionComponents, silenceTimeout time.Duration) *Session {
	if silenceTimeout <= 0 {
		silenceTimeout = defaultSilenceTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:             id,
		room:           conn.GetRoom(),
		conn:           conn,
		resolved:       resolved,
		systemPrompt:   systemPrompt,
		llmProvider:    c.llm,
		ttsProvider:    c.tts,
		asrProvider:    c.asr,
		vad:            c.vad,
		releaseVAD:     c.releaseVAD,
		inputFormat:    types_audio.InputFormat(),
		outputFormat:   types_audio.OutputFormat(),
		silenceTimeout: silenceTimeout,
		maxHistory:     defaultMaxHistory,
		now:            time.Now,
		ttsQueue:       util.NewQueue[ttsItem](32),
		utterances:     make(chan []float32, 4),
		userTexts:      make(chan string, 10),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Room() string {
	return s.room
}

func (s *Session) Resolved() resolver.ResolvedConfig {
	return s.resolved
}

func (s *Session) AvatarSession() *avatar.Session {
	return s.avatarSession
}

func (s *Session) Context() context.Context {
	return s.ctx
}

// OnClose 会话关闭后回调，可注册多个
func (s *Session) OnClose(cb func(*Session)) {
	s.onCloseMu.Lock()
	defer s.onCloseMu.Unlock()
	s.onClose = append(s.onClose, cb)
}

// Start 启动各处理协程，不阻塞
func (s *Session) Start() {
	go s.cmdLoop()
	go s.audioLoop()
	go s.asrLoop()
	go s.chatLoop()
	go s.ttsLoop()

	_ = s.sendMessage(ServerMessage{
		Type:            ServerMessageTypeSession,
		State:           MessageStateReady,
		SessionID:       s.id,
		Room:            s.room,
		VoiceID:         s.resolved.VoiceId,
		Avatar:          s.resolved.AvatarRef,
		AvatarSessionID: s.avatarSessionID(),
		AudioFormat:     &s.outputFormat,
	})
}

func (s *Session) avatarSessionID() string {
	if s.avatarSession == nil {
		return ""
	}
	return s.avatarSession.SessionId
}

// Close 可重复调用
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.ttsQueue.Close()
	if s.vad != nil && s.releaseVAD != nil {
		if err := s.releaseVAD(s.vad); err != nil {
			log.Warnf("释放VAD失败: %v", err)
		}
	}
	err := s.conn.Close()

	s.onCloseMu.Lock()
	cbs := append([]func(*Session){}, s.onClose...)
	s.onCloseMu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
	log.Log("session_id", s.id, "room", s.room).Info("agent session closed")
	return err
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func (s *Session) cmdLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		message, err := s.conn.RecvCmd(120)
		if err != nil {
			if s.ctx.Err() != nil || s.IsClosed() {
				return
			}
			continue
		}
		if err := s.handleTextMessage(message); err != nil {
			log.Warnf("房间 %s 处理文本消息失败: %v", s.room, err)
		}
	}
}

func (s *Session) handleTextMessage(message []byte) error {
	var clientMsg ClientMessage
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		return err
	}
	switch clientMsg.Type {
	case MessageTypeAbort:
		s.Abort()
	case MessageTypeGoodBye:
		go s.Close()
	case MessageTypeText:
		if text := strings.TrimSpace(clientMsg.Text); text != "" {
			s.pushUserText(text)
		}
	default:
		return errors.New("未知消息类型: " + clientMsg.Type)
	}
	return nil
}

func (s *Session) audioLoop() {
	processer, err := audio.GetAudioProcesser(s.inputFormat.SampleRate, s.inputFormat.Channels, s.inputFormat.FrameDuration)
	if err != nil {
		log.Errorf("房间 %s 创建音频解码器失败: %v", s.room, err)
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		frame, err := s.conn.RecvAudio(300)
		if err != nil {
			if s.ctx.Err() != nil || s.IsClosed() {
				return
			}
			continue
		}
		pcm, err := processer.DecodeFloat32(frame)
		if err != nil {
			log.Debugf("opus解码失败: %v", err)
			continue
		}
		s.handlePcm(pcm)
	}
}

// handlePcm 有声片段累积，静音超过 silenceTimeout 视为一句话结束
func (s *Session) handlePcm(pcm []float32) {
	if s.vad == nil {
		return
	}
	isVoice, err := s.vad.IsVAD(pcm)
	if err != nil {
		log.Debugf("vad 检测失败: %v", err)
		return
	}
	now := s.now()
	if isVoice {
		s.speech = append(s.speech, pcm...)
		s.lastVoice = now
		s.inSpeech = true
		return
	}
	if !s.inSpeech {
		return
	}
	s.speech = append(s.speech, pcm...)
	if now.Sub(s.lastVoice) < s.silenceTimeout && len(s.speech) < maxUtteranceSeconds*s.inputFormat.SampleRate {
		return
	}

	utterance := s.speech
	s.speech = nil
	s.inSpeech = false
	_ = s.vad.Reset()
	select {
	case s.utterances <- utterance:
	default:
		log.Warnf("房间 %s 识别队列已满，丢弃一句语音", s.room)
	}
}

func (s *Session) asrLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case pcm := <-s.utterances:
			text, err := s.asrProvider.Process(s.ctx, pcm, s.inputFormat.SampleRate)
			if err != nil {
				log.Errorf("房间 %s 语音识别失败: %v", s.room, err)
				continue
			}
			if text == "" {
				continue
			}
			_ = s.sendMessage(ServerMessage{Type: ServerMessageTypeStt, Text: text, SessionID: s.id})
			s.pushUserText(text)
		}
	}
}

func (s *Session) pushUserText(text string) {
	select {
	case s.userTexts <- text:
	case <-s.ctx.Done():
	}
}

func (s *Session) chatLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.userTexts:
			if err := s.Reply(text); err != nil {
				log.Errorf("房间 %s 生成回复失败: %v", s.room, err)
			}
		}
	}
}

// Abort 打断当前回复，丢弃未播放的句子
func (s *Session) Abort() {
	s.turnMu.Lock()
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	s.turnMu.Unlock()
	s.ttsQueue.Clear()
	_ = s.sendMessage(ServerMessage{Type: ServerMessageTypeTts, State: MessageStateAbort, SessionID: s.id})
}

func (s *Session) newTurn() context.Context {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if s.turnCancel != nil {
		s.turnCancel()
		s.ttsQueue.Clear()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.turnCancel = cancel
	return ctx
}

// Reply 用户说完一句话后生成回复
func (s *Session) Reply(userText string) error {
	return s.runTurn(userText, "")
}

// GenerateReply instructions 只作用于本轮，不写入历史
func (s *Session) GenerateReply(instructions string) error {
	return s.runTurn("", instructions)
}

func (s *Session) runTurn(userText, instructions string) error {
	if s.IsClosed() {
		return errors.New("session closed")
	}
	ctx := s.newTurn()
	if userText != "" {
		s.appendDialogue(schema.UserMessage(userText))
	}
	dialogue := s.buildDialogue(instructions)

	var sentences []string
	isStart := true
	for resp := range llm.HandleLLMWithContext(ctx, s.llmProvider, dialogue, s.id) {
		if resp.Text != "" {
			sentences = append(sentences, resp.Text)
			if err := s.ttsQueue.Push(ctx, ttsItem{ctx: ctx, text: resp.Text, isStart: isStart}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			isStart = false
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if len(sentences) > 0 {
		s.appendDialogue(schema.AssistantMessage(strings.Join(sentences, " "), nil))
		return s.ttsQueue.Push(ctx, ttsItem{ctx: ctx, isEnd: true})
	}
	return nil
}

func (s *Session) appendDialogue(msg *schema.Message) {
	s.dialogueMu.Lock()
	defer s.dialogueMu.Unlock()
	s.dialogue = append(s.dialogue, msg)
	if over := len(s.dialogue) - s.maxHistory; over > 0 {
		s.dialogue = s.dialogue[over:]
	}
}

func (s *Session) buildDialogue(instructions string) []*schema.Message {
	s.dialogueMu.Lock()
	defer s.dialogueMu.Unlock()
	ret := make([]*schema.Message, 0, len(s.dialogue)+2)
	if s.systemPrompt != "" {
		ret = append(ret, schema.SystemMessage(s.systemPrompt))
	}
	ret = append(ret, s.dialogue...)
	if instructions != "" {
		ret = append(ret, schema.SystemMessage(instructions))
	}
	return ret
}

// Dialogue 历史对话的拷贝
func (s *Session) Dialogue() []*schema.Message {
	s.dialogueMu.Lock()
	defer s.dialogueMu.Unlock()
	return append([]*schema.Message{}, s.dialogue...)
}

func (s *Session) ttsLoop() {
	for {
		item, err := s.ttsQueue.Pop(s.ctx, 0)
		if err != nil {
			if errors.Is(err, util.ErrQueueCtxDone) || s.IsClosed() {
				return
			}
			// 被 Clear 唤醒
			continue
		}
		if item.ctx.Err() != nil {
			continue
		}
		if err := s.speak(item); err != nil {
			log.Errorf("房间 %s 播放失败: %v", s.room, err)
		}
	}
}

func (s *Session) speak(item ttsItem) error {
	if item.isEnd {
		return s.sendMessage(ServerMessage{Type: ServerMessageTypeTts, State: MessageStateStop, SessionID: s.id})
	}
	if item.isStart {
		_ = s.sendMessage(ServerMessage{Type: ServerMessageTypeTts, State: MessageStateStart, SessionID: s.id})
	}

	frames, err := s.ttsProvider.TextToSpeechStream(item.ctx, item.text, s.outputFormat.SampleRate, s.outputFormat.Channels, s.outputFormat.FrameDuration)
	if err != nil {
		return err
	}
	if err := s.sendMessage(ServerMessage{Type: ServerMessageTypeTts, State: MessageStateSentenceStart, Text: item.text, SessionID: s.id}); err != nil {
		return err
	}
	if err := s.sendAudio(item.ctx, frames); err != nil {
		return err
	}
	return s.sendMessage(ServerMessage{Type: ServerMessageTypeTts, State: MessageStateSentenceEnd, Text: item.text, SessionID: s.id})
}

// sendAudio 先突发发送约 180ms 缓冲，之后按帧时长匀速发送
func (s *Session) sendAudio(ctx context.Context, frames chan []byte) error {
	burst := 180 / s.outputFormat.FrameDuration
	if burst < 1 {
		burst = 1
	}
	ticker := time.NewTicker(time.Duration(s.outputFormat.FrameDuration) * time.Millisecond)
	defer ticker.Stop()

	sent := 0
	for {
		if sent >= burst {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.conn.SendAudio(frame); err != nil {
				return err
			}
			sent++
		}
	}
}

func (s *Session) sendMessage(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.SendCmd(data)
}
