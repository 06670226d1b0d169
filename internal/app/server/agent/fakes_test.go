package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"hedra-avatar-agent/internal/app/server/types"
	. "hedra-avatar-agent/internal/data/msg"
	"hedra-avatar-agent/internal/domain/asr"
	"hedra-avatar-agent/internal/domain/avatar"
	config_types "hedra-avatar-agent/internal/domain/config/types"
	"hedra-avatar-agent/internal/domain/llm"
	"hedra-avatar-agent/internal/domain/preset"
	"hedra-avatar-agent/internal/domain/resolver"
	"hedra-avatar-agent/internal/domain/tts"
	"hedra-avatar-agent/internal/domain/vad/inter"
)

type fakeConn struct {
	room string

	mu      sync.Mutex
	cmds    [][]byte
	audio   [][]byte
	onClose []func(string)
	closed  bool

	done chan struct{}
}

func newFakeConn(room string) *fakeConn {
	return &fakeConn{room: room, done: make(chan struct{})}
}

func (c *fakeConn) SendCmd(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.cmds = append(c.cmds, msg)
	return nil
}

func (c *fakeConn) RecvCmd(timeout int) ([]byte, error) {
	<-c.done
	return nil, errors.New("closed")
}

func (c *fakeConn) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, audio)
	return nil
}

func (c *fakeConn) RecvAudio(timeout int) ([]byte, error) {
	<-c.done
	return nil, errors.New("closed")
}

func (c *fakeConn) GetRoom() string {
	return c.room
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	cbs := c.onClose
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(c.room)
	}
	return nil
}

func (c *fakeConn) OnClose(cb func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, cb)
}

func (c *fakeConn) GetTransportType() string {
	return types.TransportTypeWebsocket
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) messages() []ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]ServerMessage, 0, len(c.cmds))
	for _, raw := range c.cmds {
		var m ServerMessage
		if json.Unmarshal(raw, &m) == nil {
			ret = append(ret, m)
		}
	}
	return ret
}

func (c *fakeConn) audioFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audio)
}

func (c *fakeConn) hasMessage(typ, state string) bool {
	for _, m := range c.messages() {
		if m.Type == typ && m.State == state {
			return true
		}
	}
	return false
}

type fakeLLM struct {
	reply string

	mu        sync.Mutex
	dialogues [][]*schema.Message
}

func (f *fakeLLM) ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) chan *schema.Message {
	f.mu.Lock()
	f.dialogues = append(f.dialogues, dialogue)
	f.mu.Unlock()
	ch := make(chan *schema.Message, 1)
	ch <- schema.AssistantMessage(f.reply, nil)
	close(ch)
	return ch
}

func (f *fakeLLM) GetModelInfo() map[string]interface{} {
	return nil
}

func (f *fakeLLM) calls() [][]*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*schema.Message{}, f.dialogues...)
}

type fakeTTS struct {
	frames int
}

func (f *fakeTTS) TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (chan []byte, error) {
	ch := make(chan []byte, f.frames)
	for i := 0; i < f.frames; i++ {
		ch <- []byte{byte(i)}
	}
	close(ch)
	return ch, nil
}

type fakeASR struct {
	text string
}

func (f *fakeASR) Process(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	return f.text, nil
}

// fakeVAD 首个采样大于 0.5 视为有人声
type fakeVAD struct {
	mu     sync.Mutex
	resets int
}

func (v *fakeVAD) IsVAD(pcm []float32) (bool, error) {
	return len(pcm) > 0 && pcm[0] > 0.5, nil
}

func (v *fakeVAD) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resets++
	return nil
}

func (v *fakeVAD) Close() error {
	return nil
}

type fakeParticipants struct {
	participants []resolver.Participant
	err          error
}

func (f *fakeParticipants) RemoteParticipants(ctx context.Context, room string) ([]resolver.Participant, error) {
	return f.participants, f.err
}

type fakeConfigs struct {
	cfg config_types.SessionConfig
}

func (f *fakeConfigs) GetSessionConfig(ctx context.Context, room string) (config_types.SessionConfig, error) {
	return f.cfg, nil
}

func (f *fakeConfigs) SetOverride(ctx context.Context, room string, kind string, override map[string]interface{}) error {
	return nil
}

func (f *fakeConfigs) DeleteSessionConfig(ctx context.Context, room string) error {
	return nil
}

func (f *fakeConfigs) Close() error {
	return nil
}

type fakeAssets struct{}

func (fakeAssets) Load(name string) (*preset.AvatarImage, error) {
	if name == "missing" {
		return nil, preset.ErrAvatarNotFound
	}
	return &preset.AvatarImage{Name: name, Data: []byte("png"), MimeType: "image/png", Extension: ".png"}, nil
}

type tokenCall struct {
	room, identity, name, onBehalfOf string
}

type fakeTokens struct {
	mu    sync.Mutex
	calls []tokenCall
}

func (f *fakeTokens) AvatarToken(room, identity, name, onBehalfOf string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tokenCall{room, identity, name, onBehalfOf})
	return "jwt-" + room, nil
}

type fakeAvatar struct {
	mu       sync.Mutex
	requests []avatar.StartRequest
	err      error
}

func (f *fakeAvatar) Start(ctx context.Context, req avatar.StartRequest) (*avatar.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &avatar.Session{Provider: "hedra", SessionId: "hs-1", Room: req.Room}, nil
}

type fakeLock struct {
	mu       sync.Mutex
	owners   map[string]string
	released []string
}

func newFakeLock() *fakeLock {
	return &fakeLock{owners: map[string]string{}}
}

func (l *fakeLock) Acquire(ctx context.Context, room string, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.owners[room]; ok {
		return false, nil
	}
	l.owners[room] = owner
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, room string, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[room] == owner {
		delete(l.owners, room)
		l.released = append(l.released, room)
	}
	return nil
}

func (l *fakeLock) Refresh(ctx context.Context, room string, owner string) error {
	return nil
}

func (l *fakeLock) TTL() time.Duration {
	return time.Minute
}

func (l *fakeLock) held(room string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.owners[room]
	return ok
}

// testEnv 一组可观察的假组件
type testEnv struct {
	llm      *fakeLLM
	avatar   *fakeAvatar
	tokens   *fakeTokens
	vad      *fakeVAD
	ttsCfg   map[string]interface{}
	released int
	ttsErr   error

	mu sync.Mutex
}

func newTestEnv() *testEnv {
	return &testEnv{
		llm:    &fakeLLM{reply: "Hello there!"},
		avatar: &fakeAvatar{},
		tokens: &fakeTokens{},
		vad:    &fakeVAD{},
	}
}

func (e *testEnv) providers() Providers {
	return Providers{
		NewLLM: func(provider string, config map[string]interface{}) (llm.LLMProvider, error) {
			return e.llm, nil
		},
		NewTTS: func(provider string, config map[string]interface{}) (tts.TTSProvider, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.ttsCfg = config
			if e.ttsErr != nil {
				return nil, e.ttsErr
			}
			return &fakeTTS{frames: 2}, nil
		},
		NewASR: func(provider string, config map[string]interface{}) (asr.AsrProvider, error) {
			return &fakeASR{text: "hi"}, nil
		},
		AcquireVAD: func(ctx context.Context, provider string, config map[string]interface{}) (inter.VAD, error) {
			return e.vad, nil
		},
		ReleaseVAD: func(v inter.VAD) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.released++
			return nil
		},
		NewAvatar: func(provider string, config map[string]interface{}) (avatar.AvatarProvider, error) {
			return e.avatar, nil
		},
	}
}

func (e *testEnv) releasedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *testEnv) ttsConfig() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ttsCfg
}
