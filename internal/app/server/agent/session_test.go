package agent

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "hedra-avatar-agent/internal/data/msg"
	"hedra-avatar-agent/internal/domain/resolver"
)

func newTestSession(t *testing.T, env *testEnv, conn *fakeConn) *Session {
	s := newSession("s-1", conn, resolver.ResolvedConfig{AvatarRef: "forest", VoiceId: "v"}, "system", sessionComponents{
		llm:        env.llm,
		tts:        &fakeTTS{frames: 3},
		asr:        &fakeASR{text: "hello"},
		vad:        env.vad,
		releaseVAD: env.providers().ReleaseVAD,
	}, 600*time.Millisecond)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func frame(v float32) []float32 {
	pcm := make([]float32, 960)
	for i := range pcm {
		pcm[i] = v
	}
	return pcm
}

func TestHandlePcmSilenceTimeout(t *testing.T) {
	env := newTestEnv()
	s := newTestSession(t, env, newFakeConn("room"))
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	// 无人声时不积累
	s.handlePcm(frame(0))
	assert.False(t, s.inSpeech)

	s.handlePcm(frame(1))
	now = now.Add(60 * time.Millisecond)
	s.handlePcm(frame(1))
	now = now.Add(60 * time.Millisecond)
	s.handlePcm(frame(0))
	assert.True(t, s.inSpeech)
	assert.Empty(t, s.utterances)

	now = now.Add(600 * time.Millisecond)
	s.handlePcm(frame(0))
	assert.False(t, s.inSpeech)

	require.Len(t, s.utterances, 1)
	utterance := <-s.utterances
	assert.Len(t, utterance, 4*960)
	assert.Equal(t, 1, env.vad.resets)
}

func TestHandlePcmMaxUtterance(t *testing.T) {
	env := newTestEnv()
	s := newTestSession(t, env, newFakeConn("room"))
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	s.speech = make([]float32, maxUtteranceSeconds*s.inputFormat.SampleRate)
	s.inSpeech = true
	s.lastVoice = now
	s.handlePcm(frame(0))

	require.Len(t, s.utterances, 1)
	assert.Nil(t, s.speech)
}

func TestHandleTextMessage(t *testing.T) {
	env := newTestEnv()
	conn := newFakeConn("room")
	s := newTestSession(t, env, conn)

	require.NoError(t, s.handleTextMessage([]byte(`{"type":"text","text":"  what's up  "}`)))
	assert.Equal(t, "what's up", <-s.userTexts)

	require.NoError(t, s.handleTextMessage([]byte(`{"type":"abort"}`)))
	assert.True(t, conn.hasMessage(ServerMessageTypeTts, MessageStateAbort))

	assert.Error(t, s.handleTextMessage([]byte(`{"type":"listen"}`)))
	assert.Error(t, s.handleTextMessage([]byte(`not json`)))

	require.NoError(t, s.handleTextMessage([]byte(`{"type":"goodbye"}`)))
	assert.Eventually(t, s.IsClosed, time.Second, 10*time.Millisecond)
	assert.True(t, conn.isClosed())
}

func TestRunTurnQueuesSentences(t *testing.T) {
	env := newTestEnv()
	env.llm.reply = "Hi there! Nice to meet you."
	s := newTestSession(t, env, newFakeConn("room"))

	require.NoError(t, s.Reply("hello"))

	var items []ttsItem
	for {
		item, err := s.ttsQueue.Pop(context.Background(), -1)
		if err != nil {
			break
		}
		items = append(items, item)
	}
	require.Len(t, items, 3)
	assert.Equal(t, "Hi there!", items[0].text)
	assert.True(t, items[0].isStart)
	assert.Equal(t, "Nice to meet you.", items[1].text)
	assert.False(t, items[1].isStart)
	assert.True(t, items[2].isEnd)

	dialogue := s.Dialogue()
	require.Len(t, dialogue, 2)
	assert.Equal(t, schema.User, dialogue[0].Role)
	assert.Equal(t, schema.Assistant, dialogue[1].Role)
	assert.Equal(t, "Hi there! Nice to meet you.", dialogue[1].Content)
}

func TestGenerateReplyKeepsInstructionsOutOfHistory(t *testing.T) {
	env := newTestEnv()
	s := newTestSession(t, env, newFakeConn("room"))

	require.NoError(t, s.GenerateReply("say hello to the user"))

	calls := env.llm.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, "system", calls[0][0].Content)
	assert.Equal(t, "say hello to the user", calls[0][1].Content)

	dialogue := s.Dialogue()
	require.Len(t, dialogue, 1)
	assert.Equal(t, schema.Assistant, dialogue[0].Role)
}

func TestDialogueHistoryTrimmed(t *testing.T) {
	env := newTestEnv()
	s := newTestSession(t, env, newFakeConn("room"))
	s.maxHistory = 4

	for i := 0; i < 10; i++ {
		s.appendDialogue(schema.UserMessage("m"))
	}
	assert.Len(t, s.Dialogue(), 4)
	assert.Len(t, s.buildDialogue("x"), 6)
}

func TestSpeakSendsFramesAndEvents(t *testing.T) {
	env := newTestEnv()
	conn := newFakeConn("room")
	s := newTestSession(t, env, conn)

	ctx := context.Background()
	require.NoError(t, s.speak(ttsItem{ctx: ctx, text: "Hi there!", isStart: true}))
	require.NoError(t, s.speak(ttsItem{ctx: ctx, isEnd: true}))

	assert.Equal(t, 3, conn.audioFrames())
	var states []string
	for _, m := range conn.messages() {
		if m.Type == ServerMessageTypeTts {
			states = append(states, m.State)
		}
	}
	assert.Equal(t, []string{MessageStateStart, MessageStateSentenceStart, MessageStateSentenceEnd, MessageStateStop}, states)
}

func TestSessionCloseIdempotent(t *testing.T) {
	env := newTestEnv()
	conn := newFakeConn("room")
	s := newTestSession(t, env, conn)

	calls := 0
	s.OnClose(func(*Session) { calls++ })
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, env.releasedCount())
	assert.True(t, conn.isClosed())
	assert.Error(t, s.Reply("late"))
}
