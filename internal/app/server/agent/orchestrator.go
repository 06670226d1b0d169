package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"hedra-avatar-agent/constants"
	"hedra-avatar-agent/internal/app/server/types"
	"hedra-avatar-agent/internal/domain/asr"
	"hedra-avatar-agent/internal/domain/avatar"
	session_config "hedra-avatar-agent/internal/domain/config"
	config_types "hedra-avatar-agent/internal/domain/config/types"
	"hedra-avatar-agent/internal/domain/llm"
	"hedra-avatar-agent/internal/domain/preset"
	"hedra-avatar-agent/internal/domain/resolver"
	"hedra-avatar-agent/internal/domain/tts"
	"hedra-avatar-agent/internal/domain/vad"
	"hedra-avatar-agent/internal/domain/vad/inter"
	"hedra-avatar-agent/internal/util/workqueue"
	log "hedra-avatar-agent/logger"
)

var ErrRoomBusy = errors.New("room is served by another agent")

// ParticipantSource 列出房间内的远端参会者
type ParticipantSource interface {
	RemoteParticipants(ctx context.Context, room string) ([]resolver.Participant, error)
}

// AvatarTokenMinter 为形象服务签发入会 token
type AvatarTokenMinter interface {
	AvatarToken(room, identity, name, onBehalfOf string) (string, error)
}

// AvatarAssets 预设形象图片
type AvatarAssets interface {
	Load(name string) (*preset.AvatarImage, error)
}

// RoomLocker 多实例部署时保证一个房间只有一个 agent
type RoomLocker interface {
	Acquire(ctx context.Context, room string, owner string) (bool, error)
	Release(ctx context.Context, room string, owner string) error
	Refresh(ctx context.Context, room string, owner string) error
	TTL() time.Duration
}

// Providers 各组件的构造函数，测试时替换
type Providers struct {
	NewLLM     func(provider string, config map[string]interface{}) (llm.LLMProvider, error)
	NewTTS     func(provider string, config map[string]interface{}) (tts.TTSProvider, error)
	NewASR     func(provider string, config map[string]interface{}) (asr.AsrProvider, error)
	AcquireVAD func(ctx context.Context, provider string, config map[string]interface{}) (inter.VAD, error)
	ReleaseVAD func(v inter.VAD) error
	NewAvatar  func(provider string, config map[string]interface{}) (avatar.AvatarProvider, error)
}

func DefaultProviders() Providers {
	return Providers{
		NewLLM:     llm.GetLLMProvider,
		NewTTS:     tts.GetTTSProvider,
		NewASR:     asr.NewAsrProvider,
		AcquireVAD: vad.AcquireVAD,
		ReleaseVAD: vad.ReleaseVAD,
		NewAvatar:  avatar.GetAvatarProvider,
	}
}

type Options struct {
	LiveKitURL string
	// AgentIdentity 形象代其发布音视频的 agent 身份
	AgentIdentity  string
	AvatarIdentity string
	AvatarName     string
	SilenceTimeout time.Duration
	StartTimeout   time.Duration
}

type Orchestrator struct {
	participants ParticipantSource
	resolver     *resolver.Resolver
	configs      session_config.SessionConfigProvider
	assets       AvatarAssets
	tokens       AvatarTokenMinter
	providers    Providers
	registry     *Registry
	lock         RoomLocker
	opts         Options
}

type OrchestratorOption func(*Orchestrator)

func WithProviders(p Providers) OrchestratorOption {
	return func(o *Orchestrator) {
		o.providers = p
	}
}

func WithRegistry(r *Registry) OrchestratorOption {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

func WithRoomLock(l RoomLocker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.lock = l
	}
}

func NewOrchestrator(
	participants ParticipantSource,
	r *resolver.Resolver,
	configs session_config.SessionConfigProvider,
	assets AvatarAssets,
	tokens AvatarTokenMinter,
	opts Options,
	options ...OrchestratorOption,
) *Orchestrator {
	if opts.AvatarIdentity == "" {
		opts.AvatarIdentity = "hedra-avatar-agent"
	}
	if opts.AvatarName == "" {
		opts.AvatarName = "Hedra Avatar"
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	o := &Orchestrator{
		participants: participants,
		resolver:     r,
		configs:      configs,
		assets:       assets,
		tokens:       tokens,
		providers:    DefaultProviders(),
		registry:     NewRegistry(),
		opts:         opts,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Start 为 conn 所在房间启动 agent 会话并发送问候
// 任一步失败都会释放已获取的资源并返回错误，conn 由调用方处理
func (o *Orchestrator) Start(ctx context.Context, conn types.IConn) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.StartTimeout)
	defer cancel()

	room := conn.GetRoom()
	sessionID := uuid.NewString()
	startTs := time.Now()

	var cleanups []func()
	ok := false
	defer func() {
		if ok {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	// 同一实例上的旧会话先关闭，随之释放房间锁
	if existing, found := o.registry.Get(room); found {
		log.Infof("房间 %s 已有会话 %s，关闭后重建", room, existing.ID())
		_ = existing.Close()
	}

	if o.lock != nil {
		acquired, err := o.lock.Acquire(ctx, room, sessionID)
		if err != nil {
			return nil, fmt.Errorf("acquire room lock: %w", err)
		}
		if !acquired {
			return nil, ErrRoomBusy
		}
		cleanups = append(cleanups, func() { o.releaseLock(room, sessionID) })
	}

	participants, err := o.participants.RemoteParticipants(ctx, room)
	if err != nil {
		return nil, err
	}
	resolved := o.resolver.Resolve(participants)

	sessionConfig, err := o.configs.GetSessionConfig(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("get session config: %w", err)
	}
	sessionConfig.Tts.Config = lo.Assign(map[string]interface{}{}, sessionConfig.Tts.Config, map[string]interface{}{"voice_id": resolved.VoiceId})

	components, err := o.buildComponents(ctx, sessionConfig)
	if components.vad != nil {
		v := components.vad
		cleanups = append(cleanups, func() { _ = o.providers.ReleaseVAD(v) })
	}
	if err != nil {
		return nil, err
	}

	avatarSession, err := o.startAvatar(ctx, room, resolved, sessionConfig.Avatar)
	if err != nil {
		return nil, err
	}

	session := newSession(sessionID, conn, resolved, sessionConfig.SystemPrompt, components, o.opts.SilenceTimeout)
	session.avatarSession = avatarSession
	ok = true

	conn.OnClose(func(string) {
		_ = session.Close()
	})
	session.OnClose(func(s *Session) {
		o.registry.Unregister(room, s)
	})
	if o.lock != nil {
		session.OnClose(func(*Session) { o.releaseLock(room, sessionID) })
		go o.refreshLock(session)
	}
	o.registry.Register(room, session)
	session.Start()

	log.Log(
		"session_id", sessionID,
		"room", room,
		"avatar", resolved.AvatarRef,
		"voice_id", resolved.VoiceId,
		"custom_avatar", resolved.CustomAvatar(),
		"cost_ms", time.Since(startTs).Milliseconds(),
	).Info("agent session started")

	go func() {
		if err := session.GenerateReply(constants.GreetingInstructions); err != nil {
			log.Errorf("房间 %s 问候失败: %v", room, err)
		}
	}()
	return session, nil
}

// buildComponents 并发创建 llm/tts/asr/vad；出错时返回已获取的 vad 供调用方释放
func (o *Orchestrator) buildComponents(ctx context.Context, cfg config_types.SessionConfig) (sessionComponents, error) {
	c := sessionComponents{releaseVAD: o.providers.ReleaseVAD}
	builders := []func(ctx context.Context) error{
		func(context.Context) (err error) {
			c.llm, err = o.providers.NewLLM(cfg.Llm.Provider, cfg.Llm.Config)
			return wrapBuild(config_types.KindLlm, cfg.Llm.Provider, err)
		},
		func(context.Context) (err error) {
			c.tts, err = o.providers.NewTTS(cfg.Tts.Provider, cfg.Tts.Config)
			return wrapBuild(config_types.KindTts, cfg.Tts.Provider, err)
		},
		func(context.Context) (err error) {
			c.asr, err = o.providers.NewASR(cfg.Asr.Provider, cfg.Asr.Config)
			return wrapBuild(config_types.KindAsr, cfg.Asr.Provider, err)
		},
		func(ctx context.Context) (err error) {
			c.vad, err = o.providers.AcquireVAD(ctx, cfg.Vad.Provider, cfg.Vad.Config)
			return wrapBuild(config_types.KindVad, cfg.Vad.Provider, err)
		},
	}
	errs := workqueue.ParallelizeErr(ctx, len(builders), func(ctx context.Context, piece int) error {
		return builders[piece](ctx)
	})
	return c, workqueue.FirstError(errs)
}

func wrapBuild(kind, provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("build %s provider %q: %w", kind, provider, err)
}

// startAvatar 有 asset id 时直接引用，否则上传预设图片
func (o *Orchestrator) startAvatar(ctx context.Context, room string, resolved resolver.ResolvedConfig, cfg config_types.ProviderConfig) (*avatar.Session, error) {
	req := avatar.StartRequest{
		Room:       room,
		LiveKitURL: o.opts.LiveKitURL,
		Credential: resolved.Credential,
		AssetId:    resolved.AvatarAssetId,
	}
	if req.AssetId == nil {
		image, err := o.assets.Load(resolved.AvatarImage())
		if err != nil {
			return nil, fmt.Errorf("load avatar image %q: %w", resolved.AvatarImage(), err)
		}
		req.Image = image
	}

	token, err := o.tokens.AvatarToken(room, o.opts.AvatarIdentity, o.opts.AvatarName, o.opts.AgentIdentity)
	if err != nil {
		return nil, err
	}
	req.LiveKitToken = token

	providerName := cfg.Provider
	if providerName == "" {
		providerName = constants.AvatarTypeHedra
	}
	provider, err := o.providers.NewAvatar(providerName, cfg.Config)
	if err != nil {
		return nil, err
	}
	session, err := provider.Start(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start avatar session: %w", err)
	}
	return session, nil
}

func (o *Orchestrator) releaseLock(room, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := o.lock.Release(ctx, room, owner); err != nil {
		log.Warnf("释放房间锁 %s 失败: %v", room, err)
	}
}

// refreshLock 锁丢失说明房间已被其他实例接管，关闭本会话
func (o *Orchestrator) refreshLock(session *Session) {
	interval := o.lock.TTL() / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-session.Context().Done():
			return
		case <-ticker.C:
			if err := o.lock.Refresh(session.Context(), session.Room(), session.ID()); err != nil {
				if session.Context().Err() != nil {
					return
				}
				log.Warnf("房间 %s 锁续期失败，关闭会话: %v", session.Room(), err)
				_ = session.Close()
				return
			}
		}
	}
}
