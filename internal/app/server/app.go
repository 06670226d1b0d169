package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hedra-avatar-agent/internal/app/server/agent"
	"hedra-avatar-agent/internal/app/server/auth"
	"hedra-avatar-agent/internal/app/server/types"
	"hedra-avatar-agent/internal/app/server/websocket"
	. "hedra-avatar-agent/internal/data/msg"
	redisdb "hedra-avatar-agent/internal/db/redis"
	session_config "hedra-avatar-agent/internal/domain/config"
	"hedra-avatar-agent/internal/domain/preset"
	"hedra-avatar-agent/internal/domain/resolver"
	"hedra-avatar-agent/internal/domain/room"
	log "hedra-avatar-agent/logger"

	"github.com/spf13/viper"
)

// App 管理 WebSocket 服务与 agent 会话编排
type App struct {
	wsServer     *websocket.WebSocketServer
	orchestrator *agent.Orchestrator
	configs      session_config.SessionConfigProvider
}

// NewApp 进程启动时的全部依赖都从 viper 读取
func NewApp(voices preset.VoicePresetTable, livekit room.Config) (*App, error) {
	app := &App{}

	configs, err := session_config.GetSessionConfigProvider(
		viper.GetString("session_config.provider"),
		viper.GetStringMap("session_config"),
	)
	if err != nil {
		return nil, err
	}
	app.configs = configs

	options := []agent.OrchestratorOption{}
	if viper.GetBool("room_lock.enable") {
		client := redisdb.GetClient()
		if client == nil {
			return nil, errors.New("room_lock 需要 redis")
		}
		ttl := viper.GetDuration("room_lock.ttl")
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		options = append(options, agent.WithRoomLock(redisdb.NewRoomLock(client, viper.GetString("redis.key_prefix"), ttl)))
	}

	app.orchestrator = agent.NewOrchestrator(
		room.NewRoomClient(livekit),
		resolver.NewResolver(voices),
		configs,
		preset.NewAssetStore(viper.GetString("assets.dir")),
		room.NewTokenMinter(livekit),
		agent.Options{
			LiveKitURL:     livekit.URL,
			AgentIdentity:  livekit.Identity,
			AvatarIdentity: viper.GetString("avatar.identity"),
			AvatarName:     viper.GetString("avatar.name"),
			SilenceTimeout: viper.GetDuration("agent.silence_timeout"),
			StartTimeout:   viper.GetDuration("agent.start_timeout"),
		},
		options...,
	)

	app.wsServer = app.newWebSocketServer()
	return app, nil
}

func (a *App) newWebSocketServer() *websocket.WebSocketServer {
	port := viper.GetInt("websocket.port")
	opts := []websocket.WebSocketServerOption{
		websocket.WithAuthManager(auth.A()),
		websocket.WithOnNewConnection(a.OnNewConnection),
	}
	if redisdb.GetClient() != nil {
		opts = append(opts, websocket.WithHealthChecker("redis", func(ctx context.Context) error {
			if !redisdb.IsHealthy(ctx) {
				return errors.New("redis ping failed")
			}
			return nil
		}))
	}
	return websocket.NewWebSocketServer(port, opts...)
}

// Run 阻塞直到 WebSocket 服务关闭
func (a *App) Run() error {
	return a.wsServer.Start()
}

// Shutdown 停止接收新连接并关闭所有会话
func (a *App) Shutdown(ctx context.Context) error {
	err := a.wsServer.Shutdown(ctx)
	a.orchestrator.Registry().CloseAll()
	if cerr := a.configs.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// OnNewConnection 每个连接启动一个房间会话，启动失败时回一条错误消息后断开
func (a *App) OnNewConnection(conn types.IConn) {
	go func() {
		_, err := a.orchestrator.Start(context.Background(), conn)
		if err == nil {
			return
		}
		log.Log("room", conn.GetRoom(), "transport", conn.GetTransportType()).Errorf("启动 agent 会话失败: %v", err)
		data, _ := json.Marshal(ServerMessage{
			Type: ServerMessageTypeError,
			Text: fmt.Sprintf("start agent session: %v", err),
			Room: conn.GetRoom(),
		})
		_ = conn.SendCmd(data)
		_ = conn.Close()
	}()
}
