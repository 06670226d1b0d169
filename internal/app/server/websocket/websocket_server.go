package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hedra-avatar-agent/internal/app/server/auth"
	"hedra-avatar-agent/internal/app/server/types"
	log "hedra-avatar-agent/logger"
)

// HealthChecker /healthz 的依赖检查项，返回 nil 表示健康
type HealthChecker func(ctx context.Context) error

// WebSocketServer 媒体连接入口
type WebSocketServer struct {
	// 配置升级器
	upgrader websocket.Upgrader
	// 认证管理器
	authManager *auth.AuthManager
	// 端口
	port   int
	server *http.Server

	healthCheckers  map[string]HealthChecker
	onNewConnection types.OnNewConnection
}

// WebSocketServerOption 用于配置 WebSocketServer 的可选参数
type WebSocketServerOption func(*WebSocketServer)

// WithAuthManager 设置认证管理器
func WithAuthManager(authManager *auth.AuthManager) WebSocketServerOption {
	return func(s *WebSocketServer) {
		s.authManager = authManager
	}
}

func WithOnNewConnection(onNewConnection types.OnNewConnection) WebSocketServerOption {
	return func(s *WebSocketServer) {
		s.onNewConnection = onNewConnection
	}
}

func WithHealthChecker(name string, checker HealthChecker) WebSocketServerOption {
	return func(s *WebSocketServer) {
		s.healthCheckers[name] = checker
	}
}

// NewWebSocketServer 创建新的 WebSocket 服务器（WithOption 方式）
func NewWebSocketServer(port int, opts ...WebSocketServerOption) *WebSocketServer {
	s := &WebSocketServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源的连接
			},
		},
		// 默认值
		authManager:    auth.A(),
		port:           port,
		healthCheckers: map[string]HealthChecker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/v1/", s.handleAgent)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start 阻塞直到服务关闭
func (s *WebSocketServer) Start() error {
	listenAddr := fmt.Sprintf("0.0.0.0:%d", s.port)
	s.server = &http.Server{Addr: listenAddr, Handler: s.Handler()}
	log.Infof("WebSocket 服务器启动在 ws://%s/agent/v1/", listenAddr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("WebSocket 服务器启动失败: %v", err)
		return err
	}
	return nil
}

func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *WebSocketServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := map[string]string{}
	for name, check := range s.healthCheckers {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

// handleAgent 一个连接对应一个房间
func (s *WebSocketServer) handleAgent(w http.ResponseWriter, r *http.Request) {
	room := r.Header.Get("Room-Name")
	if room == "" {
		room = r.URL.Query().Get("room")
	}
	if room == "" {
		log.Warn("缺少 Room-Name 请求头")
		http.Error(w, "缺少 Room-Name 请求头", http.StatusBadRequest)
		return
	}

	if s.authManager != nil && s.authManager.Enabled() {
		token := r.Header.Get("Authorization")
		if token == "" {
			log.Warn("缺少 Authorization 请求头")
			http.Error(w, "缺少 Authorization 请求头", http.StatusUnauthorized)
			return
		}
		if !s.authManager.ValidateToken(token) {
			log.Warnf("房间 %s 无效的令牌", room)
			http.Error(w, "无效的令牌", http.StatusUnauthorized)
			return
		}
	}

	// 升级 HTTP 连接为 WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket 升级失败: %v", err)
		return
	}

	// 适配为 IConn 接口
	wsConn := NewWebSocketConn(conn, room)
	if s.onNewConnection != nil {
		s.onNewConnection(wsConn)
	}
}
