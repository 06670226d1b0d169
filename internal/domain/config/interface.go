package session_config

import (
	"context"

	"hedra-avatar-agent/internal/domain/config/types"
)

// SessionConfigProvider 按房间提供会话管线配置
type SessionConfigProvider interface {
	GetSessionConfig(ctx context.Context, room string) (types.SessionConfig, error)
	// SetOverride 为房间设置某个组件的覆盖参数，kind 见 types.Kinds
	SetOverride(ctx context.Context, room string, kind string, override map[string]interface{}) error
	DeleteSessionConfig(ctx context.Context, room string) error
	Close() error
}
