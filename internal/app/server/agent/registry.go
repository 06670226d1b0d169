package agent

import (
	log "hedra-avatar-agent/logger"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registry 房间 -> 运行中的会话，同一房间只保留最新的会话
type Registry struct {
	sessions cmap.ConcurrentMap[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: cmap.New[*Session]()}
}

// Register 房间已有会话时关闭旧会话
func (r *Registry) Register(room string, session *Session) {
	var previous *Session
	r.sessions.Upsert(room, session, func(exist bool, valueInMap *Session, newValue *Session) *Session {
		if exist && valueInMap != newValue {
			previous = valueInMap
		}
		return newValue
	})
	if previous != nil {
		log.Warnf("房间 %s 已存在会话 %s，将关闭旧会话", room, previous.ID())
		go previous.Close()
	}
	log.Infof("注册会话 %s，房间: %s", session.ID(), room)
}

// Unregister 只移除仍是 session 本身的记录，避免误删新会话
func (r *Registry) Unregister(room string, session *Session) bool {
	removed := r.sessions.RemoveCb(room, func(key string, v *Session, exists bool) bool {
		return exists && v == session
	})
	if removed {
		log.Infof("注销会话 %s，房间: %s", session.ID(), room)
	}
	return removed
}

func (r *Registry) Get(room string) (*Session, bool) {
	return r.sessions.Get(room)
}

func (r *Registry) Rooms() []string {
	return r.sessions.Keys()
}

func (r *Registry) Count() int {
	return r.sessions.Count()
}

// CloseAll 进程退出时调用
func (r *Registry) CloseAll() {
	for _, s := range r.sessions.Items() {
		_ = s.Close()
	}
}
