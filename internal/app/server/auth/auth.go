package auth

import (
	"crypto/subtle"
	"strings"
	"sync"
)

// AuthManager 校验媒体连接携带的静态令牌
type AuthManager struct {
	enable bool
	tokens []string
	mutex  sync.RWMutex
}

var authManager = NewAuthManager(false, nil)

func Init(enable bool, tokens []string) {
	authManager = NewAuthManager(enable, tokens)
}

func A() *AuthManager {
	return authManager
}

func NewAuthManager(enable bool, tokens []string) *AuthManager {
	am := &AuthManager{enable: enable}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			am.tokens = append(am.tokens, t)
		}
	}
	return am
}

func (am *AuthManager) Enabled() bool {
	return am.enable
}

// ValidateToken 支持 "Bearer <token>" 与裸 token
func (am *AuthManager) ValidateToken(token string) bool {
	if !am.enable {
		return true
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return false
	}

	am.mutex.RLock()
	defer am.mutex.RUnlock()
	for _, t := range am.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// SetTokens 配置热更新时替换令牌列表
func (am *AuthManager) SetTokens(tokens []string) {
	next := NewAuthManager(am.enable, tokens)
	am.mutex.Lock()
	am.tokens = next.tokens
	am.mutex.Unlock()
}
