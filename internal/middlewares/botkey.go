package middlewares

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const BotKeyHeader = "X-Bot-Key"

// BotKey 校验聊天机器人的共享 API Key，配置中只保存 bcrypt 哈希。
// 哈希为空时不做校验
type BotKey struct {
	hash []byte

	mu       sync.RWMutex
	verified string // 最近一次校验通过的 key，避免每个请求都做 bcrypt
}

func NewBotKey(hash string) *BotKey {
	return &BotKey{hash: []byte(hash)}
}

func (b *BotKey) Enabled() bool {
	return len(b.hash) > 0
}

// Allowed 报告请求是否携带了有效的 key
func (b *BotKey) Allowed(r *http.Request) bool {
	if !b.Enabled() {
		return true
	}
	key := r.Header.Get(BotKeyHeader)
	if key == "" {
		return false
	}

	b.mu.RLock()
	cached := b.verified
	b.mu.RUnlock()
	if cached != "" && cached == key {
		return true
	}

	if bcrypt.CompareHashAndPassword(b.hash, []byte(key)) != nil {
		return false
	}
	b.mu.Lock()
	b.verified = key
	b.mu.Unlock()
	return true
}

func (b *BotKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !b.Allowed(c.Request) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing " + BotKeyHeader})
			return
		}
		c.Next()
	}
}
