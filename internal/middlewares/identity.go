package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
)

const (
	UserKey   = "user"
	UserIDKey = "user_id"
)

// UserResolver 由 services.UserService 实现
type UserResolver interface {
	Resolve(ctx context.Context, externalID, name string) (*models.User, error)
}

// Identity 从请求头读取外部账号并解析为用户，首次出现的账号会被创建
func Identity(users UserResolver, identityHeader, nameHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.GetHeader(identityHeader)
		if externalID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + identityHeader + " header"})
			return
		}

		user, err := users.Resolve(c.Request.Context(), externalID, c.GetHeader(nameHeader))
		if err != nil {
			status := http.StatusInternalServerError
			if services.IsKind(err, services.KindBadRequest) {
				status = http.StatusBadRequest
			}
			c.Error(err)
			c.AbortWithStatusJSON(status, gin.H{"error": services.PublicMessage(err)})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// CurrentUser 返回 Identity 写入的用户
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
