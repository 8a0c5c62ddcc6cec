package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/internal/middlewares"
	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
	logger "github.com/Gopher0727/ShoppingRoom/middleware/log"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// statusFor 业务错误分类到 HTTP 状态码的唯一映射
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict:
		return http.StatusConflict
	case services.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError Internal 错误只记录日志，不向调用方暴露原因
func writeError(c *gin.Context, log *zap.Logger, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
			logger.TraceField(c.Request.Context()),
		)
	}
	c.JSON(statusFor(kind), gin.H{"error": services.PublicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pathID 解析路径中的正整数 ID
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// caller 身份中间件写入的当前用户
func caller(c *gin.Context) (*models.User, bool) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return nil, false
	}
	return user, true
}
