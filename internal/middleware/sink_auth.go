package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/service"
)

// sinkContextKey 摄入闸门校验通过后写入上下文的键。
const sinkContextKey = "ingestSink"

// SinkAuth 摄入闸门中间件：按 slug 定位 Sink 并校验访问令牌
type SinkAuth struct {
	sinkService *service.SinkService
	log         *zap.Logger
}

// NewSinkAuth 创建摄入闸门中间件
func NewSinkAuth(sinkService *service.SinkService, log *zap.Logger) *SinkAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &SinkAuth{
		sinkService: sinkService,
		log:         log,
	}
}

// RequireSinkAccess 要求通过摄入闸门。
// 闸门规则：slug 缺失返回 400，Sink 不存在返回 404，
// 未提供令牌返回 401，令牌无效返回 403。
func (sa *SinkAuth) RequireSinkAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Param("slug")
		token := sa.extractToken(c)

		sink, err := sa.sinkService.Authorize(slug, token)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrSlugRequired):
				c.JSON(http.StatusBadRequest, gin.H{"error": "sink slug required"})
			case errors.Is(err, service.ErrSinkNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "sink not found"})
			case errors.Is(err, service.ErrTokenRequired):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "access token required"})
			case errors.Is(err, service.ErrTokenInvalid):
				sa.log.Warn("invalid sink token",
					zap.String("slug", slug),
					zap.String("ip", c.ClientIP()),
				)
				c.JSON(http.StatusForbidden, gin.H{"error": "invalid access token"})
			default:
				sa.log.Error("sink authorization failed",
					zap.String("slug", slug),
					zap.Error(err),
				)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
			c.Abort()
			return
		}

		c.Set(sinkContextKey, sink)
		MarkGuard(c)
		c.Next()
	}
}

// extractToken 从请求头提取访问令牌。
// 只接受请求头：查询参数会原样落进访问日志，不能承载凭据。
func (sa *SinkAuth) extractToken(c *gin.Context) string {
	// 1. 尝试从 Authorization header 提取 (Bearer token格式)
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 尝试从 X-Sink-Token header 提取
	return c.GetHeader("X-Sink-Token")
}

// SinkFromContext 取出闸门校验过的 Sink。
// 处理函数必须经由 RequireSinkAccess 到达；缺失时按配置错误
// 返回 500 并中断请求，绝不放行未校验的调用。
func SinkFromContext(c *gin.Context) (*domain.Sink, bool) {
	val, exists := c.Get(sinkContextKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest gate not applied"})
		c.Abort()
		return nil, false
	}

	sink, ok := val.(*domain.Sink)
	if !ok || sink == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest gate not applied"})
		c.Abort()
		return nil, false
	}

	return sink, true
}
