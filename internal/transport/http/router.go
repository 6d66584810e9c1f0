package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/auth"
	jwtpkg "github.com/brunnerh/email-sink/internal/auth/jwt"
	"github.com/brunnerh/email-sink/internal/config"
	"github.com/brunnerh/email-sink/internal/health"
	"github.com/brunnerh/email-sink/internal/middleware"
	"github.com/brunnerh/email-sink/internal/monitoring"
	"github.com/brunnerh/email-sink/internal/service"
	"github.com/brunnerh/email-sink/internal/storage/redis"
	"github.com/brunnerh/email-sink/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	SinkService     *service.SinkService
	IngestService   *service.IngestService
	EmailService    *service.EmailService
	APIKeyService   *service.APIKeyService
	AuthRuleService *service.AuthRuleService
	AuthService     *auth.Service
	JWTManager      *jwtpkg.Manager
	WebSocketHub    *websocket.Hub
	Metrics         *monitoring.Metrics
	HealthChecker   *health.Checker
	RedisCache      *redis.Cache // 可选，nil 时用进程内限流
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(mm.HTTPMetrics())
	}

	// 全局兜底的请求体上限，摄入路由再按配置单独收紧
	router.Use(middleware.BodySizeLimit(middleware.IngestBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Sink-Token"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Disposition",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 全局护栏：漏挂守卫的路由 500 拒绝（CORS 之后，预检不受影响）
	router.Use(middleware.GuardEnforcement(log))

	// 未知路径也要显式标记，否则护栏会把 404 改写成 500
	router.NoRoute(func(c *gin.Context) {
		middleware.MarkGuard(c)
		NotFound(c, "route not found")
	})

	// 创建处理器
	ingestHandler := NewIngestHandler(deps.IngestService, log)
	sinkHandler := NewSinkHandler(deps.SinkService, deps.APIKeyService, deps.AuthRuleService, log)
	emailHandler := NewEmailHandler(deps.EmailService, log)
	authHandler := NewAuthHandler(deps.AuthService, log)

	// 创建中间件
	sinkAuth := middleware.NewSinkAuth(deps.SinkService, log)
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)
	adminAuth := middleware.NewAdminAuth(deps.AuthService)
	public := middleware.Public()

	// 摄入限流：部署多实例时走 Redis 计数器，否则用进程内令牌桶
	var ingestRateLimit gin.HandlerFunc
	if rps := deps.Config.Ingest.RatePerSecond; rps > 0 {
		if deps.RedisCache != nil {
			ingestRateLimit = middleware.RedisRateLimit(deps.RedisCache, int64(rps), time.Second, log)
		} else {
			ingestRateLimit = middleware.NewRateLimiter(float64(rps), rps*2, log).Limit()
		}
	} else {
		ingestRateLimit = func(c *gin.Context) { c.Next() }
	}

	// 健康检查
	if deps.HealthChecker != nil {
		router.GET("/health/live", public, gin.WrapF(deps.HealthChecker.LiveEndpoint))
		router.GET("/health/ready", public, gin.WrapF(deps.HealthChecker.ReadyEndpoint))
	}
	router.GET("/health", public, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", public, gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	api := router.Group("/api")
	{
		// ========== Ingest Routes（摄入闸门保护） ==========
		ingestRoutes := api.Group("/ingest/:slug")
		ingestRoutes.Use(
			ingestRateLimit,
			middleware.BodySizeLimit(deps.Config.Ingest.MaxRawSize),
			sinkAuth.RequireSinkAccess(),
		)
		{
			ingestRoutes.POST("/form", ingestHandler.IngestForm)
			ingestRoutes.POST("/raw", ingestHandler.IngestRaw)
		}

		// ========== Auth Routes ==========
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", public, authHandler.Login)
			authRoutes.POST("/refresh", public, authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Sink Admin Routes（管理员JWT保护） ==========
		sinkRoutes := api.Group("/sinks")
		sinkRoutes.Use(jwtAuth.RequireAuth(), adminAuth.RequireAdmin())
		{
			sinkRoutes.POST("", sinkHandler.CreateSink)
			sinkRoutes.GET("", sinkHandler.ListSinks)
			sinkRoutes.GET("/:id", sinkHandler.GetSink)
			sinkRoutes.PATCH("/:id", sinkHandler.UpdateSink)
			sinkRoutes.DELETE("/:id", sinkHandler.DeleteSink)

			// 摄入密钥管理
			sinkRoutes.POST("/:id/keys", sinkHandler.CreateAPIKey)
			sinkRoutes.GET("/:id/keys", sinkHandler.ListAPIKeys)
			sinkRoutes.DELETE("/:id/keys/:keyId", sinkHandler.DeleteAPIKey)

			// 发件人授权规则管理
			sinkRoutes.POST("/:id/rules", sinkHandler.CreateAuthRule)
			sinkRoutes.GET("/:id/rules", sinkHandler.ListAuthRules)
			sinkRoutes.DELETE("/:id/rules/:ruleId", sinkHandler.DeleteAuthRule)

			// 邮件查询
			sinkRoutes.GET("/:id/emails", emailHandler.ListEmails)
			sinkRoutes.GET("/:id/emails/:emailId", emailHandler.GetEmail)
			sinkRoutes.DELETE("/:id/emails/:emailId", emailHandler.DeleteEmail)
			sinkRoutes.GET("/:id/emails/:emailId/attachments/:attachmentId", emailHandler.DownloadAttachment)
		}

		// ========== WebSocket Routes ==========
		// 连接鉴权在 Hub 内完成（握手参数里的管理员JWT）
		if deps.WebSocketHub != nil {
			api.GET("/sinks/:id/ws", public, websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
