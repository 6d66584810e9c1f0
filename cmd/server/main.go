package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brunnerh/email-sink/internal/auth"
	jwtpkg "github.com/brunnerh/email-sink/internal/auth/jwt"
	localcache "github.com/brunnerh/email-sink/internal/cache"
	"github.com/brunnerh/email-sink/internal/config"
	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/health"
	"github.com/brunnerh/email-sink/internal/logger"
	"github.com/brunnerh/email-sink/internal/monitoring"
	"github.com/brunnerh/email-sink/internal/pool"
	"github.com/brunnerh/email-sink/internal/security"
	"github.com/brunnerh/email-sink/internal/service"
	"github.com/brunnerh/email-sink/internal/smtp"
	"github.com/brunnerh/email-sink/internal/storage"
	"github.com/brunnerh/email-sink/internal/storage/memory"
	redisstore "github.com/brunnerh/email-sink/internal/storage/redis"
	sqlstore "github.com/brunnerh/email-sink/internal/storage/sql"
	httptransport "github.com/brunnerh/email-sink/internal/transport/http"
	"github.com/brunnerh/email-sink/internal/websocket"
)

// main 启动同时包含 HTTP API 与 SMTP 摄入通道的邮件收集服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting email-sink server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = initializeDatabaseStorage(cfg, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		// 内存存储仅用于开发环境，进程退出后数据丢失
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// 初始化 Redis 缓存（可选）
	var cache *redisstore.Cache
	if cfg.Redis.Enabled {
		cache, err = redisstore.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect to redis, continuing without cache", zap.Error(err))
			cache = nil
		} else {
			log.Info("redis cache initialized", zap.String("address", cfg.Redis.Address))
		}
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	healthChecker := health.NewChecker(store, cache, log)

	// 初始化认证服务
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(store, jwtManager)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
	)

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)

	// 缓存后端：优先 Redis，未启用时降级为进程内缓存
	var (
		sinkCache  service.SinkCache
		emailCache service.EmailCache
		listCache  service.ListCacheInvalidator
		local      *localcache.LocalCache
	)
	if cache != nil {
		sinkCache, emailCache, listCache = cache, cache, cache
	} else {
		local = localcache.NewLocalCache()
		sinkCache, emailCache, listCache = local, local, local
		log.Info("using in-process cache (single instance only)")
	}

	// 旁路任务池：摄入后的通知与缓存失效
	taskPool := pool.NewWorkerPool(4, 256, log)

	// 初始化服务层
	sinkService := service.NewSinkService(store, sinkCache)
	apiKeyService := service.NewAPIKeyService(sinkService, store)
	authRuleService := service.NewAuthRuleService(sinkService, store)
	emailService := service.NewEmailService(store, emailCache)
	ingestService := service.NewIngestService(store, log)
	if cache != nil {
		// 多实例：事件经 Redis 广播，本实例的 Hub 从订阅端收到（含自己发布的）
		ingestService.SetNotifier(service.NotifierFunc(func(sinkID string, email *domain.Email) {
			if err := cache.PublishNewEmail(sinkID, email); err != nil {
				log.Warn("failed to publish new email event", zap.Error(err))
				wsHub.NotifyNewEmail(sinkID, email)
			}
		}))
	} else {
		ingestService.SetNotifier(wsHub)
	}
	ingestService.SetRecorder(metrics)
	ingestService.SetListCache(listCache)
	ingestService.SetAttachmentPolicy(security.NewAttachmentPolicy(cfg.Ingest.MaxAttachmentSize))
	ingestService.SetTaskPool(taskPool)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		SinkService:     sinkService,
		IngestService:   ingestService,
		EmailService:    emailService,
		APIKeyService:   apiKeyService,
		AuthRuleService: authRuleService,
		AuthService:     authService,
		JWTManager:      jwtManager,
		WebSocketHub:    wsHub,
		Metrics:         metrics,
		HealthChecker:   healthChecker,
		RedisCache:      cache,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器（可选摄入通道）
	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		smtpBackend := smtp.NewBackend(sinkService, ingestService, cfg.SMTP.Domain, cfg.Ingest.MaxRawSize, log)
		smtpServer = gosmtp.NewServer(smtpBackend)
		smtpServer.Addr = cfg.SMTP.BindAddr
		smtpServer.Domain = cfg.SMTP.Domain
		smtpServer.AllowInsecureAuth = cfg.Log.Development
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = cfg.Ingest.MaxRawSize
		smtpServer.MaxRecipients = 50
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	taskPool.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// Redis 订阅 goroutine：把其它实例发布的新邮件事件转发给本实例的连接
	if cache != nil {
		group.Go(func() error {
			log.Info("subscribing to new email events")
			return cache.SubscribeNewEmail(groupCtx, wsHub.NotifyNewEmail)
		})
	}

	// 运行时间指标 goroutine
	group.Go(func() error {
		start := time.Now()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateSystemUptime(time.Since(start))
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		taskPool.Stop()

		if cache != nil {
			if err := cache.Close(); err != nil {
				log.Warn("redis close warning", zap.Error(err))
			}
		}
		if local != nil {
			local.Close()
		}
		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeDatabaseStorage 初始化 SQL 数据库存储（PostgreSQL 或 MySQL）。
func initializeDatabaseStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	log.Info("initializing database storage",
		zap.String("database_type", cfg.Database.Type),
	)

	store, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql store: %w", err)
	}

	return store, nil
}
