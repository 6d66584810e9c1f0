package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/storage"
	"github.com/brunnerh/email-sink/internal/storage/redis"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	cache  *redis.Cache
	logger *zap.Logger
}

// NewChecker 创建健康检查器，cache 为 nil 时跳过 Redis 检查
func NewChecker(store storage.Store, cache *redis.Cache, logger *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		cache:  cache,
		logger: logger,
	}

	c.addChecks()

	return c
}

// addChecks 添加健康检查
func (c *Checker) addChecks() {
	// 数据库连接检查
	c.health.AddReadinessCheck("database", func() error {
		return c.store.Health()
	})

	// Redis 连接检查
	if c.cache != nil {
		c.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return c.cache.Ping(ctx)
		})
	}

	// goroutine 数量检查
	c.health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (c *Checker) Handler() http.Handler {
	return c.health
}

// LiveEndpoint 存活探针处理函数
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针处理函数
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行一次健康检查并汇总结果
func (c *Checker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := c.store.Health(); err != nil {
		results["database"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["database"] = "OK"
	}

	if c.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.cache.Ping(ctx); err != nil {
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
		cancel()
	} else {
		results["redis"] = "NOT_AVAILABLE"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}

// DatabaseCheck 基于 *sql.DB 的数据库健康检查
func DatabaseCheck(db *sql.DB) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return db.PingContext(ctx)
	}
}
