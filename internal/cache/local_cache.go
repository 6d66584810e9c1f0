package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/brunnerh/email-sink/internal/domain"
)

// ErrMiss 缓存未命中。
var ErrMiss = errors.New("cache miss")

// LocalCache 进程内缓存，在未启用 Redis 的部署中充当
// Sink 与邮件列表缓存的降级实现。
// 单实例有效，多实例部署必须改用 Redis 以保证失效一致。
type LocalCache struct {
	data sync.Map
	stop chan struct{}
	once sync.Once
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存并启动后台过期清理。
func NewLocalCache() *LocalCache {
	c := &LocalCache{
		stop: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Close 停止后台清理协程。
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// ========== Sink 缓存 ==========

// CacheSinkBySlug 按 slug 缓存 Sink。
func (c *LocalCache) CacheSinkBySlug(sink *domain.Sink, ttl time.Duration) error {
	cp := *sink
	c.set("sink:slug:"+sink.Slug, &cp, ttl)
	return nil
}

// GetCachedSinkBySlug 按 slug 获取缓存的 Sink，未命中返回 ErrMiss。
func (c *LocalCache) GetCachedSinkBySlug(slug string) (*domain.Sink, error) {
	val, ok := c.get("sink:slug:" + slug)
	if !ok {
		return nil, ErrMiss
	}
	sink, ok := val.(*domain.Sink)
	if !ok {
		return nil, ErrMiss
	}
	cp := *sink
	return &cp, nil
}

// DeleteCachedSink 删除缓存的 Sink。
func (c *LocalCache) DeleteCachedSink(slug string) error {
	c.data.Delete("sink:slug:" + slug)
	return nil
}

// ========== 邮件列表缓存 ==========

// CacheEmailList 缓存 Sink 的邮件列表。
func (c *LocalCache) CacheEmailList(sinkID string, emails []domain.Email, ttl time.Duration) error {
	cp := make([]domain.Email, len(emails))
	copy(cp, emails)
	c.set("emails:sink:"+sinkID, cp, ttl)
	return nil
}

// GetCachedEmailList 获取缓存的邮件列表，未命中返回 ErrMiss。
func (c *LocalCache) GetCachedEmailList(sinkID string) ([]domain.Email, error) {
	val, ok := c.get("emails:sink:" + sinkID)
	if !ok {
		return nil, ErrMiss
	}
	emails, ok := val.([]domain.Email)
	if !ok {
		return nil, ErrMiss
	}
	cp := make([]domain.Email, len(emails))
	copy(cp, emails)
	return cp, nil
}

// DeleteCachedEmailList 删除缓存的邮件列表，新邮件入库后调用。
func (c *LocalCache) DeleteCachedEmailList(sinkID string) error {
	c.data.Delete("emails:sink:" + sinkID)
	return nil
}

// ========== 内部实现 ==========

func (c *LocalCache) set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.data.Store(key, &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

func (c *LocalCache) get(key string) (interface{}, bool) {
	val, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.data.Delete(key)
		return nil, false
	}
	return entry.value, true
}

// cleanupLoop 定期清理过期条目。
func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(key, value interface{}) bool {
				if now.After(value.(*cacheEntry).expiresAt) {
					c.data.Delete(key)
				}
				return true
			})
		}
	}
}
