package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brunnerh/email-sink/internal/domain"
)

// Cache Redis 缓存实现。
// 摄入热路径每封邮件都要按 slug 解析 Sink，缓存可以避免反复打库。
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== Sink 缓存 ==========

// CacheSinkBySlug 按 slug 缓存 Sink 信息
func (c *Cache) CacheSinkBySlug(sink *domain.Sink, ttl time.Duration) error {
	key := fmt.Sprintf("sink:slug:%s", sink.Slug)
	data, err := json.Marshal(sink)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedSinkBySlug 按 slug 获取缓存的 Sink 信息
func (c *Cache) GetCachedSinkBySlug(slug string) (*domain.Sink, error) {
	key := fmt.Sprintf("sink:slug:%s", slug)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("sink not found in cache")
		}
		return nil, err
	}

	var sink domain.Sink
	if err := json.Unmarshal([]byte(data), &sink); err != nil {
		return nil, err
	}

	return &sink, nil
}

// DeleteCachedSink 删除缓存的 Sink 信息。
// Sink 更新或删除后必须调用，否则鉴权开关的变更会延迟生效。
func (c *Cache) DeleteCachedSink(slug string) error {
	key := fmt.Sprintf("sink:slug:%s", slug)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 邮件列表缓存 ==========

// CacheEmailList 缓存 Sink 的邮件列表
func (c *Cache) CacheEmailList(sinkID string, emails []domain.Email, ttl time.Duration) error {
	key := fmt.Sprintf("emails:%s", sinkID)
	data, err := json.Marshal(emails)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedEmailList 获取缓存的邮件列表
func (c *Cache) GetCachedEmailList(sinkID string) ([]domain.Email, error) {
	key := fmt.Sprintf("emails:%s", sinkID)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("email list not found in cache")
		}
		return nil, err
	}

	var emails []domain.Email
	if err := json.Unmarshal([]byte(data), &emails); err != nil {
		return nil, err
	}

	return emails, nil
}

// DeleteCachedEmailList 删除缓存的邮件列表
func (c *Cache) DeleteCachedEmailList(sinkID string) error {
	key := fmt.Sprintf("emails:%s", sinkID)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 限流缓存 ==========

// IncrementRateLimit 增加限流计数
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()

	// 增加计数
	incr := pipe.Incr(c.ctx, key)

	// 设置过期时间（如果是新键）
	pipe.Expire(c.ctx, key, window)

	_, err := pipe.Exec(c.ctx)
	if err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// ========== 发布订阅 ==========

// newEmailChannel 新邮件事件的 Pub/Sub 频道。
const newEmailChannel = "emailsink:new_email"

// newEmailEvent Pub/Sub 信封，发布方与订阅方共用。
type newEmailEvent struct {
	SinkID string       `json:"sink_id"`
	Email  domain.Email `json:"email"`
}

// PublishNewEmail 发布新邮件事件。多实例部署时每个实例都订阅同一频道，
// 由各自的 WebSocket Hub 转发给本实例的连接。
func (c *Cache) PublishNewEmail(sinkID string, email *domain.Email) error {
	data, err := json.Marshal(newEmailEvent{SinkID: sinkID, Email: *email})
	if err != nil {
		return err
	}
	return c.client.Publish(c.ctx, newEmailChannel, data).Err()
}

// SubscribeNewEmail 订阅新邮件事件并逐条回调 handler，ctx 取消后返回。
// 无法解码的消息跳过，订阅不中断。
func (c *Cache) SubscribeNewEmail(ctx context.Context, handler func(sinkID string, email *domain.Email)) error {
	sub := c.client.Subscribe(ctx, newEmailChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event newEmailEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			handler(event.SinkID, &event.Email)
		}
	}
}

// ========== 工具方法 ==========

// Ping 测试 Redis 连接
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
