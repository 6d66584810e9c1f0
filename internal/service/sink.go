package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

var (
	ErrSlugRequired = errors.New("sink slug required")
	ErrSinkNotFound = errors.New("sink not found")
	ErrSlugTaken    = errors.New("sink slug already taken")
	ErrNameRequired = errors.New("sink name required")

	ErrTokenRequired = errors.New("api key required")
	ErrTokenInvalid  = errors.New("api key invalid")
)

// SinkCache Sink 查询缓存接口，由 Redis 实现，可为 nil。
type SinkCache interface {
	CacheSinkBySlug(sink *domain.Sink, ttl time.Duration) error
	GetCachedSinkBySlug(slug string) (*domain.Sink, error)
	DeleteCachedSink(slug string) error
}

// SinkService 封装 Sink 相关业务操作。
type SinkService struct {
	store    storage.Store
	cache    SinkCache
	cacheTTL time.Duration
}

// NewSinkService 创建 Sink 业务服务。cache 可为 nil 表示不启用缓存。
func NewSinkService(store storage.Store, cache SinkCache) *SinkService {
	return &SinkService{
		store:    store,
		cache:    cache,
		cacheTTL: 5 * time.Minute,
	}
}

// CreateSinkInput 定义创建 Sink 所需的输入。
type CreateSinkInput struct {
	Name            string
	Slug            string
	IsAuthEnabled   bool
	CreatedByUserID *string
}

// Create 创建新的 Sink。slug 全局唯一，只允许小写字母、数字与连字符。
func (s *SinkService) Create(input CreateSinkInput) (*domain.Sink, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if err := domain.ValidateSlug(slug); err != nil {
		return nil, err
	}

	sink := &domain.Sink{
		ID:              uuid.NewString(),
		Name:            name,
		Slug:            slug,
		IsAuthEnabled:   input.IsAuthEnabled,
		CreatedByUserID: input.CreatedByUserID,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.SaveSink(sink); err != nil {
		if errors.Is(err, storage.ErrSlugExists) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}

	return sink, nil
}

// Get 根据 ID 获取 Sink。
func (s *SinkService) Get(id string) (*domain.Sink, error) {
	sink, err := s.store.GetSink(id)
	if err != nil {
		if errors.Is(err, storage.ErrSinkNotFound) {
			return nil, ErrSinkNotFound
		}
		return nil, err
	}
	return sink, nil
}

// GetBySlug 根据 slug 获取 Sink，优先命中缓存。
func (s *SinkService) GetBySlug(slug string) (*domain.Sink, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrSlugRequired
	}

	if s.cache != nil {
		if sink, err := s.cache.GetCachedSinkBySlug(slug); err == nil {
			return sink, nil
		}
	}

	sink, err := s.store.GetSinkBySlug(slug)
	if err != nil {
		if errors.Is(err, storage.ErrSinkNotFound) {
			return nil, ErrSinkNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.CacheSinkBySlug(sink, s.cacheTTL)
	}

	return sink, nil
}

// List 返回全部 Sink。
func (s *SinkService) List() ([]domain.Sink, error) {
	return s.store.ListSinks()
}

// UpdateSinkInput 定义更新 Sink 的输入。nil 字段表示不变更。
type UpdateSinkInput struct {
	Name          *string
	IsAuthEnabled *bool
}

// Update 更新 Sink 的名称或鉴权开关。slug 创建后不可变。
func (s *SinkService) Update(id string, input UpdateSinkInput) (*domain.Sink, error) {
	sink, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		sink.Name = name
	}
	if input.IsAuthEnabled != nil {
		sink.IsAuthEnabled = *input.IsAuthEnabled
	}

	if err := s.store.SaveSink(sink); err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.DeleteCachedSink(sink.Slug)
	}

	return sink, nil
}

// Delete 删除 Sink 及其全部邮件数据。
func (s *SinkService) Delete(id string) error {
	sink, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteSink(id); err != nil {
		if errors.Is(err, storage.ErrSinkNotFound) {
			return ErrSinkNotFound
		}
		return err
	}

	if s.cache != nil {
		_ = s.cache.DeleteCachedSink(sink.Slug)
	}

	return nil
}

// Authorize 执行摄入闸门检查：按 slug 解析 Sink 并校验 Bearer 凭证。
//
// 语义（由错误类型区分）：
//   - slug 为空            -> ErrSlugRequired
//   - slug 不存在          -> ErrSinkNotFound
//   - Sink 未开启摄入鉴权   -> 直接放行
//   - 未携带凭证           -> ErrTokenRequired
//   - 凭证哈希无匹配        -> ErrTokenInvalid
//   - 匹配成功             -> 放行并记录凭证使用时间
func (s *SinkService) Authorize(slug, token string) (*domain.Sink, error) {
	sink, err := s.GetBySlug(slug)
	if err != nil {
		return nil, err
	}

	if !sink.IsAuthEnabled {
		return sink, nil
	}

	if token == "" {
		return nil, ErrTokenRequired
	}

	key, err := s.store.GetAPIKeyByHash(sink.ID, HashAPIKey(token))
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	// 鉴权成功才更新使用时间；失败不留痕迹
	_ = s.store.UpdateAPIKeyLastUsed(key.ID)

	return sink, nil
}

// HashAPIKey 计算凭证明文的存储哈希（sha256 十六进制）。
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
