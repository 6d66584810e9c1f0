package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

var (
	ErrAPIKeyNotFound  = errors.New("api key not found")
	ErrKeyNameRequired = errors.New("api key name required")
)

// APIKeyService Sink 摄入凭证业务逻辑服务。
// 凭证明文只在创建时返回一次，之后只保留 sha256 哈希。
type APIKeyService struct {
	sinks *SinkService
	store storage.Store
}

// NewAPIKeyService 创建凭证服务
func NewAPIKeyService(sinks *SinkService, store storage.Store) *APIKeyService {
	return &APIKeyService{
		sinks: sinks,
		store: store,
	}
}

// CreateAPIKeyInput 创建摄入凭证的输入参数
type CreateAPIKeyInput struct {
	SinkID string
	Name   string
}

// CreateAPIKey 为 Sink 创建新的摄入凭证。
//
// 返回值:
//   - string: 凭证明文（仅此一次，不再可取回）
//   - *domain.SinkAPIKey: 凭证记录
//   - error: 错误信息
func (s *APIKeyService) CreateAPIKey(input CreateAPIKeyInput) (string, *domain.SinkAPIKey, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", nil, ErrKeyNameRequired
	}

	sink, err := s.sinks.Get(input.SinkID)
	if err != nil {
		return "", nil, err
	}

	token, err := generateAPIKey()
	if err != nil {
		return "", nil, err
	}

	key := &domain.SinkAPIKey{
		ID:        uuid.NewString(),
		SinkID:    sink.ID,
		Name:      name,
		KeyHash:   HashAPIKey(token),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.SaveAPIKey(key); err != nil {
		return "", nil, err
	}

	return token, key, nil
}

// ListAPIKeys 列出 Sink 的全部凭证
func (s *APIKeyService) ListAPIKeys(sinkID string) ([]*domain.SinkAPIKey, error) {
	if _, err := s.sinks.Get(sinkID); err != nil {
		return nil, err
	}
	return s.store.ListAPIKeysBySink(sinkID)
}

// DeleteAPIKey 删除 Sink 的凭证
func (s *APIKeyService) DeleteAPIKey(sinkID, keyID string) error {
	if _, err := s.sinks.Get(sinkID); err != nil {
		return err
	}

	err := s.store.DeleteAPIKey(sinkID, keyID)
	if errors.Is(err, storage.ErrAPIKeyNotFound) {
		return ErrAPIKeyNotFound
	}
	return err
}

// generateAPIKey 生成一个安全的随机凭证明文（64 个十六进制字符）
func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
