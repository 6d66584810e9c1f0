package sql

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

// ========== API Key Repository ==========

// SaveAPIKey 保存 API Key 凭证记录（只存哈希，不存明文）。
func (s *Store) SaveAPIKey(key *domain.SinkAPIKey) error {
	return s.db.Create(key).Error
}

// ListAPIKeysBySink 列出 Sink 下的全部凭证，按创建时间倒序。
func (s *Store) ListAPIKeysBySink(sinkID string) ([]*domain.SinkAPIKey, error) {
	var keys []*domain.SinkAPIKey
	err := s.db.Where("sink_id = ?", sinkID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// GetAPIKeyByHash 按 Sink 与密钥哈希查找凭证。
func (s *Store) GetAPIKeyByHash(sinkID, keyHash string) (*domain.SinkAPIKey, error) {
	var key domain.SinkAPIKey
	err := s.db.First(&key, "sink_id = ? AND key_hash = ?", sinkID, keyHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

// DeleteAPIKey 删除指定 Sink 下的凭证。
func (s *Store) DeleteAPIKey(sinkID, keyID string) error {
	result := s.db.Where("id = ? AND sink_id = ?", keyID, sinkID).Delete(&domain.SinkAPIKey{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAPIKeyNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed 记录凭证最近一次鉴权成功的时间。
func (s *Store) UpdateAPIKeyLastUsed(id string) error {
	now := time.Now().UTC()
	return s.db.Model(&domain.SinkAPIKey{}).Where("id = ?", id).
		Update("last_used_at", &now).Error
}
