package sql

import (
	"errors"

	"gorm.io/gorm"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

// ========== Sink Repository ==========

// SaveSink 保存 Sink（新建或更新）。
func (s *Store) SaveSink(sink *domain.Sink) error {
	err := s.db.Save(sink).Error
	if isDuplicateKeyError(err) {
		return storage.ErrSlugExists
	}
	return err
}

// GetSink 根据 ID 获取 Sink。
func (s *Store) GetSink(id string) (*domain.Sink, error) {
	var sink domain.Sink
	err := s.db.First(&sink, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrSinkNotFound
		}
		return nil, err
	}
	return &sink, nil
}

// GetSinkBySlug 根据 slug 获取 Sink。
func (s *Store) GetSinkBySlug(slug string) (*domain.Sink, error) {
	var sink domain.Sink
	err := s.db.First(&sink, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrSinkNotFound
		}
		return nil, err
	}
	return &sink, nil
}

// ListSinks 列出全部 Sink，按创建时间倒序。
func (s *Store) ListSinks() ([]domain.Sink, error) {
	var sinks []domain.Sink
	err := s.db.Order("created_at DESC").Find(&sinks).Error
	return sinks, err
}

// DeleteSink 删除 Sink，并在同一事务内级联删除其邮件、凭证与规则。
func (s *Store) DeleteSink(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var sink domain.Sink
		if err := tx.First(&sink, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrSinkNotFound
			}
			return err
		}

		emailIDs := tx.Model(&domain.Email{}).Select("id").Where("sink_id = ?", id)

		// 先删子表，再删邮件本身
		if err := tx.Where("email_id IN (?)", emailIDs).Delete(&domain.EmailRecipient{}).Error; err != nil {
			return err
		}
		if err := tx.Where("email_id IN (?)", emailIDs).Delete(&domain.EmailAttachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("sink_id = ?", id).Delete(&domain.Email{}).Error; err != nil {
			return err
		}
		if err := tx.Where("sink_id = ?", id).Delete(&domain.SinkAPIKey{}).Error; err != nil {
			return err
		}
		if err := tx.Where("sink_id = ?", id).Delete(&domain.SinkAuthRule{}).Error; err != nil {
			return err
		}

		// Blob 不回收：失去最后一个引用的 Blob 成为孤儿，可接受
		return tx.Delete(&domain.Sink{}, "id = ?", id).Error
	})
}
