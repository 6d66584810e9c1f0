package sql

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

// ========== Email Repository ==========

// CreateEmail 在单个事务内写入邮件、收件人与附件。
// 附件内容按 sha256 在事务内查重；并发插入相同内容时依赖
// attachment_blob.sha256 的唯一约束，冲突后回滚到保存点并重查获胜行。
// 事务内任何失败都会回滚整条消息。
func (s *Store) CreateEmail(email *domain.Email, recipients []*domain.EmailRecipient, attachments []*domain.IncomingAttachment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(email).Error; err != nil {
			return err
		}

		for _, r := range recipients {
			r.EmailID = email.ID
		}
		if len(recipients) > 0 {
			if err := tx.Create(&recipients).Error; err != nil {
				return err
			}
		}

		for _, incoming := range attachments {
			blobID, err := lookupOrCreateBlob(tx, incoming)
			if err != nil {
				return err
			}

			att := &domain.EmailAttachment{
				ID:          uuid.NewString(),
				EmailID:     email.ID,
				BlobID:      blobID,
				Filename:    incoming.Filename,
				ContentType: incoming.ContentType,
				ContentID:   incoming.ContentID,
				Disposition: incoming.Disposition,
				Size:        incoming.Size,
			}
			if err := tx.Create(att).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// lookupOrCreateBlob 按内容哈希查找或创建 Blob，返回其 ID。
// 插入走保存点：PostgreSQL 在唯一冲突后会中止整个事务，
// 回滚到保存点后才能继续重查。
func lookupOrCreateBlob(tx *gorm.DB, incoming *domain.IncomingAttachment) (string, error) {
	if incoming.SHA256 == "" {
		return "", errors.New("attachment content hash is required")
	}

	var existing domain.AttachmentBlob
	err := tx.Select("id").Where("sha256 = ?", incoming.SHA256).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	blob := domain.AttachmentBlob{
		ID:        uuid.NewString(),
		SHA256:    incoming.SHA256,
		Size:      incoming.Size,
		Content:   incoming.Content,
		CreatedAt: time.Now().UTC(),
	}

	tx.SavePoint("blob_insert")
	if err := tx.Create(&blob).Error; err != nil {
		if !isDuplicateKeyError(err) {
			return "", err
		}

		// 并发事务抢先插入了相同哈希：采用获胜者
		if err := tx.RollbackTo("blob_insert").Error; err != nil {
			return "", err
		}
		if err := tx.Select("id").Where("sha256 = ?", incoming.SHA256).First(&existing).Error; err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	return blob.ID, nil
}

// ListEmails 列出 Sink 下的邮件，按接收时间倒序。limit <= 0 表示不限制。
func (s *Store) ListEmails(sinkID string, limit int) ([]domain.Email, error) {
	query := s.db.Where("sink_id = ?", sinkID).Order("received_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var emails []domain.Email
	err := query.Find(&emails).Error
	return emails, err
}

// GetEmail 获取指定 Sink 下的单封邮件。
func (s *Store) GetEmail(sinkID, emailID string) (*domain.Email, error) {
	var email domain.Email
	err := s.db.First(&email, "id = ? AND sink_id = ?", emailID, sinkID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailNotFound
		}
		return nil, err
	}
	return &email, nil
}

// DeleteEmail 删除指定 Sink 下的单封邮件及其收件人与附件记录。
func (s *Store) DeleteEmail(sinkID, emailID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var email domain.Email
		if err := tx.First(&email, "id = ? AND sink_id = ?", emailID, sinkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrEmailNotFound
			}
			return err
		}

		if err := tx.Where("email_id = ?", emailID).Delete(&domain.EmailRecipient{}).Error; err != nil {
			return err
		}
		if err := tx.Where("email_id = ?", emailID).Delete(&domain.EmailAttachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Email{}, "id = ?", emailID).Error
	})
}

// ListRecipients 列出邮件的收件人。
func (s *Store) ListRecipients(emailID string) ([]domain.EmailRecipient, error) {
	var recipients []domain.EmailRecipient
	err := s.db.Where("email_id = ?", emailID).Find(&recipients).Error
	return recipients, err
}

// ListAttachments 列出邮件的附件记录（不含 Blob 内容）。
func (s *Store) ListAttachments(emailID string) ([]domain.EmailAttachment, error) {
	var attachments []domain.EmailAttachment
	err := s.db.Where("email_id = ?", emailID).Find(&attachments).Error
	return attachments, err
}

// GetAttachmentWithBlob 返回附件记录及其引用的 Blob 内容。
func (s *Store) GetAttachmentWithBlob(attachmentID string) (*domain.EmailAttachment, *domain.AttachmentBlob, error) {
	var att domain.EmailAttachment
	err := s.db.First(&att, "id = ?", attachmentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, storage.ErrAttachmentNotFound
		}
		return nil, nil, err
	}

	var blob domain.AttachmentBlob
	err = s.db.First(&blob, "id = ?", att.BlobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, storage.ErrAttachmentNotFound
		}
		return nil, nil, err
	}

	return &att, &blob, nil
}

// CountBlobs 返回去重后的 Blob 行数。
func (s *Store) CountBlobs() (int64, error) {
	var count int64
	err := s.db.Model(&domain.AttachmentBlob{}).Count(&count).Error
	return count, err
}
