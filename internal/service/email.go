package service

import (
	"errors"
	"time"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

var (
	ErrEmailNotFound      = errors.New("email not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// EmailCache 邮件列表缓存接口，由 Redis 实现，可为 nil。
type EmailCache interface {
	CacheEmailList(sinkID string, emails []domain.Email, ttl time.Duration) error
	GetCachedEmailList(sinkID string) ([]domain.Email, error)
	DeleteCachedEmailList(sinkID string) error
}

// EmailService 邮件查询与删除服务。邮件入库后只读，仅支持删除。
type EmailService struct {
	store    storage.Store
	cache    EmailCache
	cacheTTL time.Duration
}

// NewEmailService 创建邮件服务。cache 可为 nil 表示不启用缓存。
func NewEmailService(store storage.Store, cache EmailCache) *EmailService {
	return &EmailService{
		store:    store,
		cache:    cache,
		cacheTTL: 30 * time.Second,
	}
}

// EmailDetail 邮件详情聚合：邮件本体、收件人与附件元数据。
type EmailDetail struct {
	Email       *domain.Email            `json:"email"`
	Recipients  []domain.EmailRecipient  `json:"recipients"`
	Attachments []domain.EmailAttachment `json:"attachments"`
}

// List 列出 Sink 下的邮件，按接收时间倒序。
// 只有不限量的全量查询才走缓存，带 limit 的查询直接打库。
func (s *EmailService) List(sinkID string, limit int) ([]domain.Email, error) {
	if s.cache != nil && limit <= 0 {
		if emails, err := s.cache.GetCachedEmailList(sinkID); err == nil {
			return emails, nil
		}
	}

	emails, err := s.store.ListEmails(sinkID, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && limit <= 0 {
		_ = s.cache.CacheEmailList(sinkID, emails, s.cacheTTL)
	}

	return emails, nil
}

// Get 获取邮件详情，包含收件人与附件元数据。
// emailID 不属于该 Sink 时与不存在同样返回 ErrEmailNotFound。
func (s *EmailService) Get(sinkID, emailID string) (*EmailDetail, error) {
	email, err := s.store.GetEmail(sinkID, emailID)
	if err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	recipients, err := s.store.ListRecipients(emailID)
	if err != nil {
		return nil, err
	}

	attachments, err := s.store.ListAttachments(emailID)
	if err != nil {
		return nil, err
	}

	return &EmailDetail{
		Email:       email,
		Recipients:  recipients,
		Attachments: attachments,
	}, nil
}

// Delete 删除邮件及其收件人与附件记录。Blob 不回收。
func (s *EmailService) Delete(sinkID, emailID string) error {
	err := s.store.DeleteEmail(sinkID, emailID)
	if err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	if s.cache != nil {
		_ = s.cache.DeleteCachedEmailList(sinkID)
	}

	return nil
}

// GetAttachment 获取附件内容，校验附件归属链：附件 -> 邮件 -> Sink。
// 任何一环不匹配都返回 ErrAttachmentNotFound，不区分"不存在"与"不属于"。
func (s *EmailService) GetAttachment(sinkID, emailID, attachmentID string) (*domain.EmailAttachment, *domain.AttachmentBlob, error) {
	if _, err := s.store.GetEmail(sinkID, emailID); err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			return nil, nil, ErrAttachmentNotFound
		}
		return nil, nil, err
	}

	att, blob, err := s.store.GetAttachmentWithBlob(attachmentID)
	if err != nil {
		if errors.Is(err, storage.ErrAttachmentNotFound) {
			return nil, nil, ErrAttachmentNotFound
		}
		return nil, nil, err
	}

	if att.EmailID != emailID {
		return nil, nil, ErrAttachmentNotFound
	}

	return att, blob, nil
}
