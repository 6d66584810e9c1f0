package storage

import (
	"errors"

	"github.com/brunnerh/email-sink/internal/domain"
)

var (
	ErrSinkNotFound       = errors.New("sink not found")
	ErrSlugExists         = errors.New("sink slug already exists")
	ErrEmailNotFound      = errors.New("email not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrAPIKeyNotFound     = errors.New("api key not found")
	ErrAuthRuleNotFound   = errors.New("auth rule not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserEmailExists    = errors.New("user email already exists")
)

// SinkRepository Sink 存储接口。
type SinkRepository interface {
	SaveSink(sink *domain.Sink) error
	GetSink(id string) (*domain.Sink, error)
	GetSinkBySlug(slug string) (*domain.Sink, error)
	ListSinks() ([]domain.Sink, error)
	// DeleteSink 级联删除该 Sink 下的全部邮件数据。
	DeleteSink(id string) error
}

// EmailRepository 邮件聚合存储接口。
type EmailRepository interface {
	// CreateEmail 在单个事务内写入邮件、全部收件人和全部附件。
	// 附件按内容哈希去重：相同 sha256 只保留一个 Blob，
	// 并发插入相同哈希时由存储层唯一约束兜底并重查。
	// 任何一步失败都会回滚整条消息，不留部分数据。
	CreateEmail(email *domain.Email, recipients []*domain.EmailRecipient, attachments []*domain.IncomingAttachment) error

	ListEmails(sinkID string, limit int) ([]domain.Email, error)
	GetEmail(sinkID, emailID string) (*domain.Email, error)
	DeleteEmail(sinkID, emailID string) error
	ListRecipients(emailID string) ([]domain.EmailRecipient, error)
	ListAttachments(emailID string) ([]domain.EmailAttachment, error)
	// GetAttachmentWithBlob 返回附件记录及其引用的 Blob 内容。
	GetAttachmentWithBlob(attachmentID string) (*domain.EmailAttachment, *domain.AttachmentBlob, error)
	// CountBlobs 返回去重后的 Blob 行数（用于监控与测试）。
	CountBlobs() (int64, error)
}

// APIKeyRepository Sink API Key 存储接口。
type APIKeyRepository interface {
	SaveAPIKey(key *domain.SinkAPIKey) error
	ListAPIKeysBySink(sinkID string) ([]*domain.SinkAPIKey, error)
	// GetAPIKeyByHash 按 Sink 与密钥哈希查找凭证。
	GetAPIKeyByHash(sinkID, keyHash string) (*domain.SinkAPIKey, error)
	DeleteAPIKey(sinkID, keyID string) error
	UpdateAPIKeyLastUsed(id string) error
}

// AuthRuleRepository 发件人授权规则存储接口。
type AuthRuleRepository interface {
	SaveAuthRule(rule *domain.SinkAuthRule) error
	ListAuthRulesBySink(sinkID string) ([]*domain.SinkAuthRule, error)
	DeleteAuthRule(sinkID, ruleID string) error
}

// UserRepository 管理端用户存储接口。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateLastLogin(userID string) error
}

// Store 聚合所有存储接口。
type Store interface {
	SinkRepository
	EmailRepository
	APIKeyRepository
	AuthRuleRepository
	UserRepository

	Health() error
	Close() error
}
