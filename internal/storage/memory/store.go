package memory

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

// Store 使用内存保存 Sink 与邮件数据，主要用于开发验证和测试。
// CreateEmail 模拟事务语义：先在临时结构中组装，全部成功后一次性提交。
type Store struct {
	mu         sync.RWMutex
	sinks      map[string]*domain.Sink
	bySlug     map[string]string // slug -> sinkID
	emails     map[string]*domain.Email
	recipients map[string][]*domain.EmailRecipient // emailID -> recipients
	atts       map[string]*domain.EmailAttachment  // attachmentID -> attachment
	attsByMail map[string][]string                 // emailID -> attachmentIDs
	blobs      map[string]*domain.AttachmentBlob   // blobID -> blob
	blobBySHA  map[string]string                   // sha256 -> blobID
	apiKeys    map[string]*domain.SinkAPIKey
	authRules  map[string]*domain.SinkAuthRule
	users      map[string]*domain.User
	byEmail    map[string]string // user email -> userID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		sinks:      make(map[string]*domain.Sink),
		bySlug:     make(map[string]string),
		emails:     make(map[string]*domain.Email),
		recipients: make(map[string][]*domain.EmailRecipient),
		atts:       make(map[string]*domain.EmailAttachment),
		attsByMail: make(map[string][]string),
		blobs:      make(map[string]*domain.AttachmentBlob),
		blobBySHA:  make(map[string]string),
		apiKeys:    make(map[string]*domain.SinkAPIKey),
		authRules:  make(map[string]*domain.SinkAuthRule),
		users:      make(map[string]*domain.User),
		byEmail:    make(map[string]string),
	}
}

// ========== Sink Repository ==========

// SaveSink 保存 Sink（新建或更新）。
func (s *Store) SaveSink(sink *domain.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.bySlug[sink.Slug]; ok && existingID != sink.ID {
		return storage.ErrSlugExists
	}

	// slug 变更时移除旧索引
	if old, ok := s.sinks[sink.ID]; ok && old.Slug != sink.Slug {
		delete(s.bySlug, old.Slug)
	}

	copied := *sink
	s.sinks[sink.ID] = &copied
	s.bySlug[sink.Slug] = sink.ID
	return nil
}

// GetSink 根据 ID 获取 Sink。
func (s *Store) GetSink(id string) (*domain.Sink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sink, ok := s.sinks[id]
	if !ok {
		return nil, storage.ErrSinkNotFound
	}
	copied := *sink
	return &copied, nil
}

// GetSinkBySlug 根据 slug 获取 Sink。
func (s *Store) GetSinkBySlug(slug string) (*domain.Sink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, storage.ErrSinkNotFound
	}
	copied := *s.sinks[id]
	return &copied, nil
}

// ListSinks 列出全部 Sink，按创建时间倒序。
func (s *Store) ListSinks() ([]domain.Sink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		out = append(out, *sink)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteSink 删除 Sink 并级联删除其邮件、凭证与规则。
func (s *Store) DeleteSink(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sink, ok := s.sinks[id]
	if !ok {
		return storage.ErrSinkNotFound
	}

	for emailID, email := range s.emails {
		if email.SinkID == id {
			s.deleteEmailLocked(emailID)
		}
	}
	for keyID, key := range s.apiKeys {
		if key.SinkID == id {
			delete(s.apiKeys, keyID)
		}
	}
	for ruleID, rule := range s.authRules {
		if rule.SinkID == id {
			delete(s.authRules, ruleID)
		}
	}

	delete(s.bySlug, sink.Slug)
	delete(s.sinks, id)
	return nil
}

// ========== Email Repository ==========

// CreateEmail 原子地写入邮件聚合。
// 附件按 sha256 去重；任何一步失败都不会留下部分数据。
func (s *Store) CreateEmail(email *domain.Email, recipients []*domain.EmailRecipient, attachments []*domain.IncomingAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sinks[email.SinkID]; !ok {
		return storage.ErrSinkNotFound
	}

	// 事务暂存区：组装成功后才提交到主存储
	newBlobs := make(map[string]*domain.AttachmentBlob)
	newAttachments := make([]*domain.EmailAttachment, 0, len(attachments))

	for _, incoming := range attachments {
		if incoming.SHA256 == "" {
			return errors.New("attachment content hash is required")
		}

		blobID, ok := s.blobBySHA[incoming.SHA256]
		if !ok {
			// 同一封邮件内的重复附件也只建一个 Blob
			if staged, stagedOK := findStagedBlob(newBlobs, incoming.SHA256); stagedOK {
				blobID = staged
			} else {
				blob := &domain.AttachmentBlob{
					ID:        uuid.NewString(),
					SHA256:    incoming.SHA256,
					Size:      incoming.Size,
					Content:   append([]byte(nil), incoming.Content...),
					CreatedAt: time.Now().UTC(),
				}
				newBlobs[blob.ID] = blob
				blobID = blob.ID
			}
		}

		newAttachments = append(newAttachments, &domain.EmailAttachment{
			ID:          uuid.NewString(),
			EmailID:     email.ID,
			BlobID:      blobID,
			Filename:    incoming.Filename,
			ContentType: incoming.ContentType,
			ContentID:   incoming.ContentID,
			Disposition: incoming.Disposition,
			Size:        incoming.Size,
		})
	}

	// 提交
	copied := *email
	s.emails[email.ID] = &copied

	rcpts := make([]*domain.EmailRecipient, 0, len(recipients))
	for _, r := range recipients {
		rc := *r
		rc.EmailID = email.ID
		rcpts = append(rcpts, &rc)
	}
	s.recipients[email.ID] = rcpts

	for id, blob := range newBlobs {
		s.blobs[id] = blob
		s.blobBySHA[blob.SHA256] = id
	}
	for _, att := range newAttachments {
		s.atts[att.ID] = att
		s.attsByMail[email.ID] = append(s.attsByMail[email.ID], att.ID)
	}

	return nil
}

// findStagedBlob 在暂存区中按哈希查找 Blob。
func findStagedBlob(staged map[string]*domain.AttachmentBlob, sha256 string) (string, bool) {
	for id, blob := range staged {
		if blob.SHA256 == sha256 {
			return id, true
		}
	}
	return "", false
}

// ListEmails 列出 Sink 下的邮件，按接收时间倒序。
func (s *Store) ListEmails(sinkID string, limit int) ([]domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Email, 0)
	for _, email := range s.emails {
		if email.SinkID == sinkID {
			out = append(out, *email)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetEmail 获取指定 Sink 下的单封邮件。
func (s *Store) GetEmail(sinkID, emailID string) (*domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.emails[emailID]
	if !ok || email.SinkID != sinkID {
		return nil, storage.ErrEmailNotFound
	}
	copied := *email
	return &copied, nil
}

// DeleteEmail 删除指定 Sink 下的单封邮件及其关联数据。
func (s *Store) DeleteEmail(sinkID, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.emails[emailID]
	if !ok || email.SinkID != sinkID {
		return storage.ErrEmailNotFound
	}
	s.deleteEmailLocked(emailID)
	return nil
}

// deleteEmailLocked 删除邮件的收件人与附件记录。
// Blob 不回收：最后一个引用消失后成为孤儿是可接受的（不做 GC）。
func (s *Store) deleteEmailLocked(emailID string) {
	delete(s.emails, emailID)
	delete(s.recipients, emailID)
	for _, attID := range s.attsByMail[emailID] {
		delete(s.atts, attID)
	}
	delete(s.attsByMail, emailID)
}

// ListRecipients 列出邮件的收件人。
func (s *Store) ListRecipients(emailID string) ([]domain.EmailRecipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.EmailRecipient, 0, len(s.recipients[emailID]))
	for _, r := range s.recipients[emailID] {
		out = append(out, *r)
	}
	return out, nil
}

// ListAttachments 列出邮件的附件记录（不含 Blob 内容）。
func (s *Store) ListAttachments(emailID string) ([]domain.EmailAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.attsByMail[emailID]
	out := make([]domain.EmailAttachment, 0, len(ids))
	for _, id := range ids {
		if att, ok := s.atts[id]; ok {
			out = append(out, *att)
		}
	}
	return out, nil
}

// GetAttachmentWithBlob 返回附件记录及其引用的 Blob。
func (s *Store) GetAttachmentWithBlob(attachmentID string) (*domain.EmailAttachment, *domain.AttachmentBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.atts[attachmentID]
	if !ok {
		return nil, nil, storage.ErrAttachmentNotFound
	}
	blob, ok := s.blobs[att.BlobID]
	if !ok {
		return nil, nil, storage.ErrAttachmentNotFound
	}

	attCopy := *att
	blobCopy := *blob
	return &attCopy, &blobCopy, nil
}

// CountBlobs 返回去重后的 Blob 行数。
func (s *Store) CountBlobs() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.blobs)), nil
}

// ========== API Key Repository ==========

// SaveAPIKey 保存 API Key。
func (s *Store) SaveAPIKey(key *domain.SinkAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sinks[key.SinkID]; !ok {
		return storage.ErrSinkNotFound
	}
	copied := *key
	s.apiKeys[key.ID] = &copied
	return nil
}

// ListAPIKeysBySink 列出 Sink 下的全部 API Key。
func (s *Store) ListAPIKeysBySink(sinkID string) ([]*domain.SinkAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SinkAPIKey, 0)
	for _, key := range s.apiKeys {
		if key.SinkID == sinkID {
			copied := *key
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetAPIKeyByHash 按 Sink 与密钥哈希查找凭证。
func (s *Store) GetAPIKeyByHash(sinkID, keyHash string) (*domain.SinkAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.apiKeys {
		if key.SinkID == sinkID && key.KeyHash == keyHash {
			copied := *key
			return &copied, nil
		}
	}
	return nil, storage.ErrAPIKeyNotFound
}

// DeleteAPIKey 删除 Sink 下的指定 API Key。
func (s *Store) DeleteAPIKey(sinkID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[keyID]
	if !ok || key.SinkID != sinkID {
		return storage.ErrAPIKeyNotFound
	}
	delete(s.apiKeys, keyID)
	return nil
}

// UpdateAPIKeyLastUsed 更新凭证最后使用时间。
func (s *Store) UpdateAPIKeyLastUsed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	now := time.Now().UTC()
	key.LastUsedAt = &now
	return nil
}

// ========== Auth Rule Repository ==========

// SaveAuthRule 保存授权规则。
func (s *Store) SaveAuthRule(rule *domain.SinkAuthRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sinks[rule.SinkID]; !ok {
		return storage.ErrSinkNotFound
	}
	copied := *rule
	s.authRules[rule.ID] = &copied
	return nil
}

// ListAuthRulesBySink 列出 Sink 下的授权规则。
func (s *Store) ListAuthRulesBySink(sinkID string) ([]*domain.SinkAuthRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SinkAuthRule, 0)
	for _, rule := range s.authRules {
		if rule.SinkID == sinkID {
			copied := *rule
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteAuthRule 删除 Sink 下的指定授权规则。
func (s *Store) DeleteAuthRule(sinkID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.authRules[ruleID]
	if !ok || rule.SinkID != sinkID {
		return storage.ErrAuthRuleNotFound
	}
	delete(s.authRules, ruleID)
	return nil
}

// ========== User Repository ==========

// CreateUser 创建管理端用户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return storage.ErrUserEmailExists
	}
	copied := *user
	s.users[user.ID] = &copied
	s.byEmail[key] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail 根据邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

// UpdateLastLogin 更新用户最后登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

// Health 内存存储恒为健康。
func (s *Store) Health() error { return nil }

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }
