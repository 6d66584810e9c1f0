package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/mailparse"
	"github.com/brunnerh/email-sink/internal/pool"
	"github.com/brunnerh/email-sink/internal/security"
	"github.com/brunnerh/email-sink/internal/storage"
)

// 摄入通道标识，用于日志与指标。
const (
	ChannelForm = "form"
	ChannelRaw  = "raw"
	ChannelSMTP = "smtp"
)

// ValidationError 摄入请求校验失败，附带首个失败原因的描述。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErr(msg string) error { return &ValidationError{Message: msg} }

// EmailNotifier 新邮件入库后的通知接口，由 WebSocket Hub 实现。
type EmailNotifier interface {
	NotifyNewEmail(sinkID string, email *domain.Email)
}

// NotifierFunc 把普通函数适配成 EmailNotifier。
type NotifierFunc func(sinkID string, email *domain.Email)

func (f NotifierFunc) NotifyNewEmail(sinkID string, email *domain.Email) { f(sinkID, email) }

// IngestRecorder 摄入指标记录接口，由 monitoring 实现。
type IngestRecorder interface {
	RecordEmailIngested(channel string)
	RecordAttachmentSize(size int64)
}

// ListCacheInvalidator 邮件列表缓存失效接口，由 Redis 缓存实现。
type ListCacheInvalidator interface {
	DeleteCachedEmailList(sinkID string) error
}

// IngestService 邮件摄入编排服务。
// 两个通道（结构化表单、原始报文）各自归一化后，
// 汇入同一个事务写入路径，下游对通道无感知。
type IngestService struct {
	store    storage.Store
	log      *zap.Logger
	notifier EmailNotifier
	recorder IngestRecorder
	cache    ListCacheInvalidator
	policy   *security.AttachmentPolicy
	tasks    *pool.WorkerPool
}

// NewIngestService 创建摄入服务。notifier、recorder、cache 均可为 nil。
func NewIngestService(store storage.Store, log *zap.Logger) *IngestService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestService{
		store: store,
		log:   log,
	}
}

// SetNotifier 注入新邮件通知器。
func (s *IngestService) SetNotifier(n EmailNotifier) { s.notifier = n }

// SetRecorder 注入摄入指标记录器。
func (s *IngestService) SetRecorder(r IngestRecorder) { s.recorder = r }

// SetListCache 注入列表缓存失效器。
func (s *IngestService) SetListCache(c ListCacheInvalidator) { s.cache = c }

// SetAttachmentPolicy 注入附件校验策略。
func (s *IngestService) SetAttachmentPolicy(p *security.AttachmentPolicy) { s.policy = p }

// SetTaskPool 注入旁路任务池，未注入时旁路工作在请求协程内执行。
func (s *IngestService) SetTaskPool(p *pool.WorkerPool) { s.tasks = p }

// FormAttachment 表单通道上传的一个二进制附件。
type FormAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// IngestFormInput 结构化表单通道的输入。
// To/Cc/Bcc 中每个元素可以本身是逗号或分号分隔的列表。
type IngestFormInput struct {
	SinkID      string
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	MessageID   string
	ReceivedAt  string
	Headers     map[string]interface{}
	Attachments []*FormAttachment
}

// IngestForm 结构化表单通道摄入。
// 校验按固定顺序短路：发件人 -> 收件人 -> 正文 -> 时间戳；
// 任何校验失败都发生在写库之前，不产生部分数据。
func (s *IngestService) IngestForm(input IngestFormInput) (*domain.Email, error) {
	from := strings.TrimSpace(input.From)
	if from == "" {
		return nil, validationErr("from is required")
	}

	toList := mailparse.NormalizeMailboxList(input.To)
	if len(toList) == 0 {
		return nil, validationErr("at least one to recipient is required")
	}

	if input.Text == "" && input.HTML == "" {
		return nil, validationErr("text or html content is required")
	}

	receivedAt, err := parseReceivedAt(input.ReceivedAt)
	if err != nil {
		return nil, err
	}

	fromMailbox := mailparse.ParseMailbox(from)
	// 形如 "Jane < >" 的值非空但解析不出任何邮箱
	if fromMailbox == nil {
		return nil, validationErr("from is required")
	}

	// 归档原文：表单通道没有原始报文，取文本正文兜底 HTML
	rawContent := input.Text
	if rawContent == "" {
		rawContent = input.HTML
	}

	email := &domain.Email{
		ID:          uuid.NewString(),
		SinkID:      input.SinkID,
		Subject:     input.Subject,
		MessageID:   input.MessageID,
		FromAddress: emptyToNull(fromMailbox.Address),
		FromName:    emptyToNull(fromMailbox.Name),
		Headers:     domain.HeaderMap(mailparse.NormalizeHeaders(input.Headers)),
		TextContent: input.Text,
		HTMLContent: input.HTML,
		RawContent:  rawContent,
		ReceivedAt:  receivedAt,
	}

	var recipients []*domain.EmailRecipient
	recipients = appendRecipients(recipients, domain.RecipientTo, toList)
	recipients = appendRecipients(recipients, domain.RecipientCc, mailparse.NormalizeMailboxList(input.Cc))
	recipients = appendRecipients(recipients, domain.RecipientBcc, mailparse.NormalizeMailboxList(input.Bcc))

	var attachments []*domain.IncomingAttachment
	for _, fa := range input.Attachments {
		if err := s.checkAttachment(input.SinkID, fa.Filename, fa.Content); err != nil {
			return nil, err
		}
		attachments = append(attachments, &domain.IncomingAttachment{
			Filename:    fa.Filename,
			ContentType: fa.ContentType,
			Disposition: "attachment",
			Size:        int64(len(fa.Content)),
			SHA256:      hashContent(fa.Content),
			Content:     fa.Content,
		})
	}

	if err := s.persist(email, recipients, attachments, ChannelForm); err != nil {
		return nil, err
	}

	return email, nil
}

// IngestRaw 原始报文通道摄入。
// 结构解析交给 MIME 解析器；归档副本先经过附件体剥离，
// 保留头部与边界结构的每一个字节。空收件人集合是合法的。
func (s *IngestService) IngestRaw(sinkID string, raw []byte) (*domain.Email, error) {
	return s.ingestRaw(sinkID, raw, ChannelRaw)
}

// IngestSMTP SMTP 通道摄入，行为与原始报文通道一致，只是指标与日志按通道区分。
func (s *IngestService) IngestSMTP(sinkID string, raw []byte) (*domain.Email, error) {
	return s.ingestRaw(sinkID, raw, ChannelSMTP)
}

func (s *IngestService) ingestRaw(sinkID string, raw []byte, channel string) (*domain.Email, error) {
	if len(raw) == 0 {
		return nil, validationErr("raw message body is required")
	}

	parsed, err := mailparse.ParseMessage(raw)
	if err != nil {
		return nil, validationErr("failed to parse raw message: " + err.Error())
	}

	redacted := mailparse.RedactAttachmentBodies(string(raw))

	email := &domain.Email{
		ID:          uuid.NewString(),
		SinkID:      sinkID,
		Subject:     parsed.Subject,
		MessageID:   parsed.MessageID,
		TextContent: parsed.Text,
		HTMLContent: parsed.HTML,
		RawContent:  redacted,
		ReceivedAt:  rawReceivedAt(parsed),
	}
	if parsed.From != nil {
		email.FromAddress = emptyToNull(parsed.From.Address)
		email.FromName = emptyToNull(parsed.From.Name)
	}
	if len(parsed.Headers) > 0 {
		email.Headers = domain.HeaderMap(parsed.Headers)
	}

	var recipients []*domain.EmailRecipient
	recipients = appendRecipients(recipients, domain.RecipientTo, parsed.To)
	recipients = appendRecipients(recipients, domain.RecipientCc, parsed.Cc)
	recipients = appendRecipients(recipients, domain.RecipientBcc, parsed.Bcc)

	var attachments []*domain.IncomingAttachment
	for _, att := range parsed.Attachments {
		if err := s.checkAttachment(sinkID, att.Filename, att.Content); err != nil {
			return nil, err
		}
		attachments = append(attachments, &domain.IncomingAttachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			ContentID:   att.ContentID,
			Disposition: att.Disposition,
			Size:        int64(len(att.Content)),
			SHA256:      hashContent(att.Content),
			Content:     att.Content,
		})
	}

	if err := s.persist(email, recipients, attachments, channel); err != nil {
		return nil, err
	}

	return email, nil
}

// persist 通道无关的共享写入路径：一个事务落三张表，
// 成功后做通知、指标与缓存失效（均为尽力而为，不影响结果）。
func (s *IngestService) persist(email *domain.Email, recipients []*domain.EmailRecipient, attachments []*domain.IncomingAttachment, channel string) error {
	if err := s.store.CreateEmail(email, recipients, attachments); err != nil {
		s.log.Error("failed to persist email",
			zap.String("sink_id", email.SinkID),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("email ingested",
		zap.String("sink_id", email.SinkID),
		zap.String("email_id", email.ID),
		zap.String("channel", channel),
		zap.Int("recipients", len(recipients)),
		zap.Int("attachments", len(attachments)),
	)

	if s.recorder != nil {
		s.recorder.RecordEmailIngested(channel)
		for _, att := range attachments {
			s.recorder.RecordAttachmentSize(att.Size)
		}
	}

	// 缓存失效与通知移出请求路径；任务池未注入或已满时就地执行
	sideEffects := func() {
		if s.cache != nil {
			_ = s.cache.DeleteCachedEmailList(email.SinkID)
		}
		if s.notifier != nil {
			s.notifier.NotifyNewEmail(email.SinkID, email)
		}
	}
	if s.tasks == nil || !s.tasks.TrySubmit(sideEffects) {
		sideEffects()
	}

	return nil
}

// checkAttachment 按策略校验单个附件。超限拒收；可执行内容只记警告，
// 入库字节保持原样。
func (s *IngestService) checkAttachment(sinkID, filename string, content []byte) error {
	if s.policy == nil {
		return nil
	}
	if err := s.policy.CheckSize(filename, int64(len(content))); err != nil {
		return validationErr(err.Error())
	}
	if s.policy.IsExecutable(filename, content) {
		s.log.Warn("executable attachment ingested",
			zap.String("sink_id", sinkID),
			zap.String("filename", filename),
		)
	}
	return nil
}

// appendRecipients 把解析出的邮箱列表转成收件人记录。空地址存 null。
func appendRecipients(dst []*domain.EmailRecipient, typ domain.RecipientType, list []mailparse.Mailbox) []*domain.EmailRecipient {
	for _, mb := range list {
		dst = append(dst, &domain.EmailRecipient{
			ID:      uuid.NewString(),
			Type:    typ,
			Address: emptyToNull(mb.Address),
			Name:    emptyToNull(mb.Name),
			Raw:     mb.Raw,
		})
	}
	return dst
}

// receivedAtLayouts 表单通道接受的时间戳格式，按顺序尝试。
var receivedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// parseReceivedAt 解析表单提交的时间戳；缺省用当前时间。
func parseReceivedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range receivedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, validationErr("receivedAt is not a valid timestamp")
}

// rawReceivedAt 原始通道优先用报文 Date 头，解析失败用当前时间。
func rawReceivedAt(parsed *mailparse.ParsedMessage) time.Time {
	if date, ok := parsed.Headers["Date"]; ok {
		if t, err := mail.ParseDate(date); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// hashContent 计算附件内容的 sha256 十六进制摘要。
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// emptyToNull 空字符串转 nil 指针。
func emptyToNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
