package smtp

import (
	"errors"
	"io"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/service"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：收件人地址的本地部分必须是
// 已存在的 Sink slug，域名部分必须是本服务配置的域名。
// 其他地址一律 550 拒绝，服务器绝不做邮件中继。
// 启用了访问密钥的 Sink 无法通过 SMTP 提交令牌，同样 550 拒绝。
type Backend struct {
	sinks   *service.SinkService
	ingest  *service.IngestService
	domain  string
	maxSize int64
	log     *zap.Logger
}

// NewBackend 创建 SMTP Backend。domain 为空时不校验收件人域名。
func NewBackend(sinks *service.SinkService, ingest *service.IngestService, domain string, maxSize int64, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &Backend{
		sinks:   sinks,
		ingest:  ingest,
		domain:  strings.ToLower(domain),
		maxSize: maxSize,
		log:     log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{
		backend: b,
	}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	sinks       []*domain.Sink
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。收件人本地部分按 Sink slug 解析，
// 未知 slug 与启用鉴权的 Sink 都在这里被拒绝，不进入 DATA 阶段。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 || parts[0] == "" {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	slug, recipientDomain := parts[0], parts[1]

	// 域名不归本服务管理，拒绝接收
	if s.backend.domain != "" && recipientDomain != s.backend.domain {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	sink, err := s.backend.sinks.GetBySlug(slug)
	if err != nil {
		if errors.Is(err, service.ErrSinkNotFound) || errors.Is(err, service.ErrSlugRequired) {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient sink not found",
			}
		}
		s.backend.log.Error("smtp sink lookup failed",
			zap.String("slug", slug),
			zap.Error(err),
		)
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary lookup failure",
		}
	}

	// SMTP 无法携带访问密钥，启用鉴权的 Sink 不开放此通道
	if sink.IsAuthEnabled {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "sink requires an access token",
		}
	}

	s.sinks = append(s.sinks, sink)
	return nil
}

// Data 处理邮件内容，逐个收件 Sink 走原始报文摄入。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxSize))
	if err != nil {
		return err
	}

	for _, sink := range s.sinks {
		if _, err := s.backend.ingest.IngestSMTP(sink.ID, rawBytes); err != nil {
			var verr *service.ValidationError
			if errors.As(err, &verr) {
				return &gosmtp.SMTPError{
					Code:         554,
					EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
					Message:      verr.Message,
				}
			}
			s.backend.log.Error("smtp ingestion failed",
				zap.String("sink_id", sink.ID),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "temporary processing failure",
			}
		}
	}

	return nil
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.sinks = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
