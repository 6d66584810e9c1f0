package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/service"
)

// EmailHandler 处理已入库邮件的查询与删除
type EmailHandler struct {
	emails *service.EmailService
	log    *zap.Logger
}

// NewEmailHandler 创建邮件查询处理器
func NewEmailHandler(emails *service.EmailService, log *zap.Logger) *EmailHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailHandler{
		emails: emails,
		log:    log,
	}
}

type emailSummary struct {
	ID          string    `json:"id"`
	SinkID      string    `json:"sinkId"`
	Subject     string    `json:"subject"`
	FromAddress *string   `json:"fromAddress,omitempty"`
	FromName    *string   `json:"fromName,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

type emailListResponse struct {
	Items []emailSummary `json:"items"`
	Count int            `json:"count"`
}

// ListEmails 列出 Sink 下的邮件摘要，按接收时间倒序。
// 可选 limit 参数限制返回条数。
func (h *EmailHandler) ListEmails(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		limit = n
	}

	emails, err := h.emails.List(c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, service.ErrSinkNotFound) {
			NotFound(c, MsgSinkNotFound)
			return
		}
		InternalError(c, MsgEmailListFailed)
		return
	}

	items := make([]emailSummary, 0, len(emails))
	for i := range emails {
		items = append(items, toEmailSummary(&emails[i]))
	}

	Success(c, emailListResponse{Items: items, Count: len(items)})
}

// GetEmail 获取邮件详情：正文、收件人与附件元数据
func (h *EmailHandler) GetEmail(c *gin.Context) {
	detail, err := h.emails.Get(c.Param("id"), c.Param("emailId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrEmailNotFound):
			NotFound(c, MsgEmailNotFound)
		default:
			InternalError(c, MsgEmailGetFailed)
		}
		return
	}

	Success(c, detail)
}

// DeleteEmail 删除单封邮件及其收件人、附件引用
func (h *EmailHandler) DeleteEmail(c *gin.Context) {
	err := h.emails.Delete(c.Param("id"), c.Param("emailId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrEmailNotFound):
			NotFound(c, MsgEmailNotFound)
		default:
			InternalError(c, MsgEmailDeleteFailed)
		}
		return
	}

	NoContent(c)
}

// DownloadAttachment 下载附件原始字节。
// 附件必须沿 sink -> email -> attachment 的归属链可达，
// 跨 Sink 或跨邮件的访问一律 404。
func (h *EmailHandler) DownloadAttachment(c *gin.Context) {
	attachment, blob, err := h.emails.GetAttachment(
		c.Param("id"),
		c.Param("emailId"),
		c.Param("attachmentId"),
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrEmailNotFound):
			NotFound(c, MsgEmailNotFound)
		case errors.Is(err, service.ErrAttachmentNotFound):
			NotFound(c, MsgAttachmentNotFound)
		default:
			InternalError(c, MsgInternalError)
		}
		return
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// 附件下载不使用统一响应格式，直接返回二进制流。
	// 文件名用 RFC 5987 编码，兼容非 ASCII 字符。
	c.Header("Content-Disposition", fmt.Sprintf(
		"attachment; filename=%q; filename*=UTF-8''%s",
		attachment.Filename,
		url.PathEscape(attachment.Filename),
	))
	c.Header("Content-Length", strconv.FormatInt(blob.Size, 10))
	c.Data(http.StatusOK, contentType, blob.Content)
}

// toEmailSummary 转换邮件实体为列表摘要。
func toEmailSummary(email *domain.Email) emailSummary {
	return emailSummary{
		ID:          email.ID,
		SinkID:      email.SinkID,
		Subject:     email.Subject,
		FromAddress: email.FromAddress,
		FromName:    email.FromName,
		ReceivedAt:  email.ReceivedAt,
	}
}
