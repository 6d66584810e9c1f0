package httptransport

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/middleware"
	"github.com/brunnerh/email-sink/internal/service"
)

// headerFieldPrefix 表单通道自定义头字段的命名前缀，
// 形如 headers.X-Custom-Id 的字段会被收集为邮件头。
const headerFieldPrefix = "headers."

// IngestHandler 处理两个摄入通道的 HTTP 请求
type IngestHandler struct {
	ingest *service.IngestService
	log    *zap.Logger
}

// NewIngestHandler 创建摄入处理器
func NewIngestHandler(ingest *service.IngestService, log *zap.Logger) *IngestHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestHandler{
		ingest: ingest,
		log:    log,
	}
}

type ingestJSONRequest struct {
	From        string                 `json:"from"`
	To          []string               `json:"to"`
	Cc          []string               `json:"cc"`
	Bcc         []string               `json:"bcc"`
	Subject     string                 `json:"subject"`
	Text        string                 `json:"text"`
	HTML        string                 `json:"html"`
	MessageID   string                 `json:"messageId"`
	ReceivedAt  string                 `json:"receivedAt"`
	Headers     map[string]interface{} `json:"headers"`
}

type ingestResponse struct {
	EmailID    string    `json:"emailId"`
	SinkID     string    `json:"sinkId"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// IngestForm 结构化表单通道。
// 支持 multipart/form-data、application/x-www-form-urlencoded
// 和 application/json 三种载荷；附件只能通过 multipart 上传。
func (h *IngestHandler) IngestForm(c *gin.Context) {
	sink, ok := middleware.SinkFromContext(c)
	if !ok {
		return
	}

	input := service.IngestFormInput{SinkID: sink.ID}

	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req ingestJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		input.From = req.From
		input.To = req.To
		input.Cc = req.Cc
		input.Bcc = req.Bcc
		input.Subject = req.Subject
		input.Text = req.Text
		input.HTML = req.HTML
		input.MessageID = req.MessageID
		input.ReceivedAt = req.ReceivedAt
		input.Headers = req.Headers
	} else {
		if err := h.bindForm(c, &input); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	email, err := h.ingest.IngestForm(input)
	if err != nil {
		h.writeIngestError(c, sink.Slug, err)
		return
	}

	Created(c, ingestResponse{
		EmailID:    email.ID,
		SinkID:     email.SinkID,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
	})
}

// bindForm 从表单字段装配摄入输入，兼容 urlencoded 与 multipart。
func (h *IngestHandler) bindForm(c *gin.Context, input *service.IngestFormInput) error {
	input.From = c.PostForm("from")
	input.To = c.PostFormArray("to")
	input.Cc = c.PostFormArray("cc")
	input.Bcc = c.PostFormArray("bcc")
	input.Subject = c.PostForm("subject")
	input.Text = c.PostForm("text")
	input.HTML = c.PostForm("html")
	input.MessageID = c.PostForm("messageId")
	input.ReceivedAt = c.PostForm("receivedAt")

	// 收集 headers.<name> 形式的自定义头
	if c.Request.PostForm != nil {
		input.Headers = collectHeaderFields(c.Request.PostForm)
	}

	// multipart 才有附件
	form, err := c.MultipartForm()
	if err != nil {
		// 非 multipart 请求没有附件，不算错误
		return nil
	}

	if input.Headers == nil {
		input.Headers = collectHeaderFields(form.Value)
	}

	for _, fh := range form.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}

		input.Attachments = append(input.Attachments, &service.FormAttachment{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}

	return nil
}

// collectHeaderFields 从表单键值中提取 headers.* 字段
func collectHeaderFields(values map[string][]string) map[string]interface{} {
	var headers map[string]interface{}
	for key, vals := range values {
		if !strings.HasPrefix(key, headerFieldPrefix) || len(vals) == 0 {
			continue
		}
		name := strings.TrimPrefix(key, headerFieldPrefix)
		if name == "" {
			continue
		}
		if headers == nil {
			headers = make(map[string]interface{})
		}
		headers[name] = vals[0]
	}
	return headers
}

// IngestRaw 原始报文通道，请求体就是完整的 RFC 5322 报文。
func (h *IngestHandler) IngestRaw(c *gin.Context) {
	sink, ok := middleware.SinkFromContext(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		BadRequest(c, MsgRequestBodyEmpty)
		return
	}

	email, err := h.ingest.IngestRaw(sink.ID, raw)
	if err != nil {
		h.writeIngestError(c, sink.Slug, err)
		return
	}

	Created(c, ingestResponse{
		EmailID:    email.ID,
		SinkID:     email.SinkID,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
	})
}

// writeIngestError 摄入错误统一出口：校验错误返回 400 并回显原因，
// 其余一律 500，不向调用方泄露内部细节。
func (h *IngestHandler) writeIngestError(c *gin.Context, slug string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		BadRequest(c, verr.Message)
		return
	}

	h.log.Error("ingest failed",
		zap.String("slug", slug),
		zap.Error(err),
	)
	InternalError(c, MsgIngestFailed)
}
