package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/security"
	"github.com/brunnerh/email-sink/internal/storage/memory"
)

func newIngestFixture(t *testing.T) (*IngestService, *SinkService, *domain.Sink) {
	t.Helper()
	store := memory.NewStore()
	sinks := NewSinkService(store, nil)
	sink, err := sinks.Create(CreateSinkInput{Name: "QA Inbox", Slug: "qa-inbox"})
	assert.NoError(t, err)
	return NewIngestService(store, nil), sinks, sink
}

func TestIngestForm_Validation(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)

	t.Run("缺少发件人被拒绝", func(t *testing.T) {
		_, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			To:     []string{"a@example.com"},
			Text:   "hello",
		})
		assert.Error(t, err)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, "from is required", verr.Message)
	})

	t.Run("缺少收件人被拒绝", func(t *testing.T) {
		_, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			From:   "sender@example.com",
			Text:   "hello",
		})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, "at least one to recipient is required", verr.Message)
	})

	t.Run("缺少正文被拒绝且不落库", func(t *testing.T) {
		_, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			From:   "sender@example.com",
			To:     []string{"a@example.com"},
		})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, "text or html content is required", verr.Message)
	})

	t.Run("非法时间戳被拒绝", func(t *testing.T) {
		_, err := ingest.IngestForm(IngestFormInput{
			SinkID:     sink.ID,
			From:       "sender@example.com",
			To:         []string{"a@example.com"},
			Text:       "hello",
			ReceivedAt: "not-a-date",
		})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestIngestForm_Success(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)

	email, err := ingest.IngestForm(IngestFormInput{
		SinkID:     sink.ID,
		From:       "Jane Doe <jane@example.com>",
		To:         []string{"a@example.com, b@example.com"},
		Cc:         []string{"c@example.com"},
		Subject:    "Build finished",
		Text:       "all green",
		MessageID:  "<build-123@ci>",
		ReceivedAt: "2026-08-30T12:00:00Z",
		Headers: map[string]interface{}{
			"X-Build": "123",
			"X-Bad":   42, // 非字符串值被丢弃
		},
	})

	assert.NoError(t, err)
	assert.NotNil(t, email)
	assert.Equal(t, "jane@example.com", *email.FromAddress)
	assert.Equal(t, "Jane Doe", *email.FromName)
	assert.Equal(t, "all green", email.RawContent)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), email.ReceivedAt)
	assert.Equal(t, domain.HeaderMap{"X-Build": "123"}, email.Headers)
}

func TestIngestForm_RawContentFallsBackToHTML(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)

	email, err := ingest.IngestForm(IngestFormInput{
		SinkID: sink.ID,
		From:   "sender@example.com",
		To:     []string{"a@example.com"},
		HTML:   "<p>hi</p>",
	})

	assert.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", email.RawContent)
	assert.Empty(t, email.TextContent)
}

func TestIngestForm_AttachmentDeduplication(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)
	store := ingest.store

	content := []byte("identical payload")
	submit := func() {
		_, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			From:   "sender@example.com",
			To:     []string{"a@example.com"},
			Text:   "with attachment",
			Attachments: []*FormAttachment{
				{Filename: "report.bin", ContentType: "application/octet-stream", Content: content},
			},
		})
		assert.NoError(t, err)
	}

	submit()
	submit()

	count, err := store.CountBlobs()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngestRaw(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)

	t.Run("空报文被拒绝", func(t *testing.T) {
		_, err := ingest.IngestRaw(sink.ID, nil)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)

		emails, listErr := ingest.store.ListEmails(sink.ID, 0)
		assert.NoError(t, listErr)
		assert.Empty(t, emails)
	})

	t.Run("普通文本邮件入库", func(t *testing.T) {
		raw := "From: Jane Doe <jane@example.com>\r\n" +
			"To: qa@sink.example\r\n" +
			"Subject: plain\r\n" +
			"Date: Sun, 30 Aug 2026 10:00:00 +0000\r\n" +
			"\r\n" +
			"body text\r\n"

		email, err := ingest.IngestRaw(sink.ID, []byte(raw))
		assert.NoError(t, err)
		assert.Equal(t, "plain", email.Subject)
		assert.Equal(t, "jane@example.com", *email.FromAddress)
		assert.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), email.ReceivedAt)

		recipients, err := ingest.store.ListRecipients(email.ID)
		assert.NoError(t, err)
		assert.Len(t, recipients, 1)
		assert.Equal(t, "qa@sink.example", *recipients[0].Address)
	})

	t.Run("无收件人的报文仍然入库", func(t *testing.T) {
		raw := "From: bot@example.com\r\n" +
			"Subject: no recipients\r\n" +
			"\r\n" +
			"fire and forget\r\n"

		email, err := ingest.IngestRaw(sink.ID, []byte(raw))
		assert.NoError(t, err)

		recipients, err := ingest.store.ListRecipients(email.ID)
		assert.NoError(t, err)
		assert.Empty(t, recipients)
	})

	t.Run("归档副本剥离附件体", func(t *testing.T) {
		raw := "From: sender@example.com\r\n" +
			"To: qa@sink.example\r\n" +
			"Subject: with attachment\r\n" +
			"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
			"\r\n" +
			"--frontier\r\n" +
			"Content-Type: text/plain\r\n" +
			"\r\n" +
			"see attachment\r\n" +
			"--frontier\r\n" +
			"Content-Type: application/octet-stream\r\n" +
			"Content-Disposition: attachment; filename=\"blob.bin\"\r\n" +
			"Content-Transfer-Encoding: base64\r\n" +
			"\r\n" +
			"aGVsbG8=\r\n" +
			"--frontier--\r\n"

		email, err := ingest.IngestRaw(sink.ID, []byte(raw))
		assert.NoError(t, err)

		// 归档副本里附件体换成占位符，原始内容不出现
		assert.Contains(t, email.RawContent, "[stripped]")
		assert.NotContains(t, email.RawContent, "aGVsbG8=")
		assert.Contains(t, email.RawContent, "--frontier--")

		// 附件本体仍然完整入库
		attachments, err := ingest.store.ListAttachments(email.ID)
		assert.NoError(t, err)
		assert.Len(t, attachments, 1)
		assert.Equal(t, "blob.bin", attachments[0].Filename)

		_, blob, err := ingest.store.GetAttachmentWithBlob(attachments[0].ID)
		assert.NoError(t, err)
		assert.Equal(t, []byte("hello"), blob.Content)
	})
}

func TestIngestForm_AttachmentPolicy(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)
	ingest.SetAttachmentPolicy(security.NewAttachmentPolicy(8))

	t.Run("超限附件整封拒收", func(t *testing.T) {
		_, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			From:   "ci@example.com",
			To:     []string{"qa@example.com"},
			Text:   "build log attached",
			Attachments: []*FormAttachment{
				{Filename: "build.log", ContentType: "text/plain", Content: []byte("123456789")},
			},
		})

		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "build.log")

		emails, listErr := ingest.store.ListEmails(sink.ID, 0)
		assert.NoError(t, listErr)
		assert.Empty(t, emails)
	})

	t.Run("未超限附件正常入库", func(t *testing.T) {
		email, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			From:   "ci@example.com",
			To:     []string{"qa@example.com"},
			Text:   "ok",
			Attachments: []*FormAttachment{
				{Filename: "ok.txt", ContentType: "text/plain", Content: []byte("short")},
			},
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, email.ID)
	})

	t.Run("可执行附件只标记不拒收", func(t *testing.T) {
		email, err := ingest.IngestForm(IngestFormInput{
			SinkID: sink.ID,
			From:   "ci@example.com",
			To:     []string{"qa@example.com"},
			Text:   "binary",
			Attachments: []*FormAttachment{
				{Filename: "tool.exe", ContentType: "application/octet-stream", Content: []byte{0x4D, 0x5A}},
			},
		})
		assert.NoError(t, err)

		attachments, err := ingest.store.ListAttachments(email.ID)
		assert.NoError(t, err)
		assert.Len(t, attachments, 1)
	})
}

func TestIngestForm_FromWithoutAddress(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)

	// 尖括号内为空白：值非空但解析不出任何邮箱，必须拒收而不是崩溃
	_, err := ingest.IngestForm(IngestFormInput{
		SinkID: sink.ID,
		From:   "Jane < >",
		To:     []string{"qa@example.com"},
		Text:   "hello",
	})

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "from")

	emails, listErr := ingest.store.ListEmails(sink.ID, 0)
	assert.NoError(t, listErr)
	assert.Empty(t, emails)
}

func TestIngest_NotifierFunc(t *testing.T) {
	ingest, _, sink := newIngestFixture(t)

	var gotSinkID string
	var gotEmail *domain.Email
	ingest.SetNotifier(NotifierFunc(func(sinkID string, email *domain.Email) {
		gotSinkID = sinkID
		gotEmail = email
	}))

	email, err := ingest.IngestForm(IngestFormInput{
		SinkID: sink.ID,
		From:   "ci@example.com",
		To:     []string{"qa@example.com"},
		Text:   "notify me",
	})
	assert.NoError(t, err)

	assert.Equal(t, sink.ID, gotSinkID)
	if assert.NotNil(t, gotEmail) {
		assert.Equal(t, email.ID, gotEmail.ID)
	}
}
