package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage_PlainText(t *testing.T) {
	raw := []byte("From: Jane Doe <jane@example.com>\r\n" +
		"To: a@example.com, Bob <b@example.com>\r\n" +
		"Subject: Hello\r\n" +
		"Message-Id: <abc123@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain body\r\n")

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "Hello", parsed.Subject)
	assert.Equal(t, "<abc123@example.com>", parsed.MessageID)

	require.NotNil(t, parsed.From)
	assert.Equal(t, "jane@example.com", parsed.From.Address)
	assert.Equal(t, "Jane Doe", parsed.From.Name)

	require.Len(t, parsed.To, 2)
	assert.Equal(t, "a@example.com", parsed.To[0].Address)
	assert.Equal(t, "Bob", parsed.To[1].Name)
	assert.Equal(t, "Bob <b@example.com>", parsed.To[1].Raw)

	assert.Equal(t, "plain body\r\n", parsed.Text)
	assert.Empty(t, parsed.HTML)
	assert.Empty(t, parsed.Attachments)

	assert.Equal(t, "Hello", parsed.Headers["Subject"])
}

func TestParseMessage_MultipartWithAttachment(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"To: rcpt@example.com\r\n" +
		"Subject: With attachment\r\n" +
		"Content-Type: multipart/mixed; boundary=BOUNDARY\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"see attachment\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: application/octet-stream; name=\"data.bin\"\r\n" +
		"Content-Disposition: attachment; filename=\"data.bin\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"Content-Id: <part1@example.com>\r\n" +
		"\r\n" +
		"aGVsbG8=\r\n" +
		"--BOUNDARY--\r\n")

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "see attachment", parsed.Text)
	require.Len(t, parsed.Attachments, 1)

	att := parsed.Attachments[0]
	assert.Equal(t, "data.bin", att.Filename)
	assert.Equal(t, "application/octet-stream", att.ContentType)
	assert.Equal(t, "attachment", att.Disposition)
	assert.Equal(t, "part1@example.com", att.ContentID)
	assert.Equal(t, []byte("hello"), att.Content)
}

func TestParseMessage_HTMLAlternative(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: Alt\r\n" +
		"Content-Type: multipart/alternative; boundary=ALT\r\n" +
		"\r\n" +
		"--ALT\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"text version\r\n" +
		"--ALT\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--ALT--\r\n")

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Contains(t, parsed.Text, "text version")
	assert.Contains(t, parsed.HTML, "html version")
}

func TestParseMessage_EncodedSubject(t *testing.T) {
	raw := []byte("From: sender@example.com\r\n" +
		"Subject: =?utf-8?B?5L2g5aW9?=\r\n" +
		"\r\n" +
		"body\r\n")

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "你好", parsed.Subject)
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := ParseMessage([]byte("not a mail message"))
	assert.Error(t, err)
}
