package mailparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lfMultipart 构造一封 LF 换行的 multipart 邮件，包含一个文本部分和一个附件部分。
func lfMultipart() string {
	return "From: sender@example.com\n" +
		"Content-Type: multipart/mixed; boundary=\"XYZ\"\n" +
		"\n" +
		"preamble text\n" +
		"--XYZ\n" +
		"Content-Type: text/plain\n" +
		"\n" +
		"hello body\n" +
		"--XYZ\n" +
		"Content-Type: application/pdf; name=\"doc.pdf\"\n" +
		"Content-Disposition: attachment; filename=\"doc.pdf\"\n" +
		"\n" +
		"PDFBYTES\n" +
		"--XYZ--\n"
}

func TestRedactAttachmentBodies_Noop(t *testing.T) {
	t.Run("没有头体分隔空行", func(t *testing.T) {
		input := "Subject: no body here"
		assert.Equal(t, input, RedactAttachmentBodies(input))
	})

	t.Run("非 multipart 类型", func(t *testing.T) {
		input := "Content-Type: text/plain\n\nplain body"
		assert.Equal(t, input, RedactAttachmentBodies(input))
	})

	t.Run("multipart 缺少 boundary 参数", func(t *testing.T) {
		input := "Content-Type: multipart/mixed\n\nbody"
		assert.Equal(t, input, RedactAttachmentBodies(input))
	})

	t.Run("boundary 在正文中不出现", func(t *testing.T) {
		input := "Content-Type: multipart/mixed; boundary=\"XYZ\"\n\nno markers here"
		assert.Equal(t, input, RedactAttachmentBodies(input))
	})
}

func TestRedactAttachmentBodies_StripsAttachment(t *testing.T) {
	input := lfMultipart()
	out := RedactAttachmentBodies(input)

	// 附件体被替换，且只替换一次
	assert.Equal(t, 1, strings.Count(out, StrippedPlaceholder))
	assert.NotContains(t, out, "PDFBYTES")

	// 非附件部分、preamble 与结束 boundary 原样保留
	assert.Contains(t, out, "hello body")
	assert.Contains(t, out, "preamble text")
	assert.Contains(t, out, "--XYZ--")

	// 头部与分隔符逐字保留
	assert.True(t, strings.HasPrefix(out,
		"From: sender@example.com\nContent-Type: multipart/mixed; boundary=\"XYZ\"\n\n"))

	// 附件部分的头仍在，只有内容体被替换
	assert.Contains(t, out, "Content-Disposition: attachment; filename=\"doc.pdf\"\n\n[stripped]\n")
}

func TestRedactAttachmentBodies_Idempotent(t *testing.T) {
	once := RedactAttachmentBodies(lfMultipart())
	twice := RedactAttachmentBodies(once)
	assert.Equal(t, once, twice)
}

func TestRedactAttachmentBodies_PreservesCRLF(t *testing.T) {
	input := "From: sender@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=ABC\r\n" +
		"\r\n" +
		"--ABC\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"text part\r\n" +
		"--ABC\r\n" +
		"Content-Type: image/png; name=\"pic.png\"\r\n" +
		"\r\n" +
		"PNGDATA\r\n" +
		"--ABC--\r\n"

	out := RedactAttachmentBodies(input)

	require.NotEqual(t, input, out)
	assert.NotContains(t, out, "PNGDATA")
	// 占位符后跟随 CRLF 而不是裸 LF
	assert.Contains(t, out, StrippedPlaceholder+"\r\n")
	assert.NotContains(t, out, StrippedPlaceholder+"\n-")
	assert.Contains(t, out, "--ABC--")
	// 所有 boundary 标记仍然由 CRLF 跟随
	assert.Equal(t, strings.Count(input, "--ABC\r\n"), strings.Count(out, "--ABC\r\n"))
}

func TestRedactAttachmentBodies_FoldedHeaders(t *testing.T) {
	// boundary 参数出现在折叠的续行上
	input := "Content-Type: multipart/mixed;\n" +
		" boundary=\"FOLD\"\n" +
		"\n" +
		"--FOLD\n" +
		"Content-Disposition: attachment;\n" +
		" filename=\"a.bin\"\n" +
		"\n" +
		"BINDATA\n" +
		"--FOLD--\n"

	out := RedactAttachmentBodies(input)
	assert.NotContains(t, out, "BINDATA")
	assert.Contains(t, out, StrippedPlaceholder)
	// 原始头部的折叠格式未被改写
	assert.True(t, strings.HasPrefix(out, "Content-Type: multipart/mixed;\n boundary=\"FOLD\"\n\n"))
}

func TestRedactAttachmentBodies_InlineNamedContent(t *testing.T) {
	// Content-Type 携带 name 参数的部分同样视为附件
	input := "Content-Type: multipart/related; boundary=REL\n" +
		"\n" +
		"--REL\n" +
		"Content-Type: image/jpeg; name=\"inline.jpg\"\n" +
		"\n" +
		"JPEGDATA\n" +
		"--REL--\n"

	out := RedactAttachmentBodies(input)
	assert.NotContains(t, out, "JPEGDATA")
	assert.Contains(t, out, StrippedPlaceholder)
}
