package mailparse

import (
	"regexp"
	"strings"
)

// StrippedPlaceholder 被剥离的附件体的占位文本。
const StrippedPlaceholder = "[stripped]"

var (
	// separatorPattern 头/体分隔空行，兼容 LF 与 CRLF。
	separatorPattern = regexp.MustCompile(`\r?\n\r?\n`)
	// unfoldPattern 邮件头续行（RFC 5322 折叠），检查时展开为单个空格。
	unfoldPattern = regexp.MustCompile(`\r?\n[ \t]+`)
	// multipartBoundaryPattern 从展开后的头部提取 multipart boundary 参数（带引号或不带）。
	multipartBoundaryPattern = regexp.MustCompile(`(?i)content-type:\s*multipart/[^;\n]+;[^\n]*boundary="?([^"\n;]+)"?`)
	// leadingBreaksPattern 段首的换行序列。
	leadingBreaksPattern = regexp.MustCompile(`^(\r?\n)*`)

	attachmentDispositionPattern = regexp.MustCompile(`(?i)content-disposition:\s*attachment`)
	dispositionFilenamePattern   = regexp.MustCompile(`(?i)content-disposition:[^\n]*filename=`)
	namedContentTypePattern      = regexp.MustCompile(`(?i)content-type:[^\n]*name=`)
)

// RedactAttachmentBodies 生成原始邮件的归档副本：
// 附件部分的内容体被替换为占位符，其余字节（包括邮件头、
// 分隔符、boundary 标记和非附件部分）逐字保留，换行风格不变。
//
// 这是尽力而为的归档裁剪，不是完整的 MIME 解析器。
// 任何无法确信解析的情况（找不到空行分隔、非 multipart、
// 缺少 boundary、boundary 在正文中不出现）都原样返回输入，
// 绝不破坏或部分裁剪消息。对已裁剪的输出重复执行结果不变。
func RedactAttachmentBodies(raw string) string {
	loc := separatorPattern.FindStringIndex(raw)
	if loc == nil {
		return raw
	}

	separator := raw[loc[0]:loc[1]]
	headers := raw[:loc[0]]
	body := raw[loc[1]:]

	unfolded := unfoldPattern.ReplaceAllString(headers, " ")
	m := multipartBoundaryPattern.FindStringSubmatch(unfolded)
	if m == nil {
		return raw
	}
	boundary := m[1]

	marker := "--" + boundary
	segments := strings.Split(body, marker)
	if len(segments) == 1 {
		return raw
	}

	// 换行风格跟随头/体分隔符
	lineBreak := "\n"
	if strings.Contains(separator, "\r\n") {
		lineBreak = "\r\n"
	}

	var out strings.Builder
	out.WriteString(headers)
	out.WriteString(separator)
	out.WriteString(segments[0]) // preamble 原样保留

	for _, segment := range segments[1:] {
		out.WriteString(marker)
		if strings.HasPrefix(segment, "--") {
			// 结束 boundary（--boundary--），没有内容体可检查
			out.WriteString(segment)
			continue
		}
		out.WriteString(redactPart(segment, lineBreak))
	}

	return out.String()
}

// redactPart 处理单个 multipart 段：若其头部表明这是附件，
// 将内容体替换为占位符；否则原样返回。
func redactPart(segment, lineBreak string) string {
	leading := leadingBreaksPattern.FindString(segment)
	rest := segment[len(leading):]

	loc := separatorPattern.FindStringIndex(rest)
	if loc == nil {
		return segment
	}

	separator := rest[loc[0]:loc[1]]
	headers := rest[:loc[0]]

	unfolded := unfoldPattern.ReplaceAllString(headers, " ")
	shouldStrip := attachmentDispositionPattern.MatchString(unfolded) ||
		dispositionFilenamePattern.MatchString(unfolded) ||
		namedContentTypePattern.MatchString(unfolded)

	if !shouldStrip {
		return segment
	}

	return leading + headers + separator + StrippedPlaceholder + lineBreak
}
