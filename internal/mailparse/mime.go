package mailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// Attachment 表示从原始邮件中解出的一个附件。
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Disposition string
	Content     []byte
}

// ParsedMessage 表示解析后的原始邮件内容。
type ParsedMessage struct {
	Subject     string
	MessageID   string
	From        *Mailbox
	To          []Mailbox
	Cc          []Mailbox
	Bcc         []Mailbox
	Headers     map[string]string
	Text        string
	HTML        string
	Attachments []*Attachment
}

// ParseMessage 解析原始邮件，提取头部、文本、HTML 和附件。
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	headers := make(map[string]string, len(msg.Header))
	for key, values := range msg.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	parsed := &ParsedMessage{
		Subject:     decodeHeader(msg.Header.Get("Subject")),
		MessageID:   strings.TrimSpace(msg.Header.Get("Message-Id")),
		To:          parseMailboxHeader(msg.Header.Get("To")),
		Cc:          parseMailboxHeader(msg.Header.Get("Cc")),
		Bcc:         parseMailboxHeader(msg.Header.Get("Bcc")),
		Headers:     headers,
		Attachments: make([]*Attachment, 0),
	}

	if from := parseMailboxHeader(msg.Header.Get("From")); len(from) > 0 {
		parsed.From = &from[0]
	}

	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// 没有 Content-Type 或解析失败，当作纯文本处理
		body, _ := io.ReadAll(msg.Body)
		parsed.Text = string(body)
		return parsed, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message without boundary")
		}

		mr := multipart.NewReader(msg.Body, boundary)
		if err := parseMultipart(mr, parsed); err != nil {
			return nil, fmt.Errorf("parse multipart: %w", err)
		}
	} else {
		body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}

		if strings.HasPrefix(mediaType, "text/html") {
			parsed.HTML = body
		} else {
			parsed.Text = body
		}
	}

	return parsed, nil
}

// parseMailboxHeader 解析地址头（To/Cc/Bcc/From）为 Mailbox 列表。
// 优先走标准地址语法，失败时退回自由文本解析。
func parseMailboxHeader(value string) []Mailbox {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(value)
	if err != nil {
		return NormalizeMailboxList([]string{decodeHeader(value)})
	}

	out := make([]Mailbox, 0, len(addresses))
	for _, addr := range addresses {
		mb := Mailbox{
			Address: addr.Address,
			Name:    decodeHeader(addr.Name),
		}
		if mb.Name != "" {
			mb.Raw = fmt.Sprintf("%s <%s>", mb.Name, mb.Address)
		} else {
			mb.Raw = mb.Address
		}
		out = append(out, mb)
	}
	return out
}

// parseMultipart 递归解析多部分邮件。
func parseMultipart(mr *multipart.Reader, parsed *ParsedMessage) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		contentType := part.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			mediaType = "text/plain"
		}

		// 检查是否是附件
		disposition := part.Header.Get("Content-Disposition")
		if disposition != "" {
			dispType, dispParams, _ := mime.ParseMediaType(disposition)
			if dispType == "attachment" || dispType == "inline" {
				filename := dispParams["filename"]
				if filename == "" {
					filename = params["name"]
				}
				filename = decodeHeader(filename)

				content, err := io.ReadAll(part)
				if err != nil {
					continue
				}

				// 解码附件内容（如果是 base64 编码）
				transferEncoding := part.Header.Get("Content-Transfer-Encoding")
				if strings.ToLower(transferEncoding) == "base64" {
					decoded, err := base64.StdEncoding.DecodeString(string(content))
					if err == nil {
						content = decoded
					}
				}

				parsed.Attachments = append(parsed.Attachments, &Attachment{
					Filename:    filename,
					ContentType: mediaType,
					ContentID:   strings.Trim(part.Header.Get("Content-Id"), "<>"),
					Disposition: dispType,
					Content:     content,
				})
				continue
			}
		}

		// 处理嵌套的 multipart
		if strings.HasPrefix(mediaType, "multipart/") {
			boundary := params["boundary"]
			if boundary != "" {
				nestedReader := multipart.NewReader(part, boundary)
				if err := parseMultipart(nestedReader, parsed); err != nil {
					return err
				}
			}
			continue
		}

		// 处理文本内容
		body, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
		if err != nil {
			continue
		}

		if strings.HasPrefix(mediaType, "text/html") {
			if parsed.HTML == "" {
				parsed.HTML = body
			}
		} else if strings.HasPrefix(mediaType, "text/plain") {
			if parsed.Text == "" {
				parsed.Text = body
			}
		}
	}

	return nil
}

// decodeHeader 解码 RFC 2047 编码的头部值。
func decodeHeader(value string) string {
	decoder := mime.WordDecoder{
		CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
			enc := getCharsetEncoding(strings.ToLower(charset))
			if enc == nil {
				return input, nil
			}
			return transform.NewReader(input, enc.NewDecoder()), nil
		},
	}

	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// decodeBody 根据编码方式解码邮件体。
func decodeBody(reader io.Reader, transferEncoding string, charset string) (string, error) {
	transferEncoding = strings.ToLower(strings.TrimSpace(transferEncoding))

	var decoded io.Reader = reader

	switch transferEncoding {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, reader)
	case "quoted-printable":
		decoded = quotedprintable.NewReader(reader)
	case "7bit", "8bit", "binary", "":
		decoded = reader
	default:
		// 未知编码，尝试直接读取
		decoded = reader
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}

	// 字符集转换
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc := getCharsetEncoding(charset); enc != nil {
			converted, _, err := transform.Bytes(enc.NewDecoder(), body)
			if err == nil {
				body = converted
			}
		}
	}

	return string(body), nil
}

// getCharsetEncoding 根据字符集名称返回编码器。
func getCharsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp", "shift_jis", "euc-jp":
		return japanese.ShiftJIS
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	default:
		return nil
	}
}
