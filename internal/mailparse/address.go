package mailparse

import (
	"regexp"
	"strings"
)

// Mailbox 表示一条解析后的邮箱地址记录。
// Address、Name 为空字符串表示对应部分不存在；Raw 保留原始文本。
type Mailbox struct {
	Address string
	Name    string
	Raw     string
}

// angleAddrPattern 匹配 `Display Name <addr>` 形式。
var angleAddrPattern = regexp.MustCompile(`^(.*)<([^>]+)>$`)

// ParseMailbox 解析一条自由文本邮箱记录。
//
// 规则：
//   - 空白输入返回 nil；
//   - `Name <addr>` 形式提取尖括号内地址，余下部分去掉首尾引号后作为显示名；
//   - 含 `@` 的裸字符串视为纯地址；
//   - 其余视为只有显示名的记录。
//
// 对畸形输入从不报错，只会返回 nil。
func ParseMailbox(value string) *Mailbox {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	if m := angleAddrPattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.TrimSpace(m[1])
		name = strings.TrimPrefix(name, `"`)
		name = strings.TrimSuffix(name, `"`)
		address := strings.TrimSpace(m[2])
		if address == "" {
			return nil
		}

		return &Mailbox{
			Address: address,
			Name:    name,
			Raw:     trimmed,
		}
	}

	if strings.Contains(trimmed, "@") {
		return &Mailbox{
			Address: trimmed,
			Raw:     trimmed,
		}
	}

	return &Mailbox{
		Name: trimmed,
		Raw:  trimmed,
	}
}

// splitAddresses 按逗号或分号切分候选记录并去掉空白项。
func splitAddresses(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizeMailboxList 将若干地址字符串规整为有序的 Mailbox 列表。
// 每个字符串可以本身就是逗号/分号分隔的列表；解析失败的条目被静默丢弃。
func NormalizeMailboxList(values []string) []Mailbox {
	var out []Mailbox
	for _, value := range values {
		for _, candidate := range splitAddresses(value) {
			if mb := ParseMailbox(candidate); mb != nil {
				out = append(out, *mb)
			}
		}
	}
	return out
}

// NormalizeHeaders 只保留值为字符串的头条目。
// 没有任何条目存活时返回 nil，以区分「无邮件头」和「空邮件头表」。
func NormalizeHeaders(values map[string]interface{}) map[string]string {
	if values == nil {
		return nil
	}

	headers := make(map[string]string)
	for key, value := range values {
		if s, ok := value.(string); ok {
			headers[key] = s
		}
	}

	if len(headers) == 0 {
		return nil
	}
	return headers
}
