package domain

import (
	"strings"
	"time"
)

// AuthRuleType 发件人匹配规则类型。
type AuthRuleType string

const (
	AuthRuleEquals     AuthRuleType = "equals"
	AuthRuleContains   AuthRuleType = "contains"
	AuthRuleStartsWith AuthRuleType = "starts_with"
	AuthRuleEndsWith   AuthRuleType = "ends_with"
)

// ValidAuthRuleType 判断规则类型是否合法。
func ValidAuthRuleType(t AuthRuleType) bool {
	switch t {
	case AuthRuleEquals, AuthRuleContains, AuthRuleStartsWith, AuthRuleEndsWith:
		return true
	}
	return false
}

// SinkAuthRule 按 Sink 维度配置的发件人地址匹配规则，
// 用于界面可见性授权，不参与摄入鉴权。
type SinkAuthRule struct {
	ID        string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SinkID    string       `json:"sinkId" gorm:"type:varchar(36);index;not null"`
	Type      AuthRuleType `json:"type" gorm:"type:varchar(16);not null"`
	Value     string       `json:"value" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time    `json:"createdAt"`
}

// TableName 指定表名。
func (SinkAuthRule) TableName() string { return "sink_auth_rule" }

// MatchesAuthRule 判断发件人地址是否命中规则，大小写不敏感。
func MatchesAuthRule(email string, rule *SinkAuthRule) bool {
	addr := strings.ToLower(strings.TrimSpace(email))
	value := strings.ToLower(strings.TrimSpace(rule.Value))

	switch rule.Type {
	case AuthRuleEquals:
		return addr == value
	case AuthRuleContains:
		return strings.Contains(addr, value)
	case AuthRuleStartsWith:
		return strings.HasPrefix(addr, value)
	case AuthRuleEndsWith:
		return strings.HasSuffix(addr, value)
	default:
		return false
	}
}

// IsSenderAuthorized 判断发件人地址是否命中任意一条规则。
func IsSenderAuthorized(email string, rules []*SinkAuthRule) bool {
	for _, rule := range rules {
		if MatchesAuthRule(email, rule) {
			return true
		}
	}
	return false
}
