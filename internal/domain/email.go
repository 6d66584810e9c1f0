package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HeaderMap 邮件头键值对，序列化为 JSON 存储（PostgreSQL/MySQL 通用）。
type HeaderMap map[string]string

// Value 实现 driver.Valuer。
func (h HeaderMap) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan 实现 sql.Scanner。
func (h *HeaderMap) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("unsupported header map source type %T", value)
	}
}

// Email 表示一封已入库的邮件，归属于唯一的 Sink，创建后除删除外不可变更。
type Email struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SinkID      string    `json:"sinkId" gorm:"type:varchar(36);index;not null"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	MessageID   string    `json:"messageId" gorm:"type:varchar(255)"`
	FromAddress *string   `json:"fromAddress,omitempty" gorm:"type:varchar(255)"`
	FromName    *string   `json:"fromName,omitempty" gorm:"type:varchar(255)"`
	Headers     HeaderMap `json:"headers,omitempty" gorm:"type:json"`
	TextContent string    `json:"textContent,omitempty"`
	HTMLContent string    `json:"htmlContent,omitempty"`
	RawContent  string    `json:"rawContent,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt" gorm:"index"`
}

// TableName 指定表名。
func (Email) TableName() string { return "email" }

// RecipientType 收件人类型。
type RecipientType string

const (
	RecipientTo  RecipientType = "to"
	RecipientCc  RecipientType = "cc"
	RecipientBcc RecipientType = "bcc"
)

// EmailRecipient 表示邮件上的一条收件人记录，与邮件同事务创建，创建后不再更新。
type EmailRecipient struct {
	ID      string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EmailID string        `json:"emailId" gorm:"type:varchar(36);index;not null"`
	Type    RecipientType `json:"type" gorm:"type:varchar(8);not null"`
	Address *string       `json:"address,omitempty" gorm:"type:varchar(255)"`
	Name    *string       `json:"name,omitempty" gorm:"type:varchar(255)"`
	Raw     string        `json:"raw,omitempty" gorm:"type:varchar(500)"`
}

// TableName 指定表名。
func (EmailRecipient) TableName() string { return "email_recipient" }
