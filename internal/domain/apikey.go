package domain

import "time"

// SinkAPIKey 按 Sink 维度签发的摄入凭证。
// 只保存 sha256 哈希，原始密钥仅在创建时返回一次。
type SinkAPIKey struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SinkID     string     `json:"sinkId" gorm:"type:varchar(36);index;not null"`
	Name       string     `json:"name" gorm:"type:varchar(100);not null"`
	KeyHash    string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// TableName 指定表名。
func (SinkAPIKey) TableName() string { return "sink_api_key" }
