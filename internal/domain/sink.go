package domain

import "time"

// Sink 表示一个租户收件槽，通过唯一 slug 对外标识。
type Sink struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name            string    `json:"name" gorm:"type:varchar(255);not null"`
	Slug            string    `json:"slug" gorm:"type:varchar(64);uniqueIndex;not null"`
	IsAuthEnabled   bool      `json:"isAuthEnabled" gorm:"default:false"`
	CreatedByUserID *string   `json:"createdByUserId,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TableName 指定表名。
func (Sink) TableName() string { return "sink" }
