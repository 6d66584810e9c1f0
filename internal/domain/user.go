package domain

import "time"

// UserRole 用户角色。
type UserRole string

const (
	// RoleAdmin 管理员，可以管理 Sink、API Key 和授权规则。
	RoleAdmin UserRole = "admin"
)

// User 表示管理端用户。摄入通道不依赖用户体系，
// 这里只保留管理接口认证所需的最小字段。
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Username     string     `json:"username" gorm:"type:varchar(100)"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255);not null"`
	Role         UserRole   `json:"role" gorm:"type:varchar(16);not null"`
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// TableName 指定表名。
func (User) TableName() string { return "users" }
