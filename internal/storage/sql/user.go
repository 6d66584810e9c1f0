package sql

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

// ========== User Repository ==========

// CreateUser 创建管理端用户。邮箱重复返回 ErrUserEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	if err := s.db.Create(user).Error; err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrUserEmailExists
		}
		return err
	}
	return nil
}

// GetUserByID 按 ID 查找用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	err := s.db.First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 按邮箱查找用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.db.First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin 记录用户最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	now := time.Now().UTC()
	return s.db.Model(&domain.User{}).Where("id = ?", userID).
		Update("last_login_at", &now).Error
}
