package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunnerh/email-sink/internal/auth/jwt"
	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage/memory"
)

func newAuthService() *Service {
	store := memory.NewStore()
	manager := jwt.NewManager(strings.Repeat("a", 32), "test", 15*time.Minute, 7*24*time.Hour)
	return NewService(store, manager)
}

func TestService_CreateAdmin(t *testing.T) {
	service := newAuthService()

	user, err := service.CreateAdmin(CreateAdminInput{
		Email:    "Admin@Example.com",
		Username: "admin",
		Password: "Password123!",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.NotEqual(t, "Password123!", user.PasswordHash)

	t.Run("邮箱重复失败", func(t *testing.T) {
		_, err := service.CreateAdmin(CreateAdminInput{
			Email:    "admin@example.com",
			Username: "other",
			Password: "Password123!",
		})
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("非法邮箱失败", func(t *testing.T) {
		_, err := service.CreateAdmin(CreateAdminInput{
			Email:    "not-an-email",
			Password: "Password123!",
		})
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("弱密码失败", func(t *testing.T) {
		_, err := service.CreateAdmin(CreateAdminInput{
			Email:    "second@example.com",
			Password: "short",
		})
		assert.Error(t, err)
	})
}

func TestService_Login(t *testing.T) {
	service := newAuthService()

	_, err := service.CreateAdmin(CreateAdminInput{
		Email:    "admin@example.com",
		Username: "admin",
		Password: "Password123!",
	})
	require.NoError(t, err)

	t.Run("登录成功返回令牌对", func(t *testing.T) {
		resp, err := service.Login("admin@example.com", "Password123!")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, "Bearer", resp.TokenType)

		claims, err := service.ValidateToken(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.UserID)
		assert.Equal(t, string(domain.RoleAdmin), claims.Role)
	})

	t.Run("密码错误失败", func(t *testing.T) {
		_, err := service.Login("admin@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("用户不存在失败", func(t *testing.T) {
		_, err := service.Login("missing@example.com", "Password123!")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
