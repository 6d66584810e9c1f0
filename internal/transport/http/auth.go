package httptransport

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/auth"
	"github.com/brunnerh/email-sink/internal/domain"
)

// AuthHandler 处理管理端认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

type loginResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// Login 管理员登录，返回访问令牌与刷新令牌
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	resp, err := h.authService.Login(strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			Unauthorized(c, MsgInvalidCredentials)
		case errors.Is(err, auth.ErrUserInactive):
			Forbidden(c, "账户已被禁用")
		default:
			h.log.Error("login failed", zap.Error(err))
			InternalError(c, MsgInternalError)
		}
		return
	}

	h.log.Info("admin logged in",
		zap.String("user_id", resp.User.ID),
		zap.String("ip", c.ClientIP()),
	)

	Success(c, loginResponse{
		User:         toUserResponse(resp.User),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
	})
}

// Refresh 使用刷新令牌换取新的访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.authService.RefreshToken(req.RefreshToken)
	if err != nil {
		Unauthorized(c, MsgTokenExpired)
		return
	}

	Success(c, gin.H{"accessToken": accessToken})
}

// Me 返回当前登录用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userIDVal, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	userID, ok := userIDVal.(string)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	Success(c, toUserResponse(user))
}

func toUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     string(user.Role),
		IsActive: user.IsActive,
	}
}
