package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/service"
)

// SinkHandler 处理 Sink 及其摄入凭证、授权规则的管理请求
type SinkHandler struct {
	sinks     *service.SinkService
	apiKeys   *service.APIKeyService
	authRules *service.AuthRuleService
	log       *zap.Logger
}

// NewSinkHandler 创建 Sink 管理处理器
func NewSinkHandler(sinks *service.SinkService, apiKeys *service.APIKeyService, authRules *service.AuthRuleService, log *zap.Logger) *SinkHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SinkHandler{
		sinks:     sinks,
		apiKeys:   apiKeys,
		authRules: authRules,
		log:       log,
	}
}

type createSinkRequest struct {
	Name          string `json:"name" binding:"required"`
	Slug          string `json:"slug" binding:"required"`
	IsAuthEnabled bool   `json:"isAuthEnabled"`
}

type updateSinkRequest struct {
	Name          *string `json:"name"`
	IsAuthEnabled *bool   `json:"isAuthEnabled"`
}

type sinkResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	IsAuthEnabled bool      `json:"isAuthEnabled"`
	CreatedAt     time.Time `json:"createdAt"`
}

type sinkListResponse struct {
	Items []sinkResponse `json:"items"`
	Count int            `json:"count"`
}

// CreateSink 创建 Sink
func (h *SinkHandler) CreateSink(c *gin.Context) {
	var req createSinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	// 关联创建者（由JWT中间件写入上下文）
	var userID *string
	if val, exists := c.Get("userID"); exists {
		if uid, ok := val.(string); ok {
			userID = &uid
		}
	}

	sink, err := h.sinks.Create(service.CreateSinkInput{
		Name:            req.Name,
		Slug:            req.Slug,
		IsAuthEnabled:   req.IsAuthEnabled,
		CreatedByUserID: userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNameRequired), errors.Is(err, service.ErrSlugRequired):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, domain.ErrSlugInvalid):
			BadRequest(c, "slug只允许小写字母、数字与连字符")
		case errors.Is(err, service.ErrSlugTaken):
			Conflict(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to create sink", zap.Error(err))
			InternalError(c, MsgSinkCreateFailed)
		}
		return
	}

	h.log.Info("sink created",
		zap.String("sink_id", sink.ID),
		zap.String("slug", sink.Slug),
	)

	Created(c, toSinkResponse(sink))
}

// ListSinks 列出所有 Sink
func (h *SinkHandler) ListSinks(c *gin.Context) {
	sinks, err := h.sinks.List()
	if err != nil {
		InternalError(c, MsgSinkListFailed)
		return
	}

	items := make([]sinkResponse, 0, len(sinks))
	for i := range sinks {
		items = append(items, toSinkResponse(&sinks[i]))
	}

	Success(c, sinkListResponse{Items: items, Count: len(items)})
}

// GetSink 获取 Sink 详情
func (h *SinkHandler) GetSink(c *gin.Context) {
	sink, err := h.sinks.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSinkNotFound) {
			NotFound(c, MsgSinkNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, toSinkResponse(sink))
}

// UpdateSink 更新 Sink 的名称或鉴权开关，slug 不可变更
func (h *SinkHandler) UpdateSink(c *gin.Context) {
	var req updateSinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	sink, err := h.sinks.Update(c.Param("id"), service.UpdateSinkInput{
		Name:          req.Name,
		IsAuthEnabled: req.IsAuthEnabled,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrNameRequired):
			BadRequest(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgSinkUpdateFailed)
		}
		return
	}

	Success(c, toSinkResponse(sink))
}

// DeleteSink 删除 Sink 及其全部邮件数据
func (h *SinkHandler) DeleteSink(c *gin.Context) {
	if err := h.sinks.Delete(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrSinkNotFound) {
			NotFound(c, MsgSinkNotFound)
			return
		}
		h.log.Error("failed to delete sink", zap.Error(err))
		InternalError(c, MsgSinkDeleteFailed)
		return
	}

	NoContent(c)
}

// ========== API Key Handlers ==========

type createAPIKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

type apiKeyResponse struct {
	ID         string     `json:"id"`
	SinkID     string     `json:"sinkId"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

type createAPIKeyResponse struct {
	apiKeyResponse
	// Key 明文密钥，只在创建响应中出现一次
	Key string `json:"key"`
}

// CreateAPIKey 为 Sink 签发摄入密钥，明文只返回这一次
func (h *SinkHandler) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	plaintext, key, err := h.apiKeys.CreateAPIKey(service.CreateAPIKeyInput{
		SinkID: c.Param("id"),
		Name:   req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrKeyNameRequired):
			BadRequest(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to create api key", zap.Error(err))
			InternalError(c, MsgAPIKeyCreateFailed)
		}
		return
	}

	Created(c, createAPIKeyResponse{
		apiKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// ListAPIKeys 列出 Sink 的摄入密钥（不含明文与哈希）
func (h *SinkHandler) ListAPIKeys(c *gin.Context) {
	keys, err := h.apiKeys.ListAPIKeys(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSinkNotFound) {
			NotFound(c, MsgSinkNotFound)
			return
		}
		InternalError(c, MsgAPIKeyListFailed)
		return
	}

	items := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		items = append(items, toAPIKeyResponse(k))
	}

	Success(c, gin.H{"items": items, "count": len(items)})
}

// DeleteAPIKey 吊销摄入密钥
func (h *SinkHandler) DeleteAPIKey(c *gin.Context) {
	err := h.apiKeys.DeleteAPIKey(c.Param("id"), c.Param("keyId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrAPIKeyNotFound):
			NotFound(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAPIKeyDeleteFailed)
		}
		return
	}

	NoContent(c)
}

// ========== Auth Rule Handlers ==========

type createAuthRuleRequest struct {
	Type  string `json:"type" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// CreateAuthRule 为 Sink 创建发件人授权规则
func (h *SinkHandler) CreateAuthRule(c *gin.Context) {
	var req createAuthRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	rule, err := h.authRules.CreateAuthRule(service.CreateAuthRuleInput{
		SinkID: c.Param("id"),
		Type:   domain.AuthRuleType(req.Type),
		Value:  req.Value,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrRuleTypeInvalid), errors.Is(err, service.ErrRuleValueRequired):
			BadRequest(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAuthRuleCreateFailed)
		}
		return
	}

	Created(c, rule)
}

// ListAuthRules 列出 Sink 的授权规则
func (h *SinkHandler) ListAuthRules(c *gin.Context) {
	rules, err := h.authRules.ListAuthRules(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSinkNotFound) {
			NotFound(c, MsgSinkNotFound)
			return
		}
		InternalError(c, MsgAuthRuleListFailed)
		return
	}

	Success(c, gin.H{"items": rules, "count": len(rules)})
}

// DeleteAuthRule 删除授权规则
func (h *SinkHandler) DeleteAuthRule(c *gin.Context) {
	err := h.authRules.DeleteAuthRule(c.Param("id"), c.Param("ruleId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSinkNotFound):
			NotFound(c, MsgSinkNotFound)
		case errors.Is(err, service.ErrAuthRuleNotFound):
			NotFound(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAuthRuleDeleteFailed)
		}
		return
	}

	NoContent(c)
}

// toSinkResponse 转换实体为响应体。
func toSinkResponse(sink *domain.Sink) sinkResponse {
	return sinkResponse{
		ID:            sink.ID,
		Name:          sink.Name,
		Slug:          sink.Slug,
		IsAuthEnabled: sink.IsAuthEnabled,
		CreatedAt:     sink.CreatedAt,
	}
}

func toAPIKeyResponse(key *domain.SinkAPIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         key.ID,
		SinkID:     key.SinkID,
		Name:       key.Name,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
	}
}
