package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

var (
	ErrAuthRuleNotFound  = errors.New("auth rule not found")
	ErrRuleTypeInvalid   = errors.New("auth rule type invalid")
	ErrRuleValueRequired = errors.New("auth rule value required")
)

// AuthRuleService 发件人授权规则业务逻辑服务。
// 规则用于界面侧的发件人可见性判定，不参与摄入闸门。
type AuthRuleService struct {
	sinks *SinkService
	store storage.Store
}

// NewAuthRuleService 创建授权规则服务
func NewAuthRuleService(sinks *SinkService, store storage.Store) *AuthRuleService {
	return &AuthRuleService{
		sinks: sinks,
		store: store,
	}
}

// CreateAuthRuleInput 创建授权规则的输入参数
type CreateAuthRuleInput struct {
	SinkID string
	Type   domain.AuthRuleType
	Value  string
}

// CreateAuthRule 为 Sink 创建发件人授权规则
func (s *AuthRuleService) CreateAuthRule(input CreateAuthRuleInput) (*domain.SinkAuthRule, error) {
	if !domain.ValidAuthRuleType(input.Type) {
		return nil, ErrRuleTypeInvalid
	}

	value := strings.TrimSpace(input.Value)
	if value == "" {
		return nil, ErrRuleValueRequired
	}

	sink, err := s.sinks.Get(input.SinkID)
	if err != nil {
		return nil, err
	}

	rule := &domain.SinkAuthRule{
		ID:        uuid.NewString(),
		SinkID:    sink.ID,
		Type:      input.Type,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.SaveAuthRule(rule); err != nil {
		return nil, err
	}

	return rule, nil
}

// ListAuthRules 列出 Sink 的全部授权规则
func (s *AuthRuleService) ListAuthRules(sinkID string) ([]*domain.SinkAuthRule, error) {
	if _, err := s.sinks.Get(sinkID); err != nil {
		return nil, err
	}
	return s.store.ListAuthRulesBySink(sinkID)
}

// DeleteAuthRule 删除 Sink 的授权规则
func (s *AuthRuleService) DeleteAuthRule(sinkID, ruleID string) error {
	if _, err := s.sinks.Get(sinkID); err != nil {
		return err
	}

	err := s.store.DeleteAuthRule(sinkID, ruleID)
	if errors.Is(err, storage.ErrAuthRuleNotFound) {
		return ErrAuthRuleNotFound
	}
	return err
}

// CheckSender 判断发件人地址是否命中 Sink 的任意一条规则
func (s *AuthRuleService) CheckSender(sinkID, email string) (bool, error) {
	rules, err := s.ListAuthRules(sinkID)
	if err != nil {
		return false, err
	}
	return domain.IsSenderAuthorized(email, rules), nil
}
