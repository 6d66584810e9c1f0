package sql

import (
	"github.com/brunnerh/email-sink/internal/domain"
	"github.com/brunnerh/email-sink/internal/storage"
)

// ========== Auth Rule Repository ==========

// SaveAuthRule 保存发件人授权规则。
func (s *Store) SaveAuthRule(rule *domain.SinkAuthRule) error {
	return s.db.Create(rule).Error
}

// ListAuthRulesBySink 列出 Sink 下的全部授权规则。
func (s *Store) ListAuthRulesBySink(sinkID string) ([]*domain.SinkAuthRule, error) {
	var rules []*domain.SinkAuthRule
	err := s.db.Where("sink_id = ?", sinkID).Order("created_at ASC").Find(&rules).Error
	return rules, err
}

// DeleteAuthRule 删除指定 Sink 下的授权规则。
func (s *Store) DeleteAuthRule(sinkID, ruleID string) error {
	result := s.db.Where("id = ? AND sink_id = ?", ruleID, sinkID).Delete(&domain.SinkAuthRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAuthRuleNotFound
	}
	return nil
}
