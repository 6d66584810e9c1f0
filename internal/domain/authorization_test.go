package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesAuthRule(t *testing.T) {
	tests := []struct {
		name  string
		email string
		rule  SinkAuthRule
		want  bool
	}{
		{"equals 命中", "alice@example.com", SinkAuthRule{Type: AuthRuleEquals, Value: "alice@example.com"}, true},
		{"equals 大小写不敏感", "Alice@Example.COM", SinkAuthRule{Type: AuthRuleEquals, Value: "alice@example.com"}, true},
		{"equals 不命中", "bob@example.com", SinkAuthRule{Type: AuthRuleEquals, Value: "alice@example.com"}, false},
		{"contains 命中", "alice@example.com", SinkAuthRule{Type: AuthRuleContains, Value: "example"}, true},
		{"starts_with 命中", "alice@example.com", SinkAuthRule{Type: AuthRuleStartsWith, Value: "alice@"}, true},
		{"ends_with 命中", "alice@example.com", SinkAuthRule{Type: AuthRuleEndsWith, Value: "@example.com"}, true},
		{"ends_with 不命中", "alice@other.com", SinkAuthRule{Type: AuthRuleEndsWith, Value: "@example.com"}, false},
		{"未知类型拒绝", "alice@example.com", SinkAuthRule{Type: "regex", Value: ".*"}, false},
		{"两侧空白被忽略", "  alice@example.com  ", SinkAuthRule{Type: AuthRuleEquals, Value: " alice@example.com "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesAuthRule(tt.email, &tt.rule))
		})
	}
}

func TestIsSenderAuthorized(t *testing.T) {
	rules := []*SinkAuthRule{
		{Type: AuthRuleEquals, Value: "exact@example.com"},
		{Type: AuthRuleEndsWith, Value: "@corp.example.com"},
	}

	assert.True(t, IsSenderAuthorized("exact@example.com", rules))
	assert.True(t, IsSenderAuthorized("dev@corp.example.com", rules))
	assert.False(t, IsSenderAuthorized("dev@example.com", rules))
	assert.False(t, IsSenderAuthorized("anyone@example.com", nil))
}

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, ValidateSlug("inbox"))
	assert.NoError(t, ValidateSlug("team-42"))
	assert.NoError(t, ValidateSlug("a"))

	assert.Error(t, ValidateSlug(""))
	assert.Error(t, ValidateSlug("-leading"))
	assert.Error(t, ValidateSlug("trailing-"))
	assert.Error(t, ValidateSlug("Upper"))
	assert.Error(t, ValidateSlug("has space"))
	assert.Error(t, ValidateSlug("päth"))
}
