package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMailbox(t *testing.T) {
	t.Run("带显示名的地址", func(t *testing.T) {
		mb := ParseMailbox("Jane Doe <jane@example.com>")
		require.NotNil(t, mb)
		assert.Equal(t, "jane@example.com", mb.Address)
		assert.Equal(t, "Jane Doe", mb.Name)
		assert.Equal(t, "Jane Doe <jane@example.com>", mb.Raw)
	})

	t.Run("带引号的显示名", func(t *testing.T) {
		mb := ParseMailbox(`"Doe, Jane" <jane@example.com>`)
		require.NotNil(t, mb)
		assert.Equal(t, "jane@example.com", mb.Address)
		assert.Equal(t, "Doe, Jane", mb.Name)
	})

	t.Run("裸地址", func(t *testing.T) {
		mb := ParseMailbox("  jane@example.com  ")
		require.NotNil(t, mb)
		assert.Equal(t, "jane@example.com", mb.Address)
		assert.Empty(t, mb.Name)
		assert.Equal(t, "jane@example.com", mb.Raw)
	})

	t.Run("只有显示名", func(t *testing.T) {
		mb := ParseMailbox("Jane Doe")
		require.NotNil(t, mb)
		assert.Empty(t, mb.Address)
		assert.Equal(t, "Jane Doe", mb.Name)
		assert.Equal(t, "Jane Doe", mb.Raw)
	})

	t.Run("空输入返回 nil", func(t *testing.T) {
		assert.Nil(t, ParseMailbox(""))
		assert.Nil(t, ParseMailbox("   "))
		assert.Nil(t, ParseMailbox("\t\n"))
	})

	t.Run("尖括号内为空返回 nil", func(t *testing.T) {
		assert.Nil(t, ParseMailbox("Jane < >"))
	})
}

func TestNormalizeMailboxList(t *testing.T) {
	t.Run("逗号分隔保持顺序", func(t *testing.T) {
		list := NormalizeMailboxList([]string{"a@example.com, b@example.com"})
		require.Len(t, list, 2)
		assert.Equal(t, "a@example.com", list[0].Address)
		assert.Equal(t, "b@example.com", list[1].Address)
	})

	t.Run("分号分隔", func(t *testing.T) {
		list := NormalizeMailboxList([]string{"a@example.com; b@example.com"})
		require.Len(t, list, 2)
	})

	t.Run("多个输入字符串依次展开", func(t *testing.T) {
		list := NormalizeMailboxList([]string{
			"First <a@example.com>",
			"b@example.com, c@example.com",
		})
		require.Len(t, list, 3)
		assert.Equal(t, "First", list[0].Name)
		assert.Equal(t, "c@example.com", list[2].Address)
	})

	t.Run("空白项被丢弃", func(t *testing.T) {
		list := NormalizeMailboxList([]string{" , ;; a@example.com ,  "})
		require.Len(t, list, 1)
		assert.Equal(t, "a@example.com", list[0].Address)
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Empty(t, NormalizeMailboxList(nil))
		assert.Empty(t, NormalizeMailboxList([]string{""}))
	})
}

func TestNormalizeHeaders(t *testing.T) {
	t.Run("只保留字符串值", func(t *testing.T) {
		headers := NormalizeHeaders(map[string]interface{}{
			"X-Custom":  "value",
			"X-Number":  42,
			"X-Nothing": nil,
		})
		require.NotNil(t, headers)
		assert.Equal(t, map[string]string{"X-Custom": "value"}, headers)
	})

	t.Run("没有存活条目返回 nil", func(t *testing.T) {
		assert.Nil(t, NormalizeHeaders(map[string]interface{}{"X-Number": 42}))
		assert.Nil(t, NormalizeHeaders(map[string]interface{}{}))
		assert.Nil(t, NormalizeHeaders(nil))
	})
}
