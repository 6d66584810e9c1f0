package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentPolicy_CheckSize(t *testing.T) {
	policy := NewAttachmentPolicy(1024)

	t.Run("未超限通过", func(t *testing.T) {
		assert.NoError(t, policy.CheckSize("report.pdf", 1024))
	})

	t.Run("超限拒绝", func(t *testing.T) {
		err := policy.CheckSize("big.bin", 1025)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "big.bin")
	})

	t.Run("非法上限退化为默认值", func(t *testing.T) {
		policy := NewAttachmentPolicy(0)
		assert.Equal(t, int64(DefaultMaxAttachmentSize), policy.MaxSize())
	})
}

func TestAttachmentPolicy_IsExecutable(t *testing.T) {
	policy := NewAttachmentPolicy(0)

	t.Run("按扩展名识别", func(t *testing.T) {
		assert.True(t, policy.IsExecutable("setup.EXE", []byte("whatever")))
		assert.True(t, policy.IsExecutable("run.bat", nil))
	})

	t.Run("按魔数识别", func(t *testing.T) {
		assert.True(t, policy.IsExecutable("data.bin", []byte{0x4D, 0x5A, 0x90, 0x00}))
		assert.True(t, policy.IsExecutable("data.bin", []byte{0x7F, 'E', 'L', 'F'}))
	})

	t.Run("普通附件不识别", func(t *testing.T) {
		assert.False(t, policy.IsExecutable("report.pdf", []byte("%PDF-1.7")))
		assert.False(t, policy.IsExecutable("notes.txt", []byte("hello")))
	})
}
