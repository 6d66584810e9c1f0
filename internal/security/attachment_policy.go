package security

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxAttachmentSize 单个附件默认大小上限。
const DefaultMaxAttachmentSize = 10 * 1024 * 1024

// AttachmentPolicy 摄入附件的校验策略。
// 超限附件整封拒收；可执行内容只标记不拒收，
// 捕获型服务必须原样保留收到的字节。
type AttachmentPolicy struct {
	maxSize int64

	// 可执行文件扩展名
	executableExtensions map[string]bool
}

// NewAttachmentPolicy 创建附件策略。maxSize <= 0 时使用默认上限。
func NewAttachmentPolicy(maxSize int64) *AttachmentPolicy {
	if maxSize <= 0 {
		maxSize = DefaultMaxAttachmentSize
	}
	return &AttachmentPolicy{
		maxSize: maxSize,
		executableExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".msi": true,
			".dll": true,
		},
	}
}

// MaxSize 返回单个附件的大小上限。
func (p *AttachmentPolicy) MaxSize() int64 {
	return p.maxSize
}

// CheckSize 校验附件大小，超限时返回描述性错误。
func (p *AttachmentPolicy) CheckSize(filename string, size int64) error {
	if size > p.maxSize {
		return fmt.Errorf("attachment %q exceeds size limit (%d > %d bytes)", filename, size, p.maxSize)
	}
	return nil
}

// executableSignatures 常见可执行文件魔数。
var executableSignatures = [][]byte{
	{0x4D, 0x5A},             // PE
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O 32
	{0xFE, 0xED, 0xFA, 0xCF}, // Mach-O 64
	{0xCF, 0xFA, 0xED, 0xFE}, // Mach-O little-endian
}

// IsExecutable 判断附件是否为可执行文件（按扩展名或内容魔数）。
func (p *AttachmentPolicy) IsExecutable(filename string, content []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if p.executableExtensions[ext] {
		return true
	}
	for _, sig := range executableSignatures {
		if bytes.HasPrefix(content, sig) {
			return true
		}
	}
	return false
}
