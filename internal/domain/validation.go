package domain

import (
	"errors"
	"regexp"
)

var (
	// ErrSlugInvalid slug 格式非法。
	ErrSlugInvalid = errors.New("invalid sink slug")
)

// slugPattern slug 须为 URL 安全的小写字母、数字与中连字符。
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// MaxSlugLength slug 最大长度。
const MaxSlugLength = 64

// ValidateSlug 校验 Sink slug。
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > MaxSlugLength {
		return ErrSlugInvalid
	}
	if !slugPattern.MatchString(slug) {
		return ErrSlugInvalid
	}
	return nil
}
