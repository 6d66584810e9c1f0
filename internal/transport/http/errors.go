package httptransport

import (
	"github.com/brunnerh/email-sink/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// Sink 错误
	service.ErrSlugRequired: "Sink slug不能为空",
	service.ErrSinkNotFound: "Sink不存在",
	service.ErrSlugTaken:    "slug已被占用",
	service.ErrNameRequired: "名称不能为空",

	// 摄入闸门错误
	service.ErrTokenRequired: "需要提供访问密钥",
	service.ErrTokenInvalid:  "访问密钥无效",

	// 邮件错误
	service.ErrEmailNotFound:      "邮件不存在",
	service.ErrAttachmentNotFound: "附件不存在",

	// API Key 错误
	service.ErrAPIKeyNotFound:  "API Key不存在",
	service.ErrKeyNameRequired: "API Key名称不能为空",

	// 授权规则错误
	service.ErrAuthRuleNotFound:  "授权规则不存在",
	service.ErrRuleTypeInvalid:   "规则类型无效",
	service.ErrRuleValueRequired: "规则值不能为空",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"

	// Sink 相关
	MsgSinkCreateFailed = "创建Sink失败"
	MsgSinkNotFound     = "Sink不存在"
	MsgSinkListFailed   = "获取Sink列表失败"
	MsgSinkUpdateFailed = "更新Sink失败"
	MsgSinkDeleteFailed = "删除Sink失败"

	// 摄入相关
	MsgIngestFailed = "邮件摄入失败"

	// 邮件相关
	MsgEmailNotFound     = "邮件不存在"
	MsgEmailListFailed   = "获取邮件列表失败"
	MsgEmailGetFailed    = "获取邮件详情失败"
	MsgEmailDeleteFailed = "删除邮件失败"

	// 附件相关
	MsgAttachmentNotFound = "附件不存在"

	// API Key相关
	MsgAPIKeyCreateFailed = "创建API Key失败"
	MsgAPIKeyListFailed   = "获取API Key列表失败"
	MsgAPIKeyDeleteFailed = "删除API Key失败"

	// 授权规则相关
	MsgAuthRuleCreateFailed = "创建授权规则失败"
	MsgAuthRuleListFailed   = "获取授权规则列表失败"
	MsgAuthRuleDeleteFailed = "删除授权规则失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
