package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode 标识提供者错误类别.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"      // 请求参数错误
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"         // API Key 无效
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN"            // 权限不足
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"         // 触发限流
	ErrTimeout             ErrorCode = "LLM_TIMEOUT"              // 请求超时
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"       // 上游 5xx/网络错误
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE" // Provider 不可用
)

// Error 结构化提供者错误.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsRetryable 判断错误是否为可重试的瞬态提供者错误.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Role 消息角色.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 对话消息.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest 单次生成请求.
// Prompt 为必填；SystemMessage 为空时不发送 system 消息；
// History 在 system 消息之后、用户消息之前按序插入.
type CompletionRequest struct {
	Prompt        string    `json:"prompt"`
	SystemMessage string    `json:"system_message,omitempty"`
	History       []Message `json:"history,omitempty"`
	Model         string    `json:"model,omitempty"`
	Temperature   float64   `json:"temperature,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
}

// CompletionResponse 生成响应.
type CompletionResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Provider 定义统一的文本生成提供者接口.
type Provider interface {
	// Complete 为给定请求生成补全.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name 返回提供者名称.
	Name() string
}
