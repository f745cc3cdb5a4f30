package rag

import "errors"

// 配置错误：构造时立即返回，不重试.
var (
	ErrInvalidChunkSize = errors.New("rag: chunk size must be positive")
	ErrInvalidOverlap   = errors.New("rag: overlap must be non-negative")
	ErrUnknownStrategy  = errors.New("rag: unknown chunking strategy")
	ErrEmptyQuery       = errors.New("rag: query is empty")
	ErrNoNamespace      = errors.New("rag: at least one namespace is required")
)
