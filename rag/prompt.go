package rag

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sraga-ai/ragcore/llm"
	"github.com/sraga-ai/ragcore/tokenizer"
)

// contextSeparator 候选证据之间的分隔符.
const contextSeparator = "\n\n---\n\n"

// DefaultSystemTemplate 默认系统提示词.
const DefaultSystemTemplate = "You are a helpful assistant. Answer the question using only the provided context. " +
	"If the context does not contain the answer, say so."

// PromptBuilderConfig 提示词组装配置.
type PromptBuilderConfig struct {
	// SystemTemplate 系统提示词，为空时使用 DefaultSystemTemplate.
	SystemTemplate string
	// MaxContextTokens 上下文块的 Token 预算；0 表示不限制.
	// 超出预算时从相关性最低的候选开始丢弃.
	MaxContextTokens int
}

// PromptBuilder 将查询、候选证据与对话窗口组装为生成请求.
type PromptBuilder struct {
	cfg    PromptBuilderConfig
	tk     tokenizer.Tokenizer
	logger *zap.Logger
}

// NewPromptBuilder 创建提示词组装器.
func NewPromptBuilder(cfg PromptBuilderConfig, tk tokenizer.Tokenizer, logger *zap.Logger) *PromptBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SystemTemplate == "" {
		cfg.SystemTemplate = DefaultSystemTemplate
	}
	return &PromptBuilder{
		cfg:    cfg,
		tk:     tk,
		logger: logger.With(zap.String("component", "prompt_builder")),
	}
}

// Build 组装生成请求。候选按输入顺序拼接（调用方已按相关性排序），
// 对话窗口映射为多轮消息历史.
func (b *PromptBuilder) Build(query string, candidates []RetrievalCandidate, window []Turn) *llm.CompletionRequest {
	kept := b.fitBudget(candidates)

	blocks := make([]string, 0, len(kept))
	for _, c := range kept {
		blocks = append(blocks, c.Text)
	}
	contextText := strings.Join(blocks, contextSeparator)

	history := make([]llm.Message, 0, len(window))
	for _, t := range window {
		history = append(history, llm.Message{
			Role:    llm.Role(t.Role),
			Content: t.Content,
		})
	}

	prompt := query
	if contextText != "" {
		prompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)
	}

	return &llm.CompletionRequest{
		Prompt:        prompt,
		SystemMessage: b.cfg.SystemTemplate,
		History:       history,
	}
}

// fitBudget 在 Token 预算内保留尽可能多的候选，从尾部（相关性最低）丢弃.
func (b *PromptBuilder) fitBudget(candidates []RetrievalCandidate) []RetrievalCandidate {
	if b.cfg.MaxContextTokens <= 0 || b.tk == nil || len(candidates) == 0 {
		return candidates
	}

	kept := make([]RetrievalCandidate, 0, len(candidates))
	budget := b.cfg.MaxContextTokens
	for _, c := range candidates {
		n, err := b.tk.CountTokens(c.Text)
		if err != nil {
			// 计数失败时保守保留
			kept = append(kept, c)
			continue
		}
		if n > budget {
			break
		}
		budget -= n
		kept = append(kept, c)
	}

	if len(kept) < len(candidates) {
		b.logger.Debug("context trimmed to token budget",
			zap.Int("kept", len(kept)),
			zap.Int("dropped", len(candidates)-len(kept)))
	}
	return kept
}
