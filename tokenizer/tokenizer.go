package tokenizer

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// NewForModel 为给定模型返回分词器.
// 已知 OpenAI 系模型使用 tiktoken；其余回退到估算器.
func NewForModel(model string) Tokenizer {
	if t, ok := newTiktokenForModel(model); ok {
		return t
	}
	return NewEstimator(model, 0)
}
