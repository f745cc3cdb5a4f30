package language

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sraga-ai/ragcore/llm"
)

// Translator 基于生成模型的翻译器.
type Translator struct {
	provider llm.Provider
	adapter  *Adapter
	logger   *zap.Logger
}

// NewTranslator 创建翻译器.
func NewTranslator(provider llm.Provider, adapter *Adapter, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		provider: provider,
		adapter:  adapter,
		logger:   logger.With(zap.String("component", "translator")),
	}
}

// Translate 将文本翻译到目标语言.
// 源语言与目标语言一致时原样返回，不调用提供者.
func (t *Translator) Translate(ctx context.Context, text, targetCode string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	target, _ := t.adapter.NearestSupported(targetCode)
	if t.adapter.Detect(text) == target {
		return text, nil
	}

	targetName := t.adapter.DisplayName(target)
	resp, err := t.provider.Complete(ctx, &llm.CompletionRequest{
		SystemMessage: "You are a translator. Output only the translation, with no explanations or quotes.",
		Prompt:        fmt.Sprintf("Translate the following text to %s:\n\n%s", targetName, text),
		Temperature:   0.1,
	})
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", target, err)
	}

	translated := strings.TrimSpace(resp.Text)
	if translated == "" {
		return text, nil
	}

	t.logger.Debug("翻译完成",
		zap.String("target", target),
		zap.Int("input_chars", len(text)),
		zap.Int("output_chars", len(translated)))

	return translated, nil
}

// TranslateToDefault 将文本翻译到默认语言（检索用的标准语言）.
func (t *Translator) TranslateToDefault(ctx context.Context, text string) (string, error) {
	return t.Translate(ctx, text, t.adapter.Default())
}
