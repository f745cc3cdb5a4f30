package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sraga-ai/ragcore/llm"
)

// AugmentConfig 查询增强配置。常量默认值沿用生产观测值，均可调.
type AugmentConfig struct {
	// KeywordWeight 重排中关键词命中数的权重
	KeywordWeight float64 `json:"keyword_weight"`
	// ExpansionMaxRatio 扩展查询相对原查询的最大长度倍数，超出则丢弃
	ExpansionMaxRatio float64 `json:"expansion_max_ratio"`
	// CompressionThreshold 触发压缩的最小字符数
	CompressionThreshold int `json:"compression_threshold"`
	// CompressionMinRatio 压缩结果的最小长度比例，低于则保留原文
	CompressionMinRatio float64 `json:"compression_min_ratio"`
}

// DefaultAugmentConfig 默认查询增强配置
func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{
		KeywordWeight:        0.1,
		ExpansionMaxRatio:    3.0,
		CompressionThreshold: 500,
		CompressionMinRatio:  0.2,
	}
}

// AugmentOptions 单次检索启用的增强步骤.
// 固定顺序：扩展 →（检索）→ 重排 → 压缩；全部关闭退化为普通 top-k 检索.
type AugmentOptions struct {
	Expand   bool `json:"expand"`
	Rerank   bool `json:"rerank"`
	Compress bool `json:"compress"`
}

// Audit 增强检索的审计信息.
type Audit struct {
	// ExpandedQuery 实际用于检索的扩展查询；护栏丢弃或未启用时为空.
	ExpandedQuery string `json:"expanded_query,omitempty"`
	// Reranked 是否执行了重排.
	Reranked bool `json:"reranked"`
	// CompressedCount 成功压缩的候选数.
	CompressedCount int `json:"compressed_count"`
}

// Augmenter 查询增强器：扩展、关键词重排、上下文压缩.
// 任一步骤失败均回退到该步骤的输入，不向调用方传播.
type Augmenter struct {
	generator llm.Provider
	cfg       AugmentConfig
	metrics   *Metrics
	logger    *zap.Logger
}

// NewAugmenter 创建查询增强器.
func NewAugmenter(generator llm.Provider, cfg AugmentConfig, metrics *Metrics, logger *zap.Logger) *Augmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeywordWeight == 0 {
		cfg.KeywordWeight = 0.1
	}
	if cfg.ExpansionMaxRatio == 0 {
		cfg.ExpansionMaxRatio = 3.0
	}
	if cfg.CompressionThreshold == 0 {
		cfg.CompressionThreshold = 500
	}
	if cfg.CompressionMinRatio == 0 {
		cfg.CompressionMinRatio = 0.2
	}
	return &Augmenter{
		generator: generator,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "augmenter")),
	}
}

// Expand 请求生成模型改写查询以提升召回.
// 护栏：改写超过原查询 ExpansionMaxRatio 倍长度时丢弃；
// 调用失败或取消同样丢弃。第二返回值表示改写是否被采用.
func (a *Augmenter) Expand(ctx context.Context, query string) (string, bool) {
	resp, err := a.generator.Complete(ctx, &llm.CompletionRequest{
		SystemMessage: "You rewrite search queries to improve recall. Keep the original intent. " +
			"Output only the rewritten query.",
		Prompt:      fmt.Sprintf("Rewrite this query for better retrieval:\n\n%s", query),
		Temperature: 0.3,
	})
	if err != nil {
		a.logger.Warn("查询扩展失败，使用原查询", zap.Error(err))
		a.metrics.recordFallback(ctx, "expansion")
		return "", false
	}

	expanded := strings.TrimSpace(resp.Text)
	if expanded == "" {
		a.metrics.recordFallback(ctx, "expansion")
		return "", false
	}

	origLen := utf8.RuneCountInString(query)
	if float64(utf8.RuneCountInString(expanded)) > a.cfg.ExpansionMaxRatio*float64(origLen) {
		a.logger.Debug("扩展查询超长，丢弃",
			zap.Int("original_len", origLen),
			zap.Int("expanded_len", utf8.RuneCountInString(expanded)))
		a.metrics.recordFallback(ctx, "expansion")
		return "", false
	}

	return expanded, true
}

// Rerank 组合打分重排：combined = distance - KeywordWeight * 关键词命中数.
// 命中数统计查询词元在候选文本中的出现次数（大小写不敏感、词边界）.
// 按组合分升序排序并截断到 k。纯本地计算，无外部调用.
func (a *Augmenter) Rerank(query string, candidates []RetrievalCandidate, k int) []RetrievalCandidate {
	if len(candidates) == 0 {
		return candidates
	}

	queryTokens := tokenize(query)

	type scored struct {
		cand     RetrievalCandidate
		combined float64
	}
	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		overlap := keywordOverlap(queryTokens, c.Text)
		scoredList[i] = scored{
			cand:     c,
			combined: c.Distance - a.cfg.KeywordWeight*float64(overlap),
		}
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		return scoredList[i].combined < scoredList[j].combined
	})

	if k <= 0 || k > len(scoredList) {
		k = len(scoredList)
	}
	out := make([]RetrievalCandidate, k)
	for i := 0; i < k; i++ {
		out[i] = scoredList[i].cand
	}
	return out
}

// Compress 对超过阈值的候选请求生成模型提取与查询相关的子段.
// 护栏：压缩结果不足原文 CompressionMinRatio 比例时保留原文；
// 调用失败或取消同样保留原文。成功压缩的候选打上
// compressed / original_length 元数据.
func (a *Augmenter) Compress(ctx context.Context, query string, candidates []RetrievalCandidate) ([]RetrievalCandidate, int) {
	out := make([]RetrievalCandidate, len(candidates))
	compressed := 0

	for i, c := range candidates {
		out[i] = c
		origLen := utf8.RuneCountInString(c.Text)
		if origLen < a.cfg.CompressionThreshold {
			continue
		}

		resp, err := a.generator.Complete(ctx, &llm.CompletionRequest{
			SystemMessage: "Extract only the parts of the text that are relevant to the question. " +
				"Output the extracted text verbatim, with no commentary.",
			Prompt:      fmt.Sprintf("Question: %s\n\nText:\n%s", query, c.Text),
			Temperature: 0.0,
		})
		if err != nil {
			a.logger.Warn("上下文压缩失败，保留原文",
				zap.String("chunk_id", c.ChunkID), zap.Error(err))
			a.metrics.recordFallback(ctx, "compression")
			continue
		}

		text := strings.TrimSpace(resp.Text)
		if text == "" ||
			float64(utf8.RuneCountInString(text)) < a.cfg.CompressionMinRatio*float64(origLen) {
			a.logger.Debug("压缩结果过短，保留原文",
				zap.String("chunk_id", c.ChunkID),
				zap.Int("original_len", origLen),
				zap.Int("compressed_len", utf8.RuneCountInString(text)))
			a.metrics.recordFallback(ctx, "compression")
			continue
		}

		meta := make(map[string]any, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta[MetaCompressed] = true
		meta[MetaOriginalLength] = origLen

		out[i].Text = text
		out[i].Metadata = meta
		compressed++
	}

	return out, compressed
}

// tokenize 拆分为小写词元，去除标点.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// keywordOverlap 统计查询词元在文本中的出现次数.
func keywordOverlap(queryTokens []string, text string) int {
	if len(queryTokens) == 0 {
		return 0
	}
	querySet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = true
	}

	count := 0
	for _, t := range tokenize(text) {
		if querySet[t] {
			count++
		}
	}
	return count
}
