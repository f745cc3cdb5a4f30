package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sraga-ai/ragcore/embedding"
	"github.com/sraga-ai/ragcore/language"
	"github.com/sraga-ai/ragcore/llm"
	"github.com/sraga-ai/ragcore/retry"
)

// sourcePreviewLen 返回给调用方的来源预览长度（字符）.
const sourcePreviewLen = 200

// Engine RAG 检索引擎：入库、检索、增强检索与问答编排.
// 所有外部协作者（向量化、存储、生成）通过构造参数显式注入.
type Engine struct {
	chunker   *Chunker
	embedder  embedding.Provider
	store     VectorStore
	generator llm.Provider

	augmenter  *Augmenter
	prompts    *PromptBuilder
	adapter    *language.Adapter
	translator *language.Translator
	retryer    retry.Retryer
	metrics    *Metrics
	logger     *zap.Logger

	topK int
}

// EngineOption 引擎可选配置.
type EngineOption func(*Engine)

// WithLogger 设置日志器.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithAugmenter 设置查询增强器.
func WithAugmenter(a *Augmenter) EngineOption {
	return func(e *Engine) { e.augmenter = a }
}

// WithPromptBuilder 设置提示词组装器.
func WithPromptBuilder(b *PromptBuilder) EngineOption {
	return func(e *Engine) { e.prompts = b }
}

// WithRetryPolicy 设置提供者调用的重试策略.
func WithRetryPolicy(policy *retry.Policy) EngineOption {
	return func(e *Engine) {
		e.retryer = retry.NewBackoffRetryer(policy, e.logger)
	}
}

// WithMetrics 设置指标集合.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLanguage 启用跨语言检索.
func WithLanguage(adapter *language.Adapter, translator *language.Translator) EngineOption {
	return func(e *Engine) {
		e.adapter = adapter
		e.translator = translator
	}
}

// WithTopK 设置默认返回条数.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// NewEngine 创建检索引擎.
func NewEngine(chunker *Chunker, embedder embedding.Provider, store VectorStore, generator llm.Provider, opts ...EngineOption) *Engine {
	e := &Engine{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		generator: generator,
		logger:    zap.NewNop(),
		topK:      5,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "rag_engine"))

	if e.retryer == nil {
		policy := retry.DefaultPolicy()
		policy.Classify = llm.IsRetryable
		e.retryer = retry.NewBackoffRetryer(policy, e.logger)
	}
	if e.augmenter == nil {
		e.augmenter = NewAugmenter(generator, DefaultAugmentConfig(), e.metrics, e.logger)
	}
	if e.prompts == nil {
		e.prompts = NewPromptBuilder(PromptBuilderConfig{}, nil, e.logger)
	}
	return e
}

// Ingest 入库：分块 → 批量向量化 → 写入向量存储.
// 返回写入的块 ID。空白文档返回零 ID，不报错.
// 同一文档 ID 的并发重复入库由调用方串行化.
func (e *Engine) Ingest(ctx context.Context, namespace string, doc Document) ([]string, error) {
	if namespace == "" {
		return nil, ErrNoNamespace
	}

	chunks := e.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := e.embedBatches(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}

	records := make([]Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta[MetaNamespace] = namespace
		records[i] = Record{
			ID:       c.ID,
			Text:     c.Text,
			Vector:   vectors[i],
			Metadata: meta,
		}
		ids[i] = c.ID
	}

	if err := e.store.Upsert(ctx, namespace, records); err != nil {
		return nil, fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	e.metrics.recordIngestion(ctx, namespace, len(chunks))
	e.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("namespace", namespace),
		zap.Int("chunks", len(chunks)))

	return ids, nil
}

// embedBatches 按提供者最大批量切分并并发向量化，保持输入顺序.
// 任一批次失败则整体失败，不返回部分结果.
func (e *Engine) embedBatches(ctx context.Context, texts []string) ([][]float64, error) {
	batchSize := e.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 100
	}

	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			var batch [][]float64
			err := e.retryer.Do(gctx, func() error {
				var embedErr error
				batch, embedErr = e.embedder.EmbedDocuments(gctx, texts[start:end])
				return embedErr
			})
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding batch size mismatch: got=%d want=%d", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embedQuery 向量化查询文本（带重试）.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float64, error) {
	var vector []float64
	err := e.retryer.Do(ctx, func() error {
		var embedErr error
		vector, embedErr = e.embedder.EmbedQuery(ctx, query)
		return embedErr
	})
	return vector, err
}

// Retrieve 检索：单命名空间直接委托存储；多命名空间各取 top-k
// 并发查询后拼接，按相似度降序排序截断到 k.
// 空命名空间返回空候选列表，不报错.
func (e *Engine) Retrieve(ctx context.Context, query string, namespaces []string, k int, filter map[string]any) ([]RetrievalCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if len(namespaces) == 0 {
		return nil, ErrNoNamespace
	}
	if k <= 0 {
		k = e.topK
	}

	vector, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	e.metrics.recordRetrieval(ctx, len(namespaces))

	if len(namespaces) == 1 {
		return e.store.Query(ctx, namespaces[0], vector, k, filter)
	}

	// 多命名空间并发查询，各自独立只读，无共享可变状态
	results := make([][]RetrievalCandidate, len(namespaces))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, ns := range namespaces {
		i, ns := i, ns
		g.Go(func() error {
			candidates, err := e.store.Query(gctx, ns, vector, k, filter)
			if err != nil {
				return fmt.Errorf("query namespace %s: %w", ns, err)
			}
			mu.Lock()
			results[i] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 合并：拼接后按相似度降序截断。这是合并而非联合 top-k 搜索
	var merged []RetrievalCandidate
	for _, r := range results {
		merged = append(merged, r...)
	}
	sortByScore(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	if merged == nil {
		merged = []RetrievalCandidate{}
	}
	return merged, nil
}

// AugmentedRetrieve 增强检索：扩展 → 检索 → 重排 → 压缩.
// 启用重排时第一阶段取 2k 候选。任一增强步骤失败回退到其输入.
func (e *Engine) AugmentedRetrieve(ctx context.Context, query string, namespaces []string, k int, filter map[string]any, opts AugmentOptions) ([]RetrievalCandidate, Audit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Audit{}, ErrEmptyQuery
	}
	if k <= 0 {
		k = e.topK
	}

	var audit Audit

	retrievalQuery := query
	if opts.Expand {
		if expanded, ok := e.augmenter.Expand(ctx, query); ok {
			retrievalQuery = expanded
			audit.ExpandedQuery = expanded
		}
	}

	fetchK := k
	if opts.Rerank {
		fetchK = 2 * k
	}

	candidates, err := e.Retrieve(ctx, retrievalQuery, namespaces, fetchK, filter)
	if err != nil {
		return nil, Audit{}, err
	}

	if opts.Rerank {
		candidates = e.augmenter.Rerank(query, candidates, k)
		audit.Reranked = true
	} else if len(candidates) > k {
		candidates = candidates[:k]
	}

	if opts.Compress {
		var compressed int
		candidates, compressed = e.augmenter.Compress(ctx, query, candidates)
		audit.CompressedCount = compressed
	}

	return candidates, audit, nil
}

// BuildPrompt 将查询、候选与对话窗口组装为生成请求.
func (e *Engine) BuildPrompt(query string, candidates []RetrievalCandidate, window []Turn) *llm.CompletionRequest {
	return e.prompts.Build(query, candidates, window)
}

// QueryRequest 一次端到端问答请求.
type QueryRequest struct {
	Query      string         `json:"query"`
	Namespaces []string       `json:"namespaces"`
	K          int            `json:"k,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
	Augment    AugmentOptions `json:"augment"`

	// Conversation 可选对话上下文；HistoryTurns 为窗口轮数（默认 3）.
	Conversation *Conversation `json:"-"`
	HistoryTurns int           `json:"history_turns,omitempty"`

	// TargetLanguage 期望的回答语言（ISO 639-1）；
	// 为空时 QueryWithLanguage 使用检测到的查询语言.
	TargetLanguage string `json:"target_language,omitempty"`
}

// QueryResult 问答结果.
type QueryResult struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	Audit          Audit    `json:"audit"`
	QueryLanguage  string   `json:"query_language,omitempty"`
	TargetLanguage string   `json:"target_language,omitempty"`
}

// Query 端到端问答：增强检索 → 提示词组装 → 生成.
// 零候选不报错，生成模型自行声明上下文不足.
func (e *Engine) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	candidates, audit, err := e.AugmentedRetrieve(ctx, req.Query, req.Namespaces, req.K, req.Filter, req.Augment)
	if err != nil {
		return nil, err
	}

	window := e.window(req)
	prompt := e.prompts.Build(req.Query, candidates, window)

	answer, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &QueryResult{
		Answer:  answer,
		Sources: sources(candidates),
		Audit:   audit,
	}, nil
}

// QueryWithLanguage 跨语言问答：检测查询语言，翻译为默认语言检索，
// 将候选与回答翻译到目标语言。候选翻译失败保留原文.
func (e *Engine) QueryWithLanguage(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	if e.adapter == nil || e.translator == nil {
		return e.Query(ctx, req)
	}

	queryLang := e.adapter.Detect(req.Query)
	target := req.TargetLanguage
	if target == "" {
		target = queryLang
	}
	target, _ = e.adapter.NearestSupported(target)

	// 检索统一使用默认语言
	retrievalQuery := req.Query
	if queryLang != e.adapter.Default() {
		translated, err := e.translator.TranslateToDefault(ctx, req.Query)
		if err != nil {
			e.logger.Warn("查询翻译失败，使用原查询", zap.Error(err))
		} else {
			retrievalQuery = translated
		}
	}

	candidates, audit, err := e.AugmentedRetrieve(ctx, retrievalQuery, req.Namespaces, req.K, req.Filter, req.Augment)
	if err != nil {
		return nil, err
	}

	if target != e.adapter.Default() {
		candidates = e.translateCandidates(ctx, candidates, target)
	}

	window := e.window(req)
	prompt := e.prompts.Build(req.Query, candidates, window)
	if target != "" {
		prompt.SystemMessage += fmt.Sprintf(" Answer in %s.", e.adapter.DisplayName(target))
	}

	answer, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &QueryResult{
		Answer:         answer,
		Sources:        sources(candidates),
		Audit:          audit,
		QueryLanguage:  queryLang,
		TargetLanguage: target,
	}, nil
}

// translateCandidates 将候选文本翻译到目标语言并打标.
func (e *Engine) translateCandidates(ctx context.Context, candidates []RetrievalCandidate, target string) []RetrievalCandidate {
	out := make([]RetrievalCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = c
		srcLang := e.adapter.Detect(c.Text)
		if srcLang == target {
			continue
		}
		translated, err := e.translator.Translate(ctx, c.Text, target)
		if err != nil {
			e.logger.Warn("候选翻译失败，保留原文",
				zap.String("chunk_id", c.ChunkID), zap.Error(err))
			continue
		}

		meta := make(map[string]any, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta[MetaTranslated] = true
		meta[MetaOriginalLanguage] = srcLang

		out[i].Text = translated
		out[i].Metadata = meta
	}
	return out
}

func (e *Engine) window(req *QueryRequest) []Turn {
	if req.Conversation == nil {
		return nil
	}
	turns := req.HistoryTurns
	if turns <= 0 {
		turns = 3
	}
	return req.Conversation.Window(turns)
}

// complete 调用生成模型（带重试）.
func (e *Engine) complete(ctx context.Context, req *llm.CompletionRequest) (string, error) {
	var text string
	err := e.retryer.Do(ctx, func() error {
		resp, completeErr := e.generator.Complete(ctx, req)
		if completeErr != nil {
			return completeErr
		}
		text = resp.Text
		return nil
	})
	return text, err
}

// DeleteDocument 按 Ingest 返回的分块 ID 批量删除一篇文档的全部分块.
func (e *Engine) DeleteDocument(ctx context.Context, namespace string, chunkIDs []string) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	return e.store.Delete(ctx, namespace, chunkIDs)
}

// DeleteNamespace 删除命名空间及其全部记录.
func (e *Engine) DeleteNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	return e.store.DeleteNamespace(ctx, namespace)
}

// sources 将候选转换为带截断预览的来源列表.
func sources(candidates []RetrievalCandidate) []Source {
	out := make([]Source, len(candidates))
	for i, c := range candidates {
		preview := c.Text
		if runes := []rune(preview); len(runes) > sourcePreviewLen {
			preview = string(runes[:sourcePreviewLen]) + "..."
		}
		out[i] = Source{
			ChunkID:   c.ChunkID,
			Preview:   preview,
			Score:     c.Score,
			Namespace: c.Namespace,
			Metadata:  c.Metadata,
		}
	}
	return out
}
