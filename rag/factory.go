package rag

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sraga-ai/ragcore/config"
	"github.com/sraga-ai/ragcore/embedding"
	"github.com/sraga-ai/ragcore/language"
	"github.com/sraga-ai/ragcore/llm"
	"github.com/sraga-ai/ragcore/retry"
	"github.com/sraga-ai/ragcore/tokenizer"
)

// NewEngineFromConfig 按配置组装完整的检索引擎.
// 包括生成提供者、向量化提供者（可选 Redis 缓存）、向量存储后端、
// 分块器、增强器、提示词组装器与可选的跨语言组件.
func NewEngineFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	generator := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}, logger)

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	chunker, err := NewChunker(ChunkerConfig{
		Strategy:         ChunkingStrategy(cfg.Chunking.Strategy),
		Size:             cfg.Chunking.Size,
		Overlap:          cfg.Chunking.Overlap,
		CrossPageOverlap: true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("build metrics: %w", err)
	}

	augmenter := NewAugmenter(generator, AugmentConfig{
		KeywordWeight:        cfg.Retrieval.RerankKeywordWeight,
		CompressionThreshold: cfg.Retrieval.CompressionThreshold,
		CompressionMinRatio:  cfg.Retrieval.CompressionMinRatio,
	}, metrics, logger)

	prompts := NewPromptBuilder(PromptBuilderConfig{
		MaxContextTokens: cfg.LLM.MaxTokens,
	}, tokenizer.NewForModel(cfg.LLM.Model), logger)

	policy := retry.DefaultPolicy()
	if cfg.LLM.MaxRetries > 0 {
		policy.MaxRetries = cfg.LLM.MaxRetries
	}
	policy.Classify = llm.IsRetryable

	opts := []EngineOption{
		WithLogger(logger),
		WithAugmenter(augmenter),
		WithPromptBuilder(prompts),
		WithRetryPolicy(policy),
		WithMetrics(metrics),
		WithTopK(cfg.Retrieval.TopK),
	}

	if cfg.Language.TranslationEnabled {
		adapter, err := language.NewAdapter(language.AdapterConfig{
			Default:         cfg.Language.Default,
			Supported:       cfg.Language.Supported,
			MinDetectLength: cfg.Language.MinDetectLength,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build language adapter: %w", err)
		}
		translator := language.NewTranslator(generator, adapter, logger)
		opts = append(opts, WithLanguage(adapter, translator))
	}

	return NewEngine(chunker, embedder, store, generator, opts...), nil
}

// buildEmbedder 创建向量化提供者，Redis 启用时套缓存装饰器.
func buildEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Provider, error) {
	apiKey := cfg.Embedding.APIKey
	if apiKey == "" {
		apiKey = cfg.LLM.APIKey
	}

	var embedder embedding.Provider = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		embedder = embedding.NewCachedProvider(embedder, client, embedding.CacheConfig{
			TTL: cfg.Redis.CacheTTL,
		}, logger)
	}

	return embedder, nil
}

// buildStore 按后端名创建向量存储.
func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (VectorStore, error) {
	switch cfg.VectorStore.Backend {
	case "", "memory":
		return NewInMemoryVectorStore(logger), nil

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			BaseURL:          cfg.VectorStore.Qdrant.BaseURL,
			APIKey:           cfg.VectorStore.Qdrant.APIKey,
			CollectionPrefix: cfg.VectorStore.Qdrant.CollectionPrefix,
			VectorSize:       cfg.Embedding.Dimensions,
		}, logger), nil

	case "pgvector":
		return NewPgVectorStore(ctx, PgVectorConfig{
			ConnString: cfg.VectorStore.Postgres.DSN(),
			Table:      cfg.VectorStore.Postgres.Table,
			VectorDim:  cfg.Embedding.Dimensions,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown vector store backend: %q", cfg.VectorStore.Backend)
	}
}
