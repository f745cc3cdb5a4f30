// =============================================================================
// 📦 SRAGA 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:         DefaultLLMConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		Chunking:    DefaultChunkingConfig(),
		Retrieval:   DefaultRetrievalConfig(),
		VectorStore: DefaultVectorStoreConfig(),
		Redis:       DefaultRedisConfig(),
		Language:    DefaultLanguageConfig(),
		Log:         DefaultLogConfig(),
	}
}

// DefaultLLMConfig 返回默认生成模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     2 * time.Minute,
		MaxRetries:  3,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultChunkingConfig 返回默认切分配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Strategy: "sentence",
		Size:     1000,
		Overlap:  200,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                 5,
		ExpansionEnabled:     true,
		RerankEnabled:        true,
		RerankKeywordWeight:  0.1,
		CompressionEnabled:   false,
		CompressionThreshold: 500,
		CompressionMinRatio:  0.2,
		HistoryTurns:         3,
	}
}

// DefaultVectorStoreConfig 返回默认向量存储配置
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		Backend: "memory",
		Qdrant: QdrantConfig{
			BaseURL:          "http://localhost:6333",
			CollectionPrefix: "sraga",
		},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "sraga",
			Name:    "sraga",
			SSLMode: "disable",
			Table:   "rag_chunks",
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		CacheTTL: 24 * time.Hour,
	}
}

// DefaultLanguageConfig 返回默认多语言配置
func DefaultLanguageConfig() LanguageConfig {
	return LanguageConfig{
		Default:            "en",
		Supported:          []string{"en", "zh", "es", "fr", "de", "ja", "ko", "ru"},
		MinDetectLength:    5,
		TranslationEnabled: false,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
