// Package ragcore provides a top-level convenience entry point for building
// a retrieval engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/sraga-ai/ragcore"
//
//	engine, err := ragcore.New()                              // API key from OPENAI_API_KEY env
//	engine, err := ragcore.New(ragcore.WithAPIKey("sk-..."))
//	engine, err := ragcore.New(ragcore.WithVectorStore(myStore), ragcore.WithModel("gpt-4o"))
//
// The result is a fully wired [rag.Engine] backed by an in-memory vector
// store. For Qdrant/pgvector backends and file-based configuration use
// [rag.NewEngineFromConfig] instead.
package ragcore

import (
	"os"

	"go.uber.org/zap"

	"github.com/sraga-ai/ragcore/embedding"
	"github.com/sraga-ai/ragcore/llm"
	"github.com/sraga-ai/ragcore/rag"
)

type options struct {
	apiKey         string
	model          string
	embeddingModel string
	store          rag.VectorStore
	chunking       rag.ChunkerConfig
	topK           int
	logger         *zap.Logger
}

// Option configures the engine created by [New].
type Option func(*options)

// WithAPIKey overrides the API key (default: OPENAI_API_KEY env).
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel overrides the generation model name.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithEmbeddingModel overrides the embedding model name.
func WithEmbeddingModel(model string) Option {
	return func(o *options) { o.embeddingModel = model }
}

// WithVectorStore sets a pre-built vector store.
func WithVectorStore(store rag.VectorStore) Option {
	return func(o *options) { o.store = store }
}

// WithChunking overrides the chunking configuration.
func WithChunking(cfg rag.ChunkerConfig) Option {
	return func(o *options) { o.chunking = cfg }
}

// WithTopK sets the default number of retrieved candidates.
func WithTopK(k int) Option {
	return func(o *options) { o.topK = k }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a [rag.Engine] with minimal configuration.
func New(opts ...Option) (*rag.Engine, error) {
	o := &options{
		apiKey:   os.Getenv("OPENAI_API_KEY"),
		chunking: rag.DefaultChunkerConfig(),
		topK:     5,
	}
	for _, opt := range opts {
		opt(o)
	}

	chunker, err := rag.NewChunker(o.chunking, o.logger)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		store = rag.NewInMemoryVectorStore(o.logger)
	}

	generator := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey: o.apiKey,
		Model:  o.model,
	}, o.logger)

	embedder := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey: o.apiKey,
		Model:  o.embeddingModel,
	})

	engineOpts := []rag.EngineOption{rag.WithTopK(o.topK)}
	if o.logger != nil {
		engineOpts = append(engineOpts, rag.WithLogger(o.logger))
	}

	return rag.NewEngine(chunker, embedder, store, generator, engineOpts...), nil
}
