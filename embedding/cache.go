package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheConfig 配置 Redis 向量缓存.
type CacheConfig struct {
	TTL       time.Duration `json:"ttl"`        // 默认 24h
	KeyPrefix string        `json:"key_prefix"` // 默认 "emb"
}

// CachedProvider 是带 Redis 缓存的嵌入提供者装饰器.
// 缓存键由模型名与文本内容哈希构成；相同文本的重复向量化直接命中缓存.
// Redis 不可用时降级为直通调用.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	cfg    CacheConfig
	logger *zap.Logger
}

// NewCachedProvider 创建缓存装饰器.
func NewCachedProvider(inner Provider, client *redis.Client, cfg CacheConfig, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "emb"
	}
	return &CachedProvider{
		inner:  inner,
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

func (c *CachedProvider) Name() string      { return c.inner.Name() }
func (c *CachedProvider) Dimensions() int   { return c.inner.Dimensions() }
func (c *CachedProvider) MaxBatchSize() int { return c.inner.MaxBatchSize() }

func (c *CachedProvider) cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%s", c.cfg.KeyPrefix, model, hex.EncodeToString(sum[:]))
}

// Embed 实现 Provider.Embed：先查缓存，未命中的输入批量透传给内层提供者.
func (c *CachedProvider) Embed(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.inner.Name()
	}

	embeddings := make([][]float64, len(req.Input))
	missIdx := make([]int, 0, len(req.Input))
	missInput := make([]string, 0, len(req.Input))

	for i, text := range req.Input {
		vec, ok := c.lookup(ctx, c.cacheKey(model, text))
		if ok {
			embeddings[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missInput = append(missInput, text)
	}

	resp := &Response{
		Provider:   c.inner.Name(),
		Model:      model,
		CreatedAt:  time.Now(),
		Embeddings: embeddings,
	}

	if len(missInput) == 0 {
		c.logger.Debug("全部命中缓存", zap.Int("inputs", len(req.Input)))
		return resp, nil
	}

	missReq := *req
	missReq.Input = missInput
	innerResp, err := c.inner.Embed(ctx, &missReq)
	if err != nil {
		return nil, err
	}
	if len(innerResp.Embeddings) != len(missInput) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs",
			len(innerResp.Embeddings), len(missInput))
	}

	for j, i := range missIdx {
		embeddings[i] = innerResp.Embeddings[j]
		c.store(ctx, c.cacheKey(model, missInput[j]), innerResp.Embeddings[j])
	}

	resp.Model = innerResp.Model
	resp.Usage = innerResp.Usage

	c.logger.Debug("缓存部分命中",
		zap.Int("inputs", len(req.Input)),
		zap.Int("misses", len(missInput)))

	return resp, nil
}

func (c *CachedProvider) lookup(ctx context.Context, key string) ([]float64, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("缓存读取失败", zap.Error(err))
		}
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		c.logger.Warn("缓存条目损坏", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) store(ctx context.Context, key string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("缓存写入失败", zap.Error(err))
	}
}

// EmbedQuery 实现 Provider.EmbedQuery.
func (c *CachedProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	resp, err := c.Embed(ctx, &Request{Input: []string{query}, InputType: InputTypeQuery})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Embeddings[0], nil
}

// EmbedDocuments 实现 Provider.EmbedDocuments.
func (c *CachedProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	resp, err := c.Embed(ctx, &Request{Input: documents, InputType: InputTypeDocument})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
