package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorStore 向量存储接口。所有操作以命名空间为作用域，
// 一条记录只属于一个命名空间.
type VectorStore interface {
	// Upsert 写入或覆盖记录
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query 最近邻查询。filter 为元数据相等性合取；
	// 返回至多 k 条候选，按相似度降序
	Query(ctx context.Context, namespace string, vector []float64, k int, filter map[string]any) ([]RetrievalCandidate, error)

	// Delete 按 ID 删除记录
	Delete(ctx context.Context, namespace string, ids []string) error

	// DeleteNamespace 删除整个命名空间
	DeleteNamespace(ctx context.Context, namespace string) error

	// Count 返回命名空间内的记录数
	Count(ctx context.Context, namespace string) (int, error)
}

// ====== 内存向量存储（用于测试和小规模应用）======

// InMemoryVectorStore 内存向量存储
type InMemoryVectorStore struct {
	namespaces map[string][]Record
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		namespaces: make(map[string][]Record),
		logger:     logger.With(zap.String("component", "memory_store")),
	}
}

// Upsert 写入或覆盖记录
func (s *InMemoryVectorStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.namespaces[namespace]
	byID := make(map[string]int, len(existing))
	for i, r := range existing {
		byID[r.ID] = i
	}

	for _, r := range records {
		if i, ok := byID[r.ID]; ok {
			existing[i] = r
			continue
		}
		existing = append(existing, r)
		byID[r.ID] = len(existing) - 1
	}
	s.namespaces[namespace] = existing

	s.logger.Debug("records upserted",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)),
		zap.Int("total", len(existing)))

	return nil
}

// Query 最近邻查询（余弦相似度）
func (s *InMemoryVectorStore) Query(ctx context.Context, namespace string, vector []float64, k int, filter map[string]any) ([]RetrievalCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.namespaces[namespace]
	if len(records) == 0 || k <= 0 {
		return []RetrievalCandidate{}, nil
	}

	candidates := make([]RetrievalCandidate, 0, len(records))
	for _, r := range records {
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		similarity := cosineSimilarity(vector, r.Vector)
		candidates = append(candidates, RetrievalCandidate{
			ChunkID:   r.ID,
			Text:      r.Text,
			Metadata:  r.Metadata,
			Score:     similarity,
			Distance:  1.0 - similarity,
			Namespace: namespace,
		})
	}

	sortByScore(candidates)

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// Delete 按 ID 删除记录
func (s *InMemoryVectorStore) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	records := s.namespaces[namespace]
	filtered := records[:0]
	for _, r := range records {
		if !idSet[r.ID] {
			filtered = append(filtered, r)
		}
	}
	s.namespaces[namespace] = filtered

	s.logger.Debug("records deleted",
		zap.String("namespace", namespace),
		zap.Int("deleted", len(records)-len(filtered)))

	return nil
}

// DeleteNamespace 删除整个命名空间
func (s *InMemoryVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	s.logger.Debug("namespace deleted", zap.String("namespace", namespace))
	return nil
}

// Count 返回命名空间内的记录数
func (s *InMemoryVectorStore) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace]), nil
}

// ====== 工具函数 ======

// matchesFilter 元数据相等性合取匹配。空 filter 匹配所有记录.
func matchesFilter(meta, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按相似度降序排序（稳定，保证确定性）
func sortByScore(candidates []RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}
